// Package parser turns a raw RFC 5322 message stream into a notification,
// extracting the subject, the sender and a plain-text body.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"github.com/shineum/smtp-discord-relay/internal/email"
)

// ParseError reports a message whose structure could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse message: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Extract reads r to completion and parses the result. Stream read failures
// are returned as is; structural problems are returned as *ParseError.
//
// A text/plain part is used verbatim apart from line ending normalisation.
// When a message only carries HTML, the HTML is converted to text.
func Extract(r io.Reader) (*email.Notification, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}
	return Parse(buf.Bytes())
}

// Parse parses a complete raw message.
func Parse(raw []byte) (*email.Notification, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !undecodable(err) {
		return nil, &ParseError{Err: err}
	}
	if err != nil {
		slog.Warn("unknown message encoding, using raw bytes", "error", err)
	}
	mr := mail.NewReader(entity)

	result := &email.Notification{
		Subject: subject(mr.Header),
		Sender:  firstFrom(mr.Header),
	}

	var textBody, htmlBody string
	var haveText, haveHTML bool

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !(undecodable(err) && part != nil) {
			return nil, &ParseError{Err: err}
		}
		if err != nil {
			slog.Warn("unknown part encoding, using raw bytes", "error", err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			// Attachments are not forwarded, but must be consumed so a
			// truncated structure is still detected.
			if _, err := io.Copy(io.Discard, part.Body); err != nil {
				return nil, &ParseError{Err: err}
			}
			continue
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, &ParseError{Err: err}
		}

		mediaType, _, err := inline.ContentType()
		if err != nil || mediaType == "" {
			mediaType = "text/plain"
		}

		switch mediaType {
		case "text/plain":
			if !haveText {
				textBody, haveText = string(content), true
			}
		case "text/html":
			if !haveHTML {
				htmlBody, haveHTML = string(content), true
			}
		default:
			slog.Debug("skipping non-text MIME part", "content_type", mediaType)
		}
	}

	switch {
	case haveText:
		result.Body = normalizeText(textBody)
	case haveHTML:
		result.Body = normalizeText(html2text.HTML2Text(htmlBody))
	}

	return result, nil
}

// undecodable reports errors for which go-message still returns the entity
// with its body left as raw bytes.
func undecodable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// subject returns the decoded Subject header, falling back to the raw value
// when it carries an undecodable encoded-word.
func subject(h mail.Header) string {
	s, err := h.Subject()
	if err != nil {
		return h.Get("Subject")
	}
	return s
}

// firstFrom returns the first address of the From header, or an empty string.
func firstFrom(h mail.Header) string {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address
}

// normalizeText converts CRLF line endings to LF and drops trailing newlines
// left by the DATA terminator.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimRight(s, "\n")
}
