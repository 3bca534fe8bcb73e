package parser

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestParsePlainTextEmail(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: Monitor <monitor@host>",
		"To: ops@example.com",
		"Subject: Alert",
		"Content-Type: text/plain",
		"",
		"Disk full",
		"",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Sender != "monitor@host" {
		t.Errorf("Sender: got %q, want %q", msg.Sender, "monitor@host")
	}
	if msg.Subject != "Alert" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Alert")
	}
	if msg.Body != "Disk full" {
		t.Errorf("Body: got %q, want %q", msg.Body, "Disk full")
	}
}

func TestParseNoSubject(t *testing.T) {
	t.Parallel()

	raw := []byte("From: monitor@host\r\n\r\nNo subject here\r\n")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "" {
		t.Errorf("Subject: got %q, want empty", msg.Subject)
	}
	if msg.Body != "No subject here" {
		t.Errorf("Body: got %q, want %q", msg.Body, "No subject here")
	}
}

func TestParseNoBody(t *testing.T) {
	t.Parallel()

	raw := []byte("Subject: Heartbeat\r\n\r\n")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Heartbeat" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Heartbeat")
	}
	if msg.Body != "" {
		t.Errorf("Body: got %q, want empty", msg.Body)
	}
	if msg.Sender != "" {
		t.Errorf("Sender: got %q, want empty", msg.Sender)
	}
}

func TestParseMultipartPrefersPlainText(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"Subject: Multipart Test",
		"Content-Type: multipart/alternative; boundary=boundary123",
		"",
		"--boundary123",
		"Content-Type: text/html",
		"",
		"<html><body><p>HTML body</p></body></html>",
		"--boundary123",
		"Content-Type: text/plain",
		"",
		"Plain text body",
		"--boundary123--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body != "Plain text body" {
		t.Errorf("Body: got %q, want %q", msg.Body, "Plain text body")
	}
}

func TestParseHTMLOnlyFallsBackToText(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"Subject: HTML only",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>Disk <b>full</b></p></body></html>",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg.Body, "Disk full") {
		t.Errorf("Body: got %q, want it to contain %q", msg.Body, "Disk full")
	}
	if strings.Contains(msg.Body, "<") {
		t.Errorf("Body still contains markup: %q", msg.Body)
	}
}

func TestParseTransferEncodings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		encoding string
		body     string
		want     string
	}{
		{
			name:     "quoted-printable",
			encoding: "quoted-printable",
			body:     "Usage=3D100% on =\r\n/var",
			want:     "Usage=100% on /var",
		},
		{
			name:     "base64",
			encoding: "base64",
			body:     "RGlzayBmdWxsIG9uIC92YXINCg==",
			want:     "Disk full on /var",
		},
		{
			name:     "7bit",
			encoding: "7bit",
			body:     "Disk full",
			want:     "Disk full",
		},
		{
			name:     "unknown encoding kept raw",
			encoding: "x-weird",
			body:     "Disk full on /var",
			want:     "Disk full on /var",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raw := []byte(strings.Join([]string{
				"Subject: Encoded",
				"Content-Type: text/plain; charset=utf-8",
				"Content-Transfer-Encoding: " + tt.encoding,
				"",
				tt.body,
			}, "\r\n"))

			msg, err := Parse(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Body != tt.want {
				t.Errorf("Body: got %q, want %q", msg.Body, tt.want)
			}
		})
	}
}

func TestParseEncodedWordSubject(t *testing.T) {
	t.Parallel()

	raw := []byte("Subject: =?UTF-8?B?QWxlcnQg4pyT?=\r\n\r\nbody\r\n")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Alert ✓" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Alert ✓")
	}
}

func TestParseSkipsAttachments(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"Subject: Report",
		"Content-Type: multipart/mixed; boundary=mixed",
		"",
		"--mixed",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=\"report.pdf\"",
		"Content-Transfer-Encoding: base64",
		"",
		"cGRmLWNvbnRlbnQ=",
		"--mixed",
		"Content-Type: text/plain",
		"",
		"See attached",
		"--mixed--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body != "See attached" {
		t.Errorf("Body: got %q, want %q", msg.Body, "See attached")
	}
}

func TestParseNestedMultipart(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"Subject: Nested",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Nested plain",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>Nested html</p>",
		"--inner--",
		"--outer--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body != "Nested plain" {
		t.Errorf("Body: got %q, want %q", msg.Body, "Nested plain")
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "truncated multipart",
			raw: strings.Join([]string{
				"Subject: Broken",
				"Content-Type: multipart/mixed; boundary=abc",
				"",
				"--abc",
				"Content-Type: text/plain",
				"",
				"this part never ends",
			}, "\r\n"),
		},
		{
			name: "header line without colon",
			raw:  "Subject: ok\r\nthis is not a header\r\n\r\nbody\r\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := Parse([]byte(tt.raw))
			if err == nil {
				t.Fatalf("expected error, got message %+v", msg)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("error type: got %T, want *ParseError", err)
			}
		})
	}
}

func TestExtractReassemblesChunks(t *testing.T) {
	t.Parallel()

	raw := "From: monitor@host\r\nSubject: Alert\r\n\r\nDisk full\r\n"

	msg, err := Extract(iotest.OneByteReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Alert" || msg.Body != "Disk full" || msg.Sender != "monitor@host" {
		t.Errorf("got %+v", msg)
	}
}

func TestExtractReadError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("Subject: x\r\n"), iotest.ErrReader(readErr))

	_, err := Extract(r)
	if !errors.Is(err, readErr) {
		t.Fatalf("error: got %v, want %v", err, readErr)
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		t.Error("stream read failure must not be reported as a parse error")
	}
}
