// Package discord routes SMTP credentials to Discord webhook endpoints and
// delivers parsed notifications to them as embeds.
package discord

import (
	"encoding/json"

	"github.com/shineum/smtp-discord-relay/internal/email"
)

// webhookPayload is the request body for a Discord webhook execution.
type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// embed carries one notification. Every field is optional and omitted from
// the JSON when unset.
type embed struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedFooter struct {
	Text *string `json:"text,omitempty"`
}

// errorResponse is the error body Discord returns on non-2xx responses.
// Message is kept raw so any present value is reported, not only strings.
type errorResponse struct {
	Message json.RawMessage `json:"message"`
}

// buildPayload maps a notification onto a single embed: subject to title,
// body to description and sender to footer text.
func buildPayload(n *email.Notification) *webhookPayload {
	e := embed{
		Title:       optional(n.Subject),
		Description: optional(n.Body),
	}
	if n.Sender != "" {
		e.Footer = &embedFooter{Text: optional(n.Sender)}
	}
	return &webhookPayload{Embeds: []embed{e}}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
