// Package stdout implements a dry-run Deliverer that prints webhook payloads
// instead of sending them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/smtp-discord-relay/internal/discord"
	"github.com/shineum/smtp-discord-relay/internal/email"
)

// Provider prints the payload each notification would be posted with.
type Provider struct {
	// mu serialises writes from concurrent sessions.
	mu     sync.Mutex
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Deliver prints the webhook id and the JSON payload. The token half of the
// endpoint is not printed.
func (p *Provider) Deliver(_ context.Context, endpoint string, n *email.Notification) error {
	payload, err := discord.MarshalPayload(n)
	if err != nil {
		return fmt.Errorf("failed to render payload: %w", err)
	}

	var b strings.Builder
	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Webhook: %s\n", discord.WebhookID(endpoint)))
	b.Write(payload)
	b.WriteString("\n========================================\n")

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}
