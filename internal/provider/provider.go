// Package provider defines the interface for notification delivery backends.
package provider

import (
	"context"

	"github.com/shineum/smtp-discord-relay/internal/email"
)

// Deliverer is the interface that notification backends must implement.
// The SMTP session calls Deliver once per accepted message.
type Deliverer interface {
	// Deliver sends n to the routing endpoint bound to the session.
	// It returns an error if the delivery fails; it must not retry.
	Deliver(ctx context.Context, endpoint string, n *email.Notification) error

	// Name returns the human-readable name of this deliverer.
	Name() string
}
