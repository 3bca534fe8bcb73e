package discord

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultWebhookBaseURL is the URL prefix every routing endpoint is built on.
const DefaultWebhookBaseURL = "https://discord.com/api/webhooks"

// ErrMissingCredential is returned when the username or password presented
// during SMTP authentication is empty.
var ErrMissingCredential = errors.New("missing credential")

// Router turns SMTP credentials into a webhook endpoint. The username is the
// webhook id and the password is the webhook token.
type Router struct {
	baseURL string
}

// NewRouter creates a Router rooted at baseURL. An empty baseURL selects
// DefaultWebhookBaseURL.
func NewRouter(baseURL string) *Router {
	if baseURL == "" {
		baseURL = DefaultWebhookBaseURL
	}
	return &Router{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve returns the webhook endpoint for the given credentials. It performs
// no I/O and always yields the same endpoint for the same input.
//
// Each credential is path-escaped into a single segment, so a client cannot
// steer the request to another path or host under the base URL.
func (r *Router) Resolve(username, password string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: username is required", ErrMissingCredential)
	}
	if password == "" {
		return "", fmt.Errorf("%w: password is required", ErrMissingCredential)
	}

	return r.baseURL + "/" + url.PathEscape(username) + "/" + url.PathEscape(password), nil
}

// WebhookID extracts the webhook id from an endpoint built by Resolve, for
// logging without exposing the token.
func WebhookID(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	i := strings.LastIndex(trimmed, "/")
	if i <= 0 {
		return ""
	}
	rest := trimmed[:i]
	j := strings.LastIndex(rest, "/")
	if j < 0 {
		return rest
	}
	return rest[j+1:]
}
