package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/smtp-discord-relay/internal/discord"
	"github.com/shineum/smtp-discord-relay/internal/metrics"
	"github.com/shineum/smtp-discord-relay/internal/parser"
	"github.com/shineum/smtp-discord-relay/internal/provider"
)

// sessionState tracks where a connection is in its lifecycle.
type sessionState int

const (
	stateConnected sessionState = iota
	stateAuthenticated
	stateReceivingData
	stateDelivering
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateAuthenticated:
		return "authenticated"
	case stateReceivingData:
		return "receiving_data"
	case stateDelivering:
		return "delivering"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Replies sent to the client. None of them name the component that failed.
var (
	errAuthInvalid = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication credentials invalid",
	}
	errAlreadyAuthenticated = &gosmtp.SMTPError{
		Code:         503,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "Already authenticated",
	}
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errMessageMalformed = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "Message rejected",
	}
	errMessageRejected = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 0, 0},
		Message:      "Message rejected",
	}
	errTemporaryFailure = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary failure, please try again later",
	}
)

// Backend creates a Session for every accepted connection.
type Backend struct {
	router    *discord.Router
	deliverer provider.Deliverer

	// nextID numbers sessions for log correlation.
	nextID atomic.Uint64
}

// NewBackend creates a Backend that authenticates with router and hands
// parsed messages to deliverer.
func NewBackend(router *discord.Router, deliverer provider.Deliverer) *Backend {
	return &Backend{
		router:    router,
		deliverer: deliverer,
	}
}

// NewSession implements gosmtp.Backend.
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		backend: b,
		id:      b.nextID.Add(1),
		remote:  c.Conn().RemoteAddr().String(),
		state:   stateConnected,
		ctx:     ctx,
		cancel:  cancel,
	}

	metrics.SessionsCurrent.Inc()
	s.logger().Debug("session started")

	return s, nil
}

// Session holds the state of one SMTP connection. go-smtp drives it from a
// single goroutine, so no locking is needed; nothing in it is shared with
// other sessions.
type Session struct {
	backend *Backend
	id      uint64
	remote  string
	state   sessionState

	// endpoint is bound once by a successful AUTH and never changes.
	endpoint string

	// Current transaction
	mailFrom string
	rcptTo   []string

	ctx    context.Context
	cancel context.CancelFunc
}

var _ gosmtp.AuthSession = (*Session)(nil)

// AuthMechanisms implements gosmtp.AuthSession.
func (s *Session) AuthMechanisms() []string {
	return []string{sasl.Plain, mechLogin}
}

// Auth implements gosmtp.AuthSession.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	switch mech {
	case sasl.Plain:
		return sasl.NewPlainServer(func(_, username, password string) error {
			return s.authenticate(mech, username, password)
		}), nil
	case mechLogin:
		return newLoginServer(func(username, password string) error {
			return s.authenticate(mech, username, password)
		}), nil
	default:
		return nil, gosmtp.ErrAuthUnsupported
	}
}

// authenticate resolves the credentials and binds the resulting endpoint.
func (s *Session) authenticate(mech, username, password string) error {
	log := s.logger().With("mechanism", mech, "username", username)

	if s.endpoint != "" {
		log.Warn("rejecting second authentication on session")
		return errAlreadyAuthenticated
	}

	endpoint, err := s.backend.router.Resolve(username, password)
	if err != nil {
		metrics.AuthenticationAttempts.WithLabelValues(mech, "failure").Inc()
		log.Warn("authentication rejected", "error", err)
		return errAuthInvalid
	}

	s.endpoint = endpoint
	s.state = stateAuthenticated
	metrics.AuthenticationAttempts.WithLabelValues(mech, "success").Inc()
	log.Debug("authenticated", "webhook_id", discord.WebhookID(endpoint))
	return nil
}

// Mail implements gosmtp.Session.
func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.endpoint == "" {
		return errAuthRequired
	}
	s.mailFrom = from
	s.logger().Debug("received MAIL FROM", "from", from)
	return nil
}

// Rcpt implements gosmtp.Session. Recipients do not affect routing.
func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.endpoint == "" {
		return errAuthRequired
	}
	s.rcptTo = append(s.rcptTo, to)
	return nil
}

// Data implements gosmtp.Session. It parses the message and performs exactly
// one delivery; any failure is returned as a transfer rejection and the
// session stays authenticated.
func (s *Session) Data(r io.Reader) error {
	if s.endpoint == "" {
		return errAuthRequired
	}

	log := s.logger().With("from", s.mailFrom)
	deliverer := s.backend.deliverer.Name()

	s.state = stateReceivingData
	msg, err := parser.Extract(r)
	if err != nil {
		s.state = stateAuthenticated

		var smtpErr *gosmtp.SMTPError
		if errors.As(err, &smtpErr) {
			log.Warn("message transfer aborted", "error", err)
			return smtpErr
		}

		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) {
			metrics.MessagesTotal.WithLabelValues(deliverer, "parse_error").Inc()
			log.Error("failed to parse message", "error", err)
			return errMessageMalformed
		}

		log.Error("failed to read message", "error", err)
		return errTemporaryFailure
	}

	if s.mailFrom != "" {
		msg.Sender = s.mailFrom
	}
	log.Debug("parsed message", "subject", msg.Subject)

	s.state = stateDelivering
	start := time.Now()
	err = s.backend.deliverer.Deliver(s.ctx, s.endpoint, msg)
	metrics.DeliveryDuration.WithLabelValues(deliverer).Observe(time.Since(start).Seconds())
	s.state = stateAuthenticated

	if err != nil {
		metrics.MessagesTotal.WithLabelValues(deliverer, "delivery_error").Inc()
		log.Error("delivery failed",
			"deliverer", deliverer,
			"webhook_id", discord.WebhookID(s.endpoint),
			"error", err,
		)
		return deliveryReply(err)
	}

	metrics.MessagesTotal.WithLabelValues(deliverer, "delivered").Inc()
	log.Info("message delivered",
		"deliverer", deliverer,
		"webhook_id", discord.WebhookID(s.endpoint),
		"recipients", len(s.rcptTo),
		"duration", time.Since(start),
	)
	return nil
}

// Reset implements gosmtp.Session. It clears the transaction but keeps the
// bound endpoint.
func (s *Session) Reset() {
	s.mailFrom = ""
	s.rcptTo = nil
	if s.endpoint != "" {
		s.state = stateAuthenticated
	} else {
		s.state = stateConnected
	}
}

// Logout implements gosmtp.Session.
func (s *Session) Logout() error {
	s.logger().Debug("connection closed")
	s.state = stateClosed
	s.endpoint = ""
	s.mailFrom = ""
	s.rcptTo = nil
	s.cancel()
	metrics.SessionsCurrent.Dec()
	return nil
}

func (s *Session) logger() *slog.Logger {
	return slog.With("session_id", s.id, "remote", s.remote, "state", s.state.String())
}

// deliveryReply maps a delivery error onto the reply sent to the client.
// Transport faults, rate limiting and server errors are temporary.
func deliveryReply(err error) *gosmtp.SMTPError {
	var delErr *discord.DeliveryError
	if errors.As(err, &delErr) && delErr.Temporary() {
		return errTemporaryFailure
	}
	return errMessageRejected
}
