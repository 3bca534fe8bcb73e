package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shineum/smtp-discord-relay/internal/discord"
	"github.com/shineum/smtp-discord-relay/internal/metrics"
	"github.com/shineum/smtp-discord-relay/internal/provider"
)

// shutdownTimeout is the maximum time to wait for in-flight connections
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 60 * time.Second
)

// ServerConfig holds the configuration for an SMTP server.
type ServerConfig struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string

	// Hostname is announced in the greeting and EHLO responses.
	Hostname string

	// Router turns AUTH credentials into webhook endpoints.
	Router *discord.Router

	// Deliverer receives every accepted message.
	Deliverer provider.Deliverer

	// TLSConfig enables STARTTLS. If nil, STARTTLS is not advertised.
	TLSConfig *tls.Config

	// AllowInsecureAuth advertises AUTH before STARTTLS.
	AllowInsecureAuth bool

	// MaxMessageSize limits DATA in bytes. Zero means unlimited.
	MaxMessageSize int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is an SMTP server that authenticates each connection against a
// webhook endpoint and relays its messages there.
type Server struct {
	config ServerConfig
	smtp   *gosmtp.Server
	done   chan struct{}

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new SMTP Server with the given configuration.
func New(cfg ServerConfig) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.Router == nil {
		cfg.Router = discord.NewRouter("")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	s := gosmtp.NewServer(NewBackend(cfg.Router, cfg.Deliverer))
	s.Domain = cfg.Hostname
	s.MaxMessageBytes = cfg.MaxMessageSize
	s.AllowInsecureAuth = cfg.AllowInsecureAuth
	s.TLSConfig = cfg.TLSConfig
	s.ReadTimeout = cfg.ReadTimeout
	s.WriteTimeout = cfg.WriteTimeout
	s.ErrorLog = errorLogger{}

	return &Server{
		config: cfg,
		smtp:   s,
		done:   make(chan struct{}),
	}
}

// Start binds the listening socket and serves connections in the
// background. Port 0 picks a free port; see Addr.
func (s *Server) Start(port int) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = &countingListener{Listener: ln, accepted: metrics.ConnectionsTotal}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	slog.Info("SMTP server listening",
		"addr", ln.Addr().String(),
		"hostname", s.config.Hostname,
		"deliverer", s.config.Deliverer.Name(),
		"starttls", s.config.TLSConfig != nil,
		"insecure_auth", s.config.AllowInsecureAuth,
	)

	go func() {
		defer close(s.done)
		if err := s.smtp.Serve(ln); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			slog.Error("SMTP server stopped", "error", err)
		}
	}()
	return nil
}

// Stop stops accepting connections and waits for open sessions to finish
// until ctx expires, after which remaining connections are closed.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("shutting down SMTP server")

	err := s.smtp.Shutdown(ctx)
	if err != nil {
		slog.Warn("shutdown timeout reached, forcing close", "error", err)
		if cerr := s.smtp.Close(); cerr != nil && !errors.Is(cerr, gosmtp.ErrServerClosed) {
			return cerr
		}
	}
	if s.Addr() != "" {
		<-s.done
	}
	slog.Info("all sessions completed")
	return nil
}

// ListenAndServe starts the SMTP server and blocks until the context is cancelled.
// On context cancellation, it stops accepting new connections and waits up to
// 30 seconds for in-flight sessions to complete.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	if err := s.Start(port); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// countingListener counts accepted TCP connections. go-smtp opens a new
// session after STARTTLS, so sessions cannot be used for this.
type countingListener struct {
	net.Listener
	accepted prometheus.Counter
}

func (l *countingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.accepted.Inc()
	}
	return conn, err
}

// errorLogger routes go-smtp's internal errors to slog.
type errorLogger struct{}

func (errorLogger) Printf(format string, v ...interface{}) {
	slog.Error("smtp: " + fmt.Sprintf(format, v...))
}

func (errorLogger) Println(v ...interface{}) {
	slog.Error("smtp: " + fmt.Sprint(v...))
}
