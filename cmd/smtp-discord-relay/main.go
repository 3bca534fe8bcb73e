// Package main is the entry point for the SMTP to Discord webhook relay.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/smtp-discord-relay/internal/config"
	"github.com/shineum/smtp-discord-relay/internal/discord"
	"github.com/shineum/smtp-discord-relay/internal/metrics"
	"github.com/shineum/smtp-discord-relay/internal/provider"
	"github.com/shineum/smtp-discord-relay/internal/provider/stdout"
	"github.com/shineum/smtp-discord-relay/internal/smtp"
	smtptls "github.com/shineum/smtp-discord-relay/internal/tls"
)

// levelTrace sits below slog.LevelDebug. It is accepted for SMTP_LOG_LEVEL
// and logs everything debug does; raw protocol traffic is never logged.
const levelTrace = slog.Level(-8)

func main() {
	configPath := flag.String("config", "", "path to YAML or TOML configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	// Load or generate TLS certificates
	tlsConfig, err := smtptls.LoadOrGenerateTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	tlsMode := "self-signed"
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		tlsMode = "file"
	}

	deliverer, err := selectDeliverer(cfg)
	if err != nil {
		slog.Error("failed to create deliverer", "error", err)
		os.Exit(1)
	}

	server := smtp.New(smtp.ServerConfig{
		Host:              cfg.SMTP.Host,
		Hostname:          cfg.SMTP.Hostname,
		Router:            discord.NewRouter(cfg.Webhook.BaseURL),
		Deliverer:         deliverer,
		TLSConfig:         tlsConfig,
		AllowInsecureAuth: !cfg.TLS.Enabled,
		MaxMessageSize:    cfg.SMTP.MaxMessageSize,
	})

	slog.Info("starting smtp-discord-relay",
		"listen", cfg.ListenAddr(),
		"deliverer", deliverer.Name(),
		"require_tls", cfg.TLS.Enabled,
		"tls_mode", tlsMode,
		"webhook_base_url", cfg.Webhook.BaseURL,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.ListenAndServe(ctx, cfg.Metrics.Listen); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	// Start the server (blocks until context is cancelled)
	if err := server.ListenAndServe(ctx, cfg.SMTP.Port); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("smtp-discord-relay stopped")
}

// loadConfig loads configuration from the specified path (file + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// selectDeliverer returns the dry-run printer when requested, otherwise the
// Discord webhook client.
func selectDeliverer(cfg *config.Config) (provider.Deliverer, error) {
	if cfg.Webhook.DryRun {
		slog.Info("dry run enabled, payloads are printed instead of delivered")
		return stdout.New(), nil
	}

	timeout, err := cfg.WebhookTimeout()
	if err != nil {
		return nil, err
	}
	return discord.NewClient(discord.ClientConfig{Timeout: timeout}), nil
}
