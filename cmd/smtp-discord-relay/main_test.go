package main

import (
	"log/slog"
	"testing"

	"github.com/shineum/smtp-discord-relay/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  slog.Level
	}{
		{"trace", levelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.level); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSelectDeliverer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		webhook config.WebhookConfig
		want    string
		wantErr bool
	}{
		{"dry run", config.WebhookConfig{DryRun: true}, "stdout", false},
		{"discord", config.WebhookConfig{Timeout: "5s"}, "discord", false},
		{"bad timeout", config.WebhookConfig{Timeout: "soon"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := selectDeliverer(&config.Config{Webhook: tt.webhook})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", d.Name(), tt.want)
			}
		})
	}
}
