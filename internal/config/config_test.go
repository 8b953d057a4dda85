package config_test

import (
	"testing"
	"time"

	"github.com/voxscribe/voxscribe/internal/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	if got := cfg.Server.Addr(); got != "localhost:43007" {
		t.Errorf("Server.Addr() = %q; want %q", got, "localhost:43007")
	}
	if cfg.Server.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q; want disabled by default", cfg.Server.MetricsAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q; want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Model.Name != "base.en" {
		t.Errorf("Model.Name = %q; want %q", cfg.Model.Name, "base.en")
	}
	if cfg.Model.Language != "en" {
		t.Errorf("Model.Language = %q; want %q", cfg.Model.Language, "en")
	}
	if cfg.Session.MinChunkSec != 1.0 {
		t.Errorf("MinChunkSec = %v; want 1.0", cfg.Session.MinChunkSec)
	}
	if cfg.Session.BufferTrimSec != 15 {
		t.Errorf("BufferTrimSec = %v; want 15", cfg.Session.BufferTrimSec)
	}
	if cfg.Session.FlushOnClose {
		t.Error("FlushOnClose = true; want false by default")
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{"localhost", "localhost", 43007, "localhost:43007"},
		{"all interfaces", "", 9000, ":9000"},
		{"ipv6", "::1", 43007, "[::1]:43007"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.ServerConfig{Host: tt.host, Port: tt.port}
			if got := s.Addr(); got != tt.want {
				t.Errorf("Addr() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestSessionConfig_Durations(t *testing.T) {
	t.Parallel()
	s := config.SessionConfig{MinChunkSec: 1.5, BufferTrimSec: 22.5}
	if got := s.MinChunk(); got != 1500*time.Millisecond {
		t.Errorf("MinChunk() = %v; want 1.5s", got)
	}
	if got := s.BufferTrim(); got != 22500*time.Millisecond {
		t.Errorf("BufferTrim() = %v; want 22.5s", got)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q reported invalid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO", "bananas"} {
		if l.IsValid() {
			t.Errorf("%q reported valid", l)
		}
	}
}
