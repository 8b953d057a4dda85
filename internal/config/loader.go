package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidModelNames lists the whisper.cpp model sizes with published ggml
// weights. Used by [Validate] to warn about likely typos; unknown names are
// allowed because model.name may also be a path to a custom weights file.
var ValidModelNames = []string{
	"tiny.en", "tiny",
	"base.en", "base",
	"small.en", "small",
	"medium.en", "medium",
	"large-v1", "large-v2", "large-v3", "large-v3-turbo",
}

// Load reads the YAML configuration file at path, overlays it on base, and
// returns the validated result. base is not modified; pass [Default]() for
// the usual starting point. Keys absent from the file keep base's values.
func Load(path string, base *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, base)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of base and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader, base *Config) (*Config, error) {
	cfg := &Config{}
	if base != nil {
		*cfg = *base
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Host == "" {
		slog.Warn("server.host is empty; the transcription listener will bind all interfaces")
	}

	// Model
	if cfg.Model.Name == "" {
		errs = append(errs, errors.New("model.name is required"))
	} else {
		validateModelName(cfg.Model.Name)
	}
	if cfg.Model.Threads < 0 {
		errs = append(errs, fmt.Errorf("model.threads %d must not be negative", cfg.Model.Threads))
	}

	// Session
	if cfg.Session.MinChunkSec <= 0 {
		errs = append(errs, fmt.Errorf("session.min_chunk_sec %.2f must be positive", cfg.Session.MinChunkSec))
	}
	if cfg.Session.BufferTrimSec <= 0 {
		errs = append(errs, fmt.Errorf("session.buffer_trim_sec %.2f must be positive", cfg.Session.BufferTrimSec))
	}
	if cfg.Session.MinChunkSec > 0 && cfg.Session.BufferTrimSec > 0 &&
		cfg.Session.BufferTrimSec < cfg.Session.MinChunkSec {
		slog.Warn("session.buffer_trim_sec is shorter than session.min_chunk_sec; the audio window will be trimmed on almost every pass",
			"buffer_trim_sec", cfg.Session.BufferTrimSec,
			"min_chunk_sec", cfg.Session.MinChunkSec,
		)
	}

	return errors.Join(errs...)
}

// validateModelName logs a warning if name is not a known model size and does
// not look like a file path.
func validateModelName(name string) {
	if slices.Contains(ValidModelNames, name) {
		return
	}
	if _, err := os.Stat(name); err == nil {
		return
	}
	slog.Warn("unknown model name — may be a typo or a custom weights file",
		"name", name,
		"known", ValidModelNames,
	)
}
