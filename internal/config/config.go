// Package config provides the configuration schema, loader, and file watcher
// for the voxscribe streaming transcription server.
package config

import (
	"net"
	"strconv"
	"time"
)

// LogLevel controls log verbosity for the voxscribe server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxscribe.
// It starts from [Default], may be overridden by a YAML file loaded with
// [Load] or [LoadFromReader], and finally by command-line flags.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// Host is the interface the transcription listener binds to. An empty
	// string binds all interfaces.
	Host string `yaml:"host"`

	// Port is the TCP port of the transcription listener.
	Port int `yaml:"port"`

	// MetricsAddr is the listen address for the Prometheus /metrics and
	// health endpoints (e.g. ":9090"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// Addr returns the host:port the transcription listener binds to.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ModelConfig selects and locates the whisper.cpp model weights.
type ModelConfig struct {
	// Name is a whisper model size ("base.en", "large-v3") or a direct
	// path to a ggml weights file.
	Name string `yaml:"name"`

	// Dir is a directory holding the weights file. When set it overrides
	// CacheDir and the default search locations entirely.
	Dir string `yaml:"dir"`

	// CacheDir is where previously fetched weights are looked up when Dir
	// is not set.
	CacheDir string `yaml:"cache_dir"`

	// Language is the ISO code transcription is biased to (e.g. "en",
	// "cs"), or "auto" to let the model detect it.
	Language string `yaml:"language"`

	// Threads is the CPU thread count per inference pass. 0 keeps the
	// whisper.cpp default.
	Threads int `yaml:"threads"`
}

// SessionConfig tunes per-connection streaming behaviour. Changes picked up
// by the [Watcher] apply to connections accepted after the reload.
type SessionConfig struct {
	// MinChunkSec is the minimum audio duration, in seconds, accumulated
	// before each recognition pass.
	MinChunkSec float64 `yaml:"min_chunk_sec"`

	// BufferTrimSec is the audio window length, in seconds, above which
	// the recognition buffer is trimmed at a completed segment boundary.
	BufferTrimSec float64 `yaml:"buffer_trim_sec"`

	// FlushOnClose emits the engine's uncommitted hypothesis as one final
	// best-effort line when the client closes the stream.
	FlushOnClose bool `yaml:"flush_on_close"`
}

// MinChunk returns MinChunkSec as a duration.
func (s SessionConfig) MinChunk() time.Duration {
	return time.Duration(s.MinChunkSec * float64(time.Second))
}

// BufferTrim returns BufferTrimSec as a duration.
func (s SessionConfig) BufferTrim() time.Duration {
	return time.Duration(s.BufferTrimSec * float64(time.Second))
}

// Default returns the configuration used when no file or flag overrides it:
// the transcription listener on localhost:43007, the base.en model biased to
// English, 1 s minimum chunks, a 15 s trim window, and no metrics endpoint.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "localhost",
			Port:     43007,
			LogLevel: LogInfo,
		},
		Model: ModelConfig{
			Name:     "base.en",
			Language: "en",
		},
		Session: SessionConfig{
			MinChunkSec:   1.0,
			BufferTrimSec: 15,
		},
	}
}
