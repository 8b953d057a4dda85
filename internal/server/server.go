package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/voxscribe/voxscribe/internal/observe"
	"github.com/voxscribe/voxscribe/pkg/asr"
)

// EngineFactory constructs a fresh engine session. It is called once per
// accepted connection, so every client starts from empty engine state.
type EngineFactory func() asr.Engine

// Config holds the dependencies and settings for a [Server].
type Config struct {
	// Addr is the TCP listen address, e.g. "localhost:43007".
	Addr string

	// NewEngine constructs the per-session recognition engine. Required.
	NewEngine EngineFactory

	// Settings are the initial per-session settings. UpdateSettings may
	// replace them while the server runs.
	Settings SessionSettings

	// Metrics receives instrument updates. Nil falls back to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server accepts transcription clients on a TCP listener and services them
// strictly one at a time: the accept loop does not take the next connection
// until the current session has ended. Clients connecting in the meantime
// wait in the OS accept backlog. The engine is a heavyweight resource that
// is not safe for concurrent sessions, so serialization is the contract
// here, not an implementation accident.
type Server struct {
	addr      string
	newEngine EngineFactory
	metrics   *observe.Metrics

	mu       sync.Mutex
	settings SessionSettings
	ln       net.Listener
	active   net.Conn

	ready chan struct{}
}

// New creates a Server from cfg. It fails when no engine factory is
// configured; the listen address is validated when Serve binds it.
func New(cfg Config) (*Server, error) {
	if cfg.NewEngine == nil {
		return nil, fmt.Errorf("server: config has no engine factory")
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{
		addr:      cfg.Addr,
		newEngine: cfg.NewEngine,
		metrics:   m,
		settings:  cfg.Settings,
		ready:     make(chan struct{}),
	}, nil
}

// UpdateSettings replaces the per-session settings. A live session keeps the
// settings it started with; the next accepted connection picks these up.
func (s *Server) UpdateSettings(settings SessionSettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// Ready returns a channel that is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Serve has bound it.
// Useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve binds the listener and runs the accept loop until ctx is cancelled.
// A bind failure is returned immediately; it is not recoverable without
// operator intervention. Serve returns nil on cancellation. It may be called
// at most once.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	close(s.ready)

	// Cancellation closes the listener and any live connection; the blocked
	// Accept and session reads fail over to their closed-connection paths.
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.mu.Lock()
		if s.active != nil {
			s.active.Close()
		}
		s.mu.Unlock()
	})
	defer stop()
	defer ln.Close()

	slog.Info("listening for audio clients", "addr", ln.Addr().String())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("accept loop stopped")
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.handle(ctx, nc)
	}
}

// handle services one accepted connection to completion.
func (s *Server) handle(ctx context.Context, nc net.Conn) {
	remote := nc.RemoteAddr().String()
	ctx, span := observe.StartSpan(ctx, "session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(observe.Attr("remote", remote)),
	)
	defer span.End()
	log := observe.Logger(ctx)

	s.mu.Lock()
	s.active = nc
	settings := s.settings
	s.mu.Unlock()

	// The shutdown hook may have fired between Accept and the registration
	// above, missing this connection.
	if ctx.Err() != nil {
		nc.Close()
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
		return
	}

	s.metrics.ActiveSessions.Add(ctx, 1)
	start := time.Now()
	log.Info("client connected", "remote", remote)

	sess := NewSession(NewConn(nc), s.newEngine(), settings, s.metrics)
	err := sess.Run(ctx)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	nc.Close()
	s.metrics.ActiveSessions.Add(ctx, -1)

	if err != nil {
		log.Error("session aborted", "remote", remote, "err", err)
	}
	log.Info("client disconnected",
		"remote", remote,
		"lines", sess.LinesSent(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
}
