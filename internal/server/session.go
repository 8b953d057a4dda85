package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/voxscribe/voxscribe/internal/observe"
	"github.com/voxscribe/voxscribe/pkg/asr"
	"github.com/voxscribe/voxscribe/pkg/audio/pcm"
)

// SessionSettings tune one client session. They are fixed for the session's
// lifetime; the server applies updated settings to the next connection.
type SessionSettings struct {
	// MinChunk is the minimum duration of audio accumulated before each
	// engine pass.
	MinChunk time.Duration

	// FlushOnClose controls whether the engine's flush step runs after the
	// client closes the stream, emitting any uncommitted tail hypothesis.
	// The tail never reached agreement, so it trades accuracy for coverage.
	FlushOnClose bool
}

// Session drives one client connection from accept to close: it accumulates
// decoded audio into engine-sized chunks, runs the engine on each chunk, and
// sends the committed segments back as transcript lines with non-overlapping
// timestamps.
//
// A Session is created fresh per connection together with a fresh engine and
// is discarded when the connection ends.
type Session struct {
	conn     *Conn
	engine   asr.Engine
	settings SessionSettings
	metrics  *observe.Metrics

	dec       pcm.Decoder
	lastEndMS int64
	emitted   bool
	linesSent int
}

// NewSession creates a session over conn driving engine. A nil metrics falls
// back to [observe.DefaultMetrics].
func NewSession(conn *Conn, engine asr.Engine, settings SessionSettings, metrics *observe.Metrics) *Session {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Session{
		conn:     conn,
		engine:   engine,
		settings: settings,
		metrics:  metrics,
	}
}

// Run services the connection until the client disconnects or the session
// fails. The returned error is nil for every expected termination, including
// the peer vanishing mid-write; a non-nil error means the session was
// aborted (malformed audio or an engine failure) and says why. Errors never
// escape to the accept loop as fatal conditions.
func (s *Session) Run(ctx context.Context) error {
	start := time.Now()
	outcome, err := s.run(ctx)
	s.metrics.RecordSession(ctx, outcome)
	s.metrics.SessionDuration.Record(ctx, time.Since(start).Seconds())
	return err
}

func (s *Session) run(ctx context.Context) (string, error) {
	for {
		chunk, err := s.receiveChunk(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.finish(ctx)
				return observe.OutcomeOK, nil
			}
			return observe.OutcomeDecodeError, err
		}

		t0 := time.Now()
		seg, ok, err := s.engine.Push(ctx, chunk)
		s.metrics.RecordEnginePass(ctx, "push", time.Since(t0).Seconds())
		if err != nil {
			return observe.OutcomeEngineError, fmt.Errorf("server: engine push: %w", err)
		}
		if !ok {
			continue
		}

		sent, err := s.conn.Send(s.formatLine(seg))
		if err != nil {
			if isClosed(err) {
				return observe.OutcomeWriteError, nil
			}
			return observe.OutcomeWriteError, fmt.Errorf("server: send segment: %w", err)
		}
		if sent {
			s.linesSent++
			s.metrics.SegmentsEmitted.Add(ctx, 1)
		}
	}
}

// receiveChunk gathers decoded samples until at least MinChunk of audio is
// buffered, but always at least one sample, or until the peer stops sending.
// A stream that ends with samples already gathered yields that final short
// chunk; the end itself surfaces as io.EOF on the following call. A stream
// that ends in the middle of a sample fails with an error wrapping
// pcm.ErrTruncated.
func (s *Session) receiveChunk(ctx context.Context) ([]float32, error) {
	var chunk []float32
	target := pcm.SampleCount(s.settings.MinChunk)
	for len(chunk) == 0 || len(chunk) < target {
		raw, err := s.conn.ReceiveAudio()
		if err != nil {
			if !isClosed(err) {
				observe.Logger(ctx).Warn("audio receive failed", "err", err)
			}
			if cerr := s.dec.Close(); cerr != nil {
				return nil, fmt.Errorf("server: decode audio: %w", cerr)
			}
			break
		}
		s.metrics.AudioBytes.Add(ctx, int64(len(raw)))
		chunk = append(chunk, s.dec.Decode(raw)...)
	}
	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

// finish runs the engine's flush step after a graceful close, when enabled.
// The connection may already be unusable, so every failure here is logged
// and otherwise ignored.
func (s *Session) finish(ctx context.Context) {
	if !s.settings.FlushOnClose {
		return
	}
	t0 := time.Now()
	seg, ok, err := s.engine.Flush(ctx)
	s.metrics.RecordEnginePass(ctx, "flush", time.Since(t0).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("engine flush failed", "err", err)
		return
	}
	if !ok {
		return
	}
	sent, err := s.conn.Send(s.formatLine(seg))
	if err != nil {
		observe.Logger(ctx).Debug("flush segment not delivered", "err", err)
		return
	}
	if sent {
		s.linesSent++
		s.metrics.SegmentsEmitted.Add(ctx, 1)
	}
}

// formatLine renders seg as its wire line and advances the non-overlap
// floor. The start is clamped up to the previous segment's raw end so
// successive intervals never overlap; the recorded floor is always the raw,
// unclamped end.
func (s *Session) formatLine(seg asr.Segment) string {
	beg := seg.Start.Round(time.Millisecond).Milliseconds()
	end := seg.End.Round(time.Millisecond).Milliseconds()
	if s.emitted && beg < s.lastEndMS {
		beg = s.lastEndMS
	}
	s.lastEndMS = end
	s.emitted = true
	return fmt.Sprintf("%d %d %s", beg, end, seg.Text)
}

// LinesSent returns the number of transcript lines delivered to the peer.
func (s *Session) LinesSent() int {
	return s.linesSent
}
