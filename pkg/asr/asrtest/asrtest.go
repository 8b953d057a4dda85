// Package asrtest provides test doubles for the asr package interfaces.
//
// Use Engine to script the segment sequence a session under test observes
// and to inspect which audio chunks were pushed.
//
// Example:
//
//	eng := &asrtest.Engine{Results: []asrtest.Result{
//	    {Segment: asr.Segment{End: time.Second, Text: "hello"}, OK: true},
//	}}
//	// hand eng to the code under test, then inspect eng.PushCalls
package asrtest

import (
	"context"
	"slices"
	"sync"

	"github.com/voxscribe/voxscribe/pkg/asr"
)

// Result is one scripted outcome of an Engine call.
type Result struct {
	Segment asr.Segment
	OK      bool
	Err     error
}

// PushCall records a single invocation of Engine.Push.
type PushCall struct {
	// Chunk is a copy of the samples passed to Push.
	Chunk []float32
}

// Engine is a scripted implementation of asr.Engine.
type Engine struct {
	mu sync.Mutex

	// Results are returned by successive Push calls in order. Once
	// exhausted, Push reports an absent result.
	Results []Result

	// FlushResult is returned by every Flush call.
	FlushResult Result

	// PushCalls records every call to Push in order.
	PushCalls []PushCall

	// FlushCallCount is the number of times Flush was called.
	FlushCallCount int

	next int
}

// Push records the call and returns the next scripted Result.
func (e *Engine) Push(ctx context.Context, chunk []float32) (asr.Segment, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]float32, len(chunk))
	copy(cp, chunk)
	e.PushCalls = append(e.PushCalls, PushCall{Chunk: cp})
	if e.next >= len(e.Results) {
		return asr.Segment{}, false, nil
	}
	res := e.Results[e.next]
	e.next++
	return res.Segment, res.OK, res.Err
}

// Flush records the call and returns FlushResult.
func (e *Engine) Flush(ctx context.Context) (asr.Segment, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FlushCallCount++
	return e.FlushResult.Segment, e.FlushResult.OK, e.FlushResult.Err
}

// Pushes returns a snapshot of all recorded Push calls. Thread-safe.
func (e *Engine) Pushes() []PushCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.PushCalls)
}

// PushedSamples returns the total number of samples delivered across all
// Push calls. Thread-safe.
func (e *Engine) PushedSamples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.PushCalls {
		n += len(c.Chunk)
	}
	return n
}

// ResetCalls clears all recorded calls and rewinds the script. Thread-safe.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PushCalls = nil
	e.FlushCallCount = 0
	e.next = 0
}

// Ensure Engine implements asr.Engine at compile time.
var _ asr.Engine = (*Engine)(nil)
