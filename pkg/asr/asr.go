// Package asr defines the incremental speech-recognition contract consumed by
// the streaming server and provides OnlineProcessor, an Engine that turns any
// batch Recognizer into an incremental transcriber.
//
// The central abstraction is Engine: a stateful session that accepts appended
// audio and, on each call, either commits a timed transcript segment or
// reports that nothing is ready yet. One Engine instance serves exactly one
// audio stream; engines are not safe for concurrent use and are never reused
// across streams.
//
// OnlineProcessor implements Engine on top of a whole-buffer Recognizer using
// local agreement: a token is committed once two consecutive recognition
// passes over the growing audio buffer agree on it. Committed text scrolled
// out of the buffer is carried back into the recognizer as a prompt so
// transcription stays coherent across buffer trims.
package asr

import (
	"context"
	"strings"
	"time"
)

// Segment is a committed span of transcript text with its position in the
// stream. Times are relative to the start of the audio stream.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Engine is a stateful incremental transcriber for a single audio stream.
//
// Implementations are not required to be safe for concurrent use; the caller
// owns the instance and calls it from one goroutine.
type Engine interface {
	// Push appends chunk to the engine's internal audio buffer and runs one
	// incremental recognition step. It returns the newly committed segment
	// and true, or ok=false when no text could be committed yet. A frequent
	// ok=false is normal while the engine waits for more audio.
	Push(ctx context.Context, chunk []float32) (Segment, bool, error)

	// Flush returns any remaining uncommitted hypothesis once the stream has
	// ended. The text is a best guess that never reached agreement; callers
	// that need only confirmed output may skip Flush entirely.
	Flush(ctx context.Context) (Segment, bool, error)
}

// TimedToken is one recognized token with timestamps relative to the start of
// the transcribed buffer. Text keeps whatever surrounding whitespace the
// recognizer produced, so concatenating token texts reconstructs the
// transcript verbatim.
type TimedToken struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Transcription is the result of one whole-buffer recognition pass.
type Transcription struct {
	// Tokens are all recognized tokens in stream order.
	Tokens []TimedToken

	// SegmentEnds are the end timestamps of the recognizer's natural
	// segments (usually sentence-ish units), in ascending order. They guide
	// buffer trimming; an implementation that cannot report them may leave
	// this nil, which disables trimming at segment boundaries.
	SegmentEnds []time.Duration
}

// Recognizer transcribes a complete audio buffer in one pass. It is the
// batch backend under OnlineProcessor.
//
// The prompt is transcript text from before the start of samples; recognizers
// that support conditioning use it to keep context across buffer trims, others
// may ignore it.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, prompt string) (Transcription, error)
}

// joinTokens concatenates raw token texts and trims the surrounding
// whitespace, reconstructing the transcript the way the recognizer spaced it.
func joinTokens(tokens []TimedToken) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return strings.TrimSpace(b.String())
}

// segmentFrom folds committed tokens into one Segment. It reports ok=false
// for an empty token run or one whose text trims to nothing.
func segmentFrom(tokens []TimedToken) (Segment, bool) {
	if len(tokens) == 0 {
		return Segment{}, false
	}
	text := joinTokens(tokens)
	if text == "" {
		return Segment{}, false
	}
	return Segment{
		Start: tokens[0].Start,
		End:   tokens[len(tokens)-1].End,
		Text:  text,
	}, true
}
