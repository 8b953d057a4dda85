// Package whispercpp implements asr.Recognizer using the whisper.cpp CGO
// bindings, running inference in-process with no transport overhead. The
// whisper.cpp static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH environment
// variables.
//
// The model weights are loaded once and shared; each Transcribe call runs on
// a fresh whisper context, so a Recognizer may serve many consecutive
// sessions without state leaking between them.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxscribe/voxscribe/pkg/asr"
)

const defaultLanguage = "en"

// Compile-time assertion that Recognizer satisfies asr.Recognizer.
var _ asr.Recognizer = (*Recognizer)(nil)

// Recognizer transcribes audio buffers with a locally loaded whisper.cpp
// model. Safe for sequential reuse across sessions; each call creates its own
// inference context.
type Recognizer struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// Option is a functional option for configuring a [Recognizer].
type Option func(*Recognizer)

// WithLanguage sets the ISO language code for transcription (e.g. "en",
// "de", "cs"). Default: "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) {
		if lang != "" {
			r.language = lang
		}
	}
}

// WithThreads sets the number of CPU threads whisper.cpp uses per inference
// pass. Default: 0, which keeps the library's own default.
func WithThreads(n uint) Option {
	return func(r *Recognizer) { r.threads = n }
}

// New loads the ggml model weights at modelPath and returns a Recognizer.
// The caller must call Close when the recognizer is no longer needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}
	r := &Recognizer{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the model weights.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Transcribe implements asr.Recognizer. It runs one full whisper.cpp pass
// over samples and returns per-token timestamps relative to the start of the
// buffer. A non-empty prompt conditions the decoder with text from before
// the buffer.
func (r *Recognizer) Transcribe(ctx context.Context, samples []float32, prompt string) (asr.Transcription, error) {
	if err := ctx.Err(); err != nil {
		return asr.Transcription{}, fmt.Errorf("whispercpp: context already cancelled: %w", err)
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := r.model.NewContext()
	if err != nil {
		return asr.Transcription{}, fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whispercpp: failed to set language, using model default",
			"language", r.language, "error", err)
	}
	wctx.SetTokenTimestamps(true)
	if r.threads > 0 {
		wctx.SetThreads(r.threads)
	}
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return asr.Transcription{}, fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var out asr.Transcription
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return asr.Transcription{}, fmt.Errorf("whispercpp: read segment: %w", err)
		}
		out.SegmentEnds = append(out.SegmentEnds, segment.End)
		for _, tok := range segment.Tokens {
			// Special tokens ([_BEG_], timestamp markers) carry no speech.
			if !wctx.IsText(tok) {
				continue
			}
			out.Tokens = append(out.Tokens, asr.TimedToken{
				Text:  tok.Text,
				Start: tok.Start,
				End:   tok.End,
			})
		}
	}
	return out, nil
}

// ResolveModel locates the ggml weights file for a model name such as
// "base.en" or "large-v3".
//
// When model is itself a path to an existing file it is returned unchanged.
// When modelDir is set, only that directory is searched; it overrides the
// cache entirely. Otherwise the search covers cacheDir (when set), ./models,
// and $HOME/.cache/whisper, in that order. The file name probed in each
// directory follows the whisper.cpp convention ggml-<model>.bin, with
// <model>.bin and the bare name accepted as fallbacks.
func ResolveModel(model, modelDir, cacheDir string) (string, error) {
	if model == "" {
		return "", errors.New("whispercpp: model name must not be empty")
	}
	if fi, err := os.Stat(model); err == nil && !fi.IsDir() {
		return model, nil
	}

	var dirs []string
	if modelDir != "" {
		dirs = []string{modelDir}
	} else {
		if cacheDir != "" {
			dirs = append(dirs, cacheDir)
		}
		dirs = append(dirs, "models")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".cache", "whisper"))
		}
	}

	names := []string{
		fmt.Sprintf("ggml-%s.bin", model),
		model + ".bin",
		model,
	}
	for _, dir := range dirs {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("whispercpp: model %q not found (searched %s)",
		model, strings.Join(dirs, ", "))
}
