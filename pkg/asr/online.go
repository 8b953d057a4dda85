package asr

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/voxscribe/voxscribe/pkg/audio/pcm"
)

const (
	defaultTrimWindow = 15 * time.Second
	defaultPromptSize = 200
)

// Option is a functional option for configuring an [OnlineProcessor].
type Option func(*OnlineProcessor)

// WithTrimWindow sets how much buffered audio accumulates before the
// processor trims the window at a completed segment boundary. Larger windows
// give the recognizer more context at the cost of per-pass latency.
// Default: 15s.
func WithTrimWindow(d time.Duration) Option {
	return func(p *OnlineProcessor) {
		p.trimWindow = d
	}
}

// WithPromptSize sets the maximum number of characters of scrolled-out
// committed text passed back to the recognizer as conditioning prompt.
// Default: 200.
func WithPromptSize(chars int) Option {
	return func(p *OnlineProcessor) {
		p.promptSize = chars
	}
}

// OnlineProcessor turns a batch [Recognizer] into an incremental [Engine].
//
// Each Push appends audio to a growing window and re-transcribes the whole
// window. Tokens are committed by local agreement: only the prefix on which
// the current and the previous pass agree is released, so text is never
// retracted once emitted. When the window exceeds the trim threshold it is
// cut at the most recent completed segment boundary that lies inside the
// committed region, and the cut-off committed text feeds back into the
// recognizer as a prompt.
//
// One OnlineProcessor serves one audio stream. Not safe for concurrent use.
type OnlineProcessor struct {
	rec        Recognizer
	trimWindow time.Duration
	promptSize int

	audio     []float32
	offset    time.Duration // stream time of audio[0]
	hyp       hypothesisBuffer
	committed []TimedToken // committed history, pruned to what prompt needs
}

var _ Engine = (*OnlineProcessor)(nil)

// NewOnlineProcessor returns an [OnlineProcessor] reading from rec,
// configured with the supplied options.
func NewOnlineProcessor(rec Recognizer, opts ...Option) *OnlineProcessor {
	p := &OnlineProcessor{
		rec:        rec,
		trimWindow: defaultTrimWindow,
		promptSize: defaultPromptSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Push implements [Engine]. It appends chunk to the audio window, runs one
// recognition pass over the whole window and returns the tokens newly
// committed by agreement with the previous pass, folded into one segment.
func (p *OnlineProcessor) Push(ctx context.Context, chunk []float32) (Segment, bool, error) {
	p.audio = append(p.audio, chunk...)

	res, err := p.rec.Transcribe(ctx, p.audio, p.prompt())
	if err != nil {
		return Segment{}, false, fmt.Errorf("asr: transcribe %v window: %w", pcm.Duration(len(p.audio)).Round(time.Millisecond), err)
	}

	p.hyp.insert(res.Tokens, p.offset)
	committed := p.hyp.commit()
	p.committed = append(p.committed, committed...)

	if pcm.Duration(len(p.audio)) > p.trimWindow {
		p.trimCompletedSegment(res.SegmentEnds)
	}

	return segmentFrom(committed)
}

// Flush implements [Engine]. It returns the hypothesis tail left after the
// final pass without running the recognizer again. The processor is spent
// afterwards; further calls report nothing.
func (p *OnlineProcessor) Flush(ctx context.Context) (Segment, bool, error) {
	seg, ok := segmentFrom(p.hyp.tail())
	p.offset += pcm.Duration(len(p.audio))
	p.audio = nil
	p.hyp.prev = nil
	return seg, ok, nil
}

// BufferedAudio returns the play time of audio currently held in the window.
func (p *OnlineProcessor) BufferedAudio() time.Duration {
	return pcm.Duration(len(p.audio))
}

// prompt assembles up to promptSize characters of committed text that has
// scrolled out of the audio window, oldest first.
func (p *OnlineProcessor) prompt() string {
	k := len(p.committed)
	for k > 0 && p.committed[k-1].End > p.offset {
		k--
	}
	var parts []string
	chars := 0
	for i := k - 1; i >= 0 && chars < p.promptSize; i-- {
		parts = append(parts, p.committed[i].Text)
		chars += len(p.committed[i].Text) + 1
	}
	slices.Reverse(parts)
	return strings.Join(parts, "")
}

// trimCompletedSegment cuts the window at the latest segment boundary that
// is already fully committed. ends are window-relative segment end times from
// the last pass; with fewer than two segments there is no completed boundary
// to cut at.
func (p *OnlineProcessor) trimCompletedSegment(ends []time.Duration) {
	if len(p.committed) == 0 {
		return
	}
	if len(ends) < 2 {
		slog.Debug("asr: not enough segments to trim", "buffered", p.BufferedAudio())
		return
	}
	lastCommitted := p.committed[len(p.committed)-1].End
	cut := ends[len(ends)-2] + p.offset
	for len(ends) > 2 && cut > lastCommitted {
		ends = ends[:len(ends)-1]
		cut = ends[len(ends)-2] + p.offset
	}
	if cut > lastCommitted {
		slog.Debug("asr: last completed segment not committed yet, keeping window", "buffered", p.BufferedAudio())
		return
	}
	p.trimAt(cut)
}

// trimAt discards audio and committed bookkeeping before stream time t and
// makes t the new window origin.
func (p *OnlineProcessor) trimAt(t time.Duration) {
	p.hyp.dropCommittedBefore(t)
	drop := pcm.SampleCount(t - p.offset)
	if drop <= 0 {
		return
	}
	if drop > len(p.audio) {
		drop = len(p.audio)
	}
	p.audio = append([]float32(nil), p.audio[drop:]...)
	p.offset = t
	p.pruneCommitted()
	slog.Debug("asr: trimmed audio window", "at", t, "buffered", p.BufferedAudio())
}

// pruneCommitted drops committed history that neither overlaps the audio
// window nor can appear in the prompt any more.
func (p *OnlineProcessor) pruneCommitted() {
	k := len(p.committed)
	for k > 0 && p.committed[k-1].End > p.offset {
		k--
	}
	chars := 0
	j := k
	for j > 0 && chars < p.promptSize {
		chars += len(p.committed[j-1].Text) + 1
		j--
	}
	if j > 0 {
		p.committed = append([]TimedToken(nil), p.committed[j:]...)
	}
}
