package asr

import (
	"strings"
	"time"
)

const (
	// insertSlack is how far before the last committed time an incoming
	// token may start and still be considered new material. Token
	// timestamps jitter slightly between passes over the same audio.
	insertSlack = 100 * time.Millisecond

	// dedupWindow bounds how close to the committed frontier a pass must
	// begin before its head is checked for overlap with committed text.
	dedupWindow = time.Second

	// maxDedupGram is the longest repeated token run removed from the head
	// of a new pass.
	maxDedupGram = 5
)

// hypothesisBuffer tracks agreement between consecutive recognition passes
// over a growing audio buffer. A token becomes committed once two passes in a
// row produce it at the head of their uncommitted output. All times are
// absolute stream times.
type hypothesisBuffer struct {
	committed []TimedToken // committed tokens not yet dropped by trimming
	prev      []TimedToken // uncommitted tail of the previous pass
	pending   []TimedToken // uncommitted output of the current pass
	lastTime  time.Duration
}

// insert takes one pass's tokens, shifts them by the buffer's stream offset,
// and keeps those past the committed frontier. When the pass begins right at
// the frontier, a token run that merely repeats already-committed text is
// dropped from its head.
func (h *hypothesisBuffer) insert(tokens []TimedToken, offset time.Duration) {
	cutoff := h.lastTime - insertSlack
	pending := make([]TimedToken, 0, len(tokens))
	for _, tok := range tokens {
		tok.Start += offset
		tok.End += offset
		if tok.Start > cutoff {
			pending = append(pending, tok)
		}
	}
	h.pending = pending

	if len(h.pending) == 0 || len(h.committed) == 0 {
		return
	}
	gap := h.pending[0].Start - h.lastTime
	if gap < 0 {
		gap = -gap
	}
	if gap >= dedupWindow {
		return
	}
	limit := min(len(h.committed), len(h.pending), maxDedupGram)
	for n := 1; n <= limit; n++ {
		tail := joinWords(h.committed[len(h.committed)-n:])
		head := joinWords(h.pending[:n])
		if tail == head {
			h.pending = h.pending[n:]
			break
		}
	}
}

// commit returns the longest common prefix of the current and previous
// passes, extending the committed transcript by it. The current pass's
// remainder becomes the hypothesis the next pass is compared against.
func (h *hypothesisBuffer) commit() []TimedToken {
	var out []TimedToken
	for len(h.pending) > 0 && len(h.prev) > 0 && h.pending[0].Text == h.prev[0].Text {
		tok := h.pending[0]
		out = append(out, tok)
		h.lastTime = tok.End
		h.pending = h.pending[1:]
		h.prev = h.prev[1:]
	}
	h.prev = h.pending
	h.pending = nil
	h.committed = append(h.committed, out...)
	return out
}

// dropCommittedBefore forgets committed tokens that end at or before t. Used
// when the audio window is trimmed so the overlap check in insert only sees
// tokens the recognizer can still produce.
func (h *hypothesisBuffer) dropCommittedBefore(t time.Duration) {
	i := 0
	for i < len(h.committed) && h.committed[i].End <= t {
		i++
	}
	if i > 0 {
		h.committed = append([]TimedToken(nil), h.committed[i:]...)
	}
}

// tail returns the uncommitted hypothesis left after the last pass.
func (h *hypothesisBuffer) tail() []TimedToken {
	return h.prev
}

// joinWords normalizes token texts for overlap comparison. Surrounding
// whitespace is stripped per token so spacing conventions cannot defeat an
// otherwise exact repeat.
func joinWords(tokens []TimedToken) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = strings.TrimSpace(t.Text)
	}
	return strings.Join(parts, " ")
}
