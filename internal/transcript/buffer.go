// Package transcript accumulates recognised speech into the append-only token
// sequence the alignment engine consumes.
//
// Speech-to-text providers emit two kinds of results: partials, which are
// revised as more audio arrives, and finals, which are authoritative. The
// alignment engine requires a hypothesis that only ever grows, so [Buffer]
// folds both into a monotonic list of normalised tokens:
//
//   - In [ModeFinal] only final transcripts are appended. Updates lag behind
//     speech by one utterance but never contain guesses.
//   - In [ModeInterim] the words of a partial except its last one are treated
//     as stable and appended immediately. When the final for the utterance
//     arrives only the words beyond those already taken are appended, so the
//     buffer never shrinks or reorders.
//
// Buffer is safe for concurrent use.
package transcript

import (
	"fmt"
	"slices"
	"sync"

	"github.com/liamchens/quran-voice-buddy/internal/recite/normalize"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// Mode selects which transcripts grow the buffer.
type Mode string

const (
	// ModeFinal appends final transcripts only.
	ModeFinal Mode = "final"
	// ModeInterim also appends the stable prefix of partial transcripts.
	ModeInterim Mode = "interim"
)

// ParseMode converts a configuration string to a Mode. The empty string
// selects ModeFinal.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFinal:
		return ModeFinal, nil
	case ModeInterim:
		return ModeInterim, nil
	default:
		return "", fmt.Errorf("transcript: unknown mode %q (want %q or %q)", s, ModeFinal, ModeInterim)
	}
}

// Buffer is the monotonic hypothesis of one recitation attempt.
type Buffer struct {
	mu     sync.Mutex
	mode   Mode
	tokens []string

	// taken counts the words of the current utterance already appended from
	// partials.
	taken int
}

// NewBuffer returns an empty Buffer using mode.
func NewBuffer(mode Mode) *Buffer {
	if mode == "" {
		mode = ModeFinal
	}
	return &Buffer{mode: mode}
}

// Mode returns the buffer's mode.
func (b *Buffer) Mode() Mode { return b.mode }

// Add folds t into the buffer and returns the number of tokens appended.
func (b *Buffer) Add(t stt.Transcript) int {
	words := normalize.Fields(t.Text)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !t.IsFinal {
		if b.mode != ModeInterim || len(words) < 2 {
			return 0
		}
		stable := words[:len(words)-1]
		if len(stable) <= b.taken {
			return 0
		}
		n := len(stable) - b.taken
		b.tokens = append(b.tokens, stable[b.taken:]...)
		b.taken = len(stable)
		return n
	}

	n := 0
	if len(words) > b.taken {
		n = len(words) - b.taken
		b.tokens = append(b.tokens, words[b.taken:]...)
	}
	b.taken = 0
	return n
}

// Tokens returns a snapshot of the buffered tokens.
func (b *Buffer) Tokens() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.tokens)
}

// Len returns the number of buffered tokens.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens)
}

// Reset discards every token.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = nil
	b.taken = 0
}
