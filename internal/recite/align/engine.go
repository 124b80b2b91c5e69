package align

import (
	"github.com/liamchens/quran-voice-buddy/internal/recite/reference"
)

// Engine owns the alignment state of one recitation attempt over one
// reference index. It is not safe for concurrent use; callers serialise
// Advance and Reset.
type Engine struct {
	idx      *reference.Index
	cfg      Config
	cur      Cursor
	statuses []WordStatus
}

// New returns an Engine with every position Pending. A nil idx is treated as
// an empty passage.
func New(idx *reference.Index, cfg Config) *Engine {
	if idx == nil {
		idx = reference.Build(nil)
	}
	return &Engine{
		idx:      idx,
		cfg:      cfg,
		statuses: make([]WordStatus, idx.Len()),
	}
}

// Advance folds the not yet consumed tail of hyp into the statuses.
func (e *Engine) Advance(hyp []string) (Outcome, error) {
	cur, out, err := advance(e.idx, e.cur, e.statuses, hyp, e.cfg)
	if err != nil {
		return Outcome{}, err
	}
	e.cur = cur
	return out, nil
}

// Reset returns every position to Pending and the cursor to zero. The caller
// is expected to start a fresh hypothesis as well.
func (e *Engine) Reset() {
	clear(e.statuses)
	e.cur = Cursor{}
}

// Index returns the reference index the engine aligns against.
func (e *Engine) Index() *reference.Index { return e.idx }

// Config returns the policy the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Cursor returns the current cursor.
func (e *Engine) Cursor() Cursor { return e.cur }

// Complete reports whether every reference position has been settled.
func (e *Engine) Complete() bool { return e.cur.RefIndex >= e.idx.Len() }

// Statuses returns a copy of the per-position statuses.
func (e *Engine) Statuses() []WordStatus {
	out := make([]WordStatus, len(e.statuses))
	copy(out, e.statuses)
	return out
}

// Words returns the presentation view: each reference token with its status.
func (e *Engine) Words() []Word {
	words := make([]Word, e.idx.Len())
	for i := range words {
		tok := e.idx.At(i)
		words[i] = Word{
			Surface:    tok.Surface,
			Status:     e.statuses[i].Status,
			Reason:     e.statuses[i].Reason,
			Segment:    tok.Segment,
			SegmentEnd: tok.SegmentEnd,
		}
	}
	return words
}

// Summary counts positions by status.
func (e *Engine) Summary() Summary {
	s := Summary{Total: len(e.statuses), Complete: e.Complete()}
	for _, st := range e.statuses {
		switch st.Status {
		case Correct:
			s.Correct++
		case Skipped:
			s.Skipped++
		default:
			s.Pending++
		}
	}
	return s
}
