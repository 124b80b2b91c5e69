// Package align implements incremental fuzzy alignment of a growing, noisy
// hypothesis (recognised speech) against a reference token index.
//
// Advance folds only the hypothesis tokens beyond Cursor.Consumed into the
// per-position statuses. Statuses only move away from Pending and the cursor
// only moves forward, so a client can render every update as an append-only
// change. When a decision needs a token that has not been recognised yet,
// Advance stops and leaves that token unconsumed; the next call with a longer
// hypothesis picks it up again.
package align

import (
	"errors"
	"fmt"

	"github.com/liamchens/quran-voice-buddy/internal/recite/reference"
	"github.com/liamchens/quran-voice-buddy/internal/recite/similarity"
)

var (
	// ErrInvalidState is returned when the cursor or statuses do not fit the
	// reference index.
	ErrInvalidState = errors.New("align: invalid state")

	// ErrHypothesisTruncated is returned when the hypothesis is shorter than
	// the number of tokens already consumed. The hypothesis must only grow.
	ErrHypothesisTruncated = fmt.Errorf("%w: hypothesis truncated", ErrInvalidState)
)

// Advance processes hyp[cur.Consumed:] against idx, updating statuses in place,
// and returns the new cursor. hyp must hold normalised tokens and must extend
// the hypothesis seen by earlier calls. On error statuses are left untouched
// and cur is returned unchanged.
func Advance(idx *reference.Index, cur Cursor, statuses []WordStatus, hyp []string, cfg Config) (Cursor, error) {
	next, _, err := advance(idx, cur, statuses, hyp, cfg)
	return next, err
}

func advance(idx *reference.Index, cur Cursor, statuses []WordStatus, hyp []string, cfg Config) (Cursor, Outcome, error) {
	n := idx.Len()
	if len(statuses) != n {
		return cur, Outcome{}, fmt.Errorf("%w: %d statuses for %d reference tokens", ErrInvalidState, len(statuses), n)
	}
	if cur.RefIndex < 0 || cur.RefIndex > n || cur.Consumed < 0 {
		return cur, Outcome{}, fmt.Errorf("%w: cursor %+v outside reference of length %d", ErrInvalidState, cur, n)
	}
	if len(hyp) < cur.Consumed {
		return cur, Outcome{}, fmt.Errorf("%w: %d tokens, %d already consumed", ErrHypothesisTruncated, len(hyp), cur.Consumed)
	}

	a := aligner{idx: idx, hyp: hyp, cfg: cfg}
	var out Outcome
	r, i := cur.RefIndex, cur.Consumed
	for ; i < len(hyp); i++ {
		if r >= n {
			out.Noise++
			continue
		}
		d := a.decide(r, i)
		if d.wait {
			out.Deferred = true
			break
		}
		if d.target < 0 {
			out.Noise++
			continue
		}
		for j := r; j < d.target; j++ {
			statuses[j] = WordStatus{Status: Skipped, Reason: ReasonSkipped}
			out.Skipped++
		}
		statuses[d.target] = WordStatus{Status: Correct}
		out.Matched++
		r = d.target + 1
	}
	out.Consumed = i - cur.Consumed
	return Cursor{RefIndex: r, Consumed: i}, out, nil
}

// verdict is the answer of the following hypothesis token about a candidate.
type verdict int

const (
	rejected verdict = iota
	confirmed
	waiting
)

// decision is the result of examining one hypothesis token.
type decision struct {
	target int // reference position matched, or -1 for noise
	wait   bool
}

var (
	noise    = decision{target: -1}
	deferral = decision{target: -1, wait: true}
)

type aligner struct {
	idx *reference.Index
	hyp []string
	cfg Config
}

// decide examines hyp[i] with the cursor at r. The checks run in order: a
// match at the cursor, a bounded lookahead, a long jump from a segment start,
// and finally noise.
func (a *aligner) decide(r, i int) decision {
	u := a.hyp[i]
	tok := a.idx.At(r)
	start := a.idx.SegmentStart(r)

	base := a.cfg.WithinSegmentThreshold
	if start {
		base = a.cfg.SegmentStartThreshold
	}
	if s := similarity.Score(u, tok.Normalized); s >= a.cfg.threshold(base, tok) {
		if !start || (s == similarity.Max && !a.cfg.short(tok)) {
			return decision{target: r}
		}
		switch a.confirm(r, i) {
		case confirmed:
			return decision{target: r}
		case waiting:
			return deferral
		}
	}

	if d, ok := a.candidates(a.lookahead(r), i); ok {
		return d
	}
	if start {
		if d, ok := a.candidates(a.jumpTargets(r), i); ok {
			return d
		}
	}
	return noise
}

// candidate is a reference position together with the score hyp[i] must
// reach to be taken as a match there.
type candidate struct {
	pos       int
	threshold int
}

// candidates tries each candidate in order. The first one that hyp[i] matches
// and the following token confirms wins; a match that cannot be confirmed yet
// stops the search and defers.
func (a *aligner) candidates(cs []candidate, i int) (decision, bool) {
	u := a.hyp[i]
	for _, c := range cs {
		if similarity.Score(u, a.idx.At(c.pos).Normalized) < c.threshold {
			continue
		}
		switch a.confirm(c.pos, i) {
		case confirmed:
			return decision{target: c.pos}, true
		case waiting:
			return deferral, true
		}
	}
	return decision{}, false
}

// lookahead lists the positions after r within the window that stay in r's
// segment. Only when r is the last token of its segment is the first token of
// the next segment offered, with the stricter threshold.
func (a *aligner) lookahead(r int) []candidate {
	last := a.idx.SegmentLast(r)
	end := min(r+a.cfg.LookaheadWindow, last)
	cs := make([]candidate, 0, a.cfg.LookaheadWindow+1)
	for k := r + 1; k <= end; k++ {
		cs = append(cs, candidate{pos: k, threshold: a.cfg.threshold(a.cfg.LookaheadThreshold, a.idx.At(k))})
	}
	if next := last + 1; r == last && next < a.idx.Len() {
		cs = append(cs, candidate{pos: next, threshold: a.cfg.threshold(a.cfg.NextSegmentThreshold, a.idx.At(next))})
	}
	return cs
}

// jumpTargets lists the first tokens of the segments following r's segment,
// up to LongJumpMaxSegmentsAhead of them.
func (a *aligner) jumpTargets(r int) []candidate {
	seg := a.idx.At(r).Segment
	cs := make([]candidate, 0, a.cfg.LongJumpMaxSegmentsAhead)
	for s := seg + 1; s <= seg+a.cfg.LongJumpMaxSegmentsAhead; s++ {
		t := a.idx.SegmentFirst(s)
		if t < 0 {
			break
		}
		cs = append(cs, candidate{pos: t, threshold: a.cfg.threshold(a.cfg.LongJumpDetectionThreshold, a.idx.At(t))})
	}
	return cs
}

// confirm asks hyp[i+1] whether matching hyp[i] at position k is right. It
// confirms when k is the last reference token, when the follower resembles
// the token after k, or when the follower itself clearly skips ahead within
// the lookahead window of that token's segment.
func (a *aligner) confirm(k, i int) verdict {
	if k+1 >= a.idx.Len() {
		return confirmed
	}
	if i+1 >= len(a.hyp) {
		return waiting
	}
	v := a.hyp[i+1]
	if similarity.Score(v, a.idx.At(k+1).Normalized) >= a.cfg.ConfirmThreshold {
		return confirmed
	}
	end := min(k+1+a.cfg.LookaheadWindow, a.idx.SegmentLast(k+1))
	for j := k + 2; j <= end; j++ {
		tok := a.idx.At(j)
		if similarity.Score(v, tok.Normalized) >= a.cfg.threshold(a.cfg.LookaheadThreshold, tok) {
			return confirmed
		}
	}
	return rejected
}
