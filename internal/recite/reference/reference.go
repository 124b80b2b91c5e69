// Package reference builds the immutable token index a recitation is aligned
// against.
//
// A passage arrives as ordered segments (verses) of ordered surface words.
// Build flattens them into a single sequence, normalises every word once and
// tags it with its segment so the alignment engine can tell segment starts and
// boundaries apart without re-walking the passage.
package reference

import "github.com/liamchens/quran-voice-buddy/internal/recite/normalize"

// Token is one reference word.
type Token struct {
	// Surface is the word as written in the passage, marks included.
	Surface string
	// Normalized is the comparison form produced by normalize.Token.
	Normalized string
	// Segment is the zero-based index of the segment the word belongs to.
	Segment int
	// SegmentEnd is true iff the word is the last of its segment.
	SegmentEnd bool
}

// Index is the flattened, immutable token sequence of a passage.
// The zero value is an empty index.
type Index struct {
	tokens []Token
	// firsts[s] is the position of the first token of segment s. Segments
	// that contributed no tokens are not represented.
	firsts []int
}

// Build flattens segments into an Index. Each element of a segment may hold
// more than one word; words are split the way normalize.Fields splits
// recognised speech, so "نعم،لا" yields two tokens. Words that normalise to nothing,
// such as stand-alone pause marks or verse numbers, are dropped, and segments
// left empty are skipped entirely. An empty input yields an empty Index.
func Build(segments [][]string) *Index {
	idx := &Index{}
	for _, seg := range segments {
		start := len(idx.tokens)
		for _, part := range seg {
			for _, w := range normalize.Words(part) {
				n := normalize.Token(w)
				if n == "" {
					continue
				}
				idx.tokens = append(idx.tokens, Token{
					Surface:    w,
					Normalized: n,
					Segment:    len(idx.firsts),
				})
			}
		}
		if len(idx.tokens) == start {
			continue
		}
		idx.tokens[len(idx.tokens)-1].SegmentEnd = true
		idx.firsts = append(idx.firsts, start)
	}
	return idx
}

// FromTexts builds an Index from one string per segment.
func FromTexts(texts []string) *Index {
	segs := make([][]string, len(texts))
	for i, t := range texts {
		segs[i] = []string{t}
	}
	return Build(segs)
}

// Len returns the number of tokens.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.tokens)
}

// At returns the token at position i. It panics if i is out of range.
func (x *Index) At(i int) Token { return x.tokens[i] }

// Tokens returns a copy of the token sequence.
func (x *Index) Tokens() []Token {
	if x == nil {
		return nil
	}
	out := make([]Token, len(x.tokens))
	copy(out, x.tokens)
	return out
}

// SegmentCount returns the number of non-empty segments.
func (x *Index) SegmentCount() int {
	if x == nil {
		return 0
	}
	return len(x.firsts)
}

// SegmentFirst returns the position of the first token of segment seg, or -1
// if seg is out of range.
func (x *Index) SegmentFirst(seg int) int {
	if x == nil || seg < 0 || seg >= len(x.firsts) {
		return -1
	}
	return x.firsts[seg]
}

// SegmentStart reports whether position i opens a segment.
func (x *Index) SegmentStart(i int) bool {
	if i < 0 || i >= x.Len() {
		return false
	}
	return i == 0 || x.tokens[i-1].SegmentEnd
}

// SegmentLast returns the position of the last token of the segment that
// contains position i.
func (x *Index) SegmentLast(i int) int {
	seg := x.tokens[i].Segment
	if seg+1 < len(x.firsts) {
		return x.firsts[seg+1] - 1
	}
	return len(x.tokens) - 1
}
