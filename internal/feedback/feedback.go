// Package feedback classifies a recitation attempt so the presentation layer
// can pick an encouraging message. Choosing and wording the message is left
// to the client.
package feedback

import "github.com/liamchens/quran-voice-buddy/internal/recite/align"

// Category is the kind of encouragement an attempt deserves.
type Category string

const (
	// InProgress is reported while the passage is not finished.
	InProgress Category = "in-progress"
	// Perfect is a completed attempt without mistakes.
	Perfect Category = "perfect"
	// Good is a completed attempt with few mistakes.
	Good Category = "good"
	// KeepPractising is a completed attempt with many mistakes.
	KeepPractising Category = "keep-practising"
)

// GoodMaxMistakes is the largest mistake count still rated Good.
const GoodMaxMistakes = 2

// Categorize maps the completion state and number of mistakes of an attempt
// to a Category. It is pure; equal inputs give equal results.
func Categorize(complete bool, mistakes int) Category {
	switch {
	case !complete:
		return InProgress
	case mistakes <= 0:
		return Perfect
	case mistakes <= GoodMaxMistakes:
		return Good
	default:
		return KeepPractising
	}
}

// ForSummary categorizes an alignment summary.
func ForSummary(s align.Summary) Category {
	return Categorize(s.Complete, s.Mistakes())
}
