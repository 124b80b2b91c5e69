package stt

import (
	"strings"
	"time"
)

// Transcript is one recognition result.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal is true for results the provider will not revise.
	IsFinal bool

	// Confidence is the provider's overall confidence in [0, 1], or zero when
	// not reported.
	Confidence float64

	// Words holds per-word detail when the provider reports it.
	Words []WordDetail

	// Timestamp is the start of the utterance relative to the session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// Empty reports whether the transcript carries no words.
func (t Transcript) Empty() bool { return strings.TrimSpace(t.Text) == "" }

// WordDetail holds per-word timing and confidence.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a recognition hint. Boost uses the provider's own scale.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
