package align

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/liamchens/quran-voice-buddy/internal/recite/reference"
	"github.com/liamchens/quran-voice-buddy/internal/recite/similarity"
)

// Config holds the tunable alignment policy. All thresholds are similarity
// scores on the 0–100 scale of [similarity.Score].
type Config struct {
	// SegmentStartThreshold is the score a hypothesis token needs to match the
	// first token of a segment at the cursor.
	SegmentStartThreshold int `yaml:"segment_start_threshold"`

	// WithinSegmentThreshold is the score needed at the cursor when it is not
	// at a segment start.
	WithinSegmentThreshold int `yaml:"within_segment_threshold"`

	// ShortTokenMaxRunes marks reference tokens of at most this many runes as
	// short. Short tokens get ShortTokenBoost added to every threshold.
	ShortTokenMaxRunes int `yaml:"short_token_max_runes"`

	// ShortTokenBoost is added to thresholds for short reference tokens. The
	// boosted value is capped at 100.
	ShortTokenBoost int `yaml:"short_token_boost"`

	// LookaheadWindow is how many reference positions past the cursor are
	// searched for a skipped-to token.
	LookaheadWindow int `yaml:"lookahead_window"`

	// LookaheadThreshold is the score a lookahead candidate in the cursor's
	// segment needs.
	LookaheadThreshold int `yaml:"lookahead_threshold"`

	// NextSegmentThreshold is the score a lookahead candidate that opens the
	// next segment needs.
	NextSegmentThreshold int `yaml:"next_segment_threshold"`

	// ConfirmThreshold is the score the following hypothesis token needs
	// against the token after a candidate for the candidate to be committed.
	ConfirmThreshold int `yaml:"confirm_threshold"`

	// LongJumpMaxSegmentsAhead bounds how many following segments are searched
	// when the reciter jumps ahead from a segment start. Zero disables jumps.
	LongJumpMaxSegmentsAhead int `yaml:"long_jump_max_segments_ahead"`

	// LongJumpDetectionThreshold is the score a segment-start token needs to
	// be taken as a jump target.
	LongJumpDetectionThreshold int `yaml:"long_jump_detection_threshold"`
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		SegmentStartThreshold:      80,
		WithinSegmentThreshold:     65,
		ShortTokenMaxRunes:         2,
		ShortTokenBoost:            15,
		LookaheadWindow:            3,
		LookaheadThreshold:         80,
		NextSegmentThreshold:       90,
		ConfirmThreshold:           50,
		LongJumpMaxSegmentsAhead:   5,
		LongJumpDetectionThreshold: 95,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	scores := []struct {
		name string
		v    int
	}{
		{"segment_start_threshold", c.SegmentStartThreshold},
		{"within_segment_threshold", c.WithinSegmentThreshold},
		{"short_token_boost", c.ShortTokenBoost},
		{"lookahead_threshold", c.LookaheadThreshold},
		{"next_segment_threshold", c.NextSegmentThreshold},
		{"confirm_threshold", c.ConfirmThreshold},
		{"long_jump_detection_threshold", c.LongJumpDetectionThreshold},
	}
	for _, s := range scores {
		if s.v < 0 || s.v > similarity.Max {
			errs = append(errs, fmt.Errorf("align: %s must be in [0, %d], got %d", s.name, similarity.Max, s.v))
		}
	}
	if c.ShortTokenMaxRunes < 0 {
		errs = append(errs, fmt.Errorf("align: short_token_max_runes must be >= 0, got %d", c.ShortTokenMaxRunes))
	}
	if c.LookaheadWindow < 1 {
		errs = append(errs, fmt.Errorf("align: lookahead_window must be >= 1, got %d", c.LookaheadWindow))
	}
	if c.LongJumpMaxSegmentsAhead < 0 {
		errs = append(errs, fmt.Errorf("align: long_jump_max_segments_ahead must be >= 0, got %d", c.LongJumpMaxSegmentsAhead))
	}
	return errors.Join(errs...)
}

func (c Config) short(tok reference.Token) bool {
	return utf8.RuneCountInString(tok.Normalized) <= c.ShortTokenMaxRunes
}

// threshold applies the short-token boost to base.
func (c Config) threshold(base int, tok reference.Token) int {
	if c.short(tok) {
		base += c.ShortTokenBoost
	}
	return min(base, similarity.Max)
}
