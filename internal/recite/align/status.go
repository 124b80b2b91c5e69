package align

import "fmt"

// Status is the alignment state of one reference position.
type Status int

const (
	// Pending positions have not been reached yet.
	Pending Status = iota
	// Correct positions were matched by a hypothesis token.
	Correct
	// Skipped positions were passed over by a confirmed jump.
	Skipped
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Correct:
		return "correct"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status as its lower-case name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ReasonSkipped is attached to positions passed over by a lookahead or jump.
const ReasonSkipped = "passage skipped"

// WordStatus is the mutable record kept per reference position.
type WordStatus struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Cursor is the scalar alignment state carried between Advance calls.
type Cursor struct {
	// RefIndex is the next reference position expected.
	RefIndex int `json:"ref_index"`
	// Consumed counts hypothesis tokens already folded into the statuses.
	Consumed int `json:"consumed"`
}

// Word is one reference position as presented to a client.
type Word struct {
	Surface    string `json:"surface"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Segment    int    `json:"segment"`
	SegmentEnd bool   `json:"segment_end"`
}

// Summary counts positions by status.
type Summary struct {
	Total    int  `json:"total"`
	Correct  int  `json:"correct"`
	Skipped  int  `json:"skipped"`
	Pending  int  `json:"pending"`
	Complete bool `json:"complete"`
}

// Mistakes is the number of positions the reciter did not say.
func (s Summary) Mistakes() int { return s.Skipped }

// Outcome describes what a single Advance call did.
type Outcome struct {
	// Consumed is the number of hypothesis tokens processed.
	Consumed int
	// Matched is the number of positions newly marked Correct.
	Matched int
	// Skipped is the number of positions newly marked Skipped.
	Skipped int
	// Noise is the number of hypothesis tokens discarded without effect.
	Noise int
	// Deferred is true when processing stopped to wait for a confirming token.
	Deferred bool
}
