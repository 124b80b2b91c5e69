// Package passage defines the reference texts a reciter practises and the
// sources they are loaded from.
//
// A [Passage] is an ordered list of segments (verses), each holding the
// surface text as written. Sources implement [Provider]; writable sources
// also implement [Store] so passages can be imported into them. Concrete
// sources live in the sqlite, postgres and quranapi sub-packages; this
// package provides the YAML file source, an in-memory store, an LRU cache
// and a failover chain.
package passage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liamchens/quran-voice-buddy/internal/recite/reference"
)

// ErrNotFound is returned when no passage has the requested ID.
var ErrNotFound = errors.New("passage: not found")

// Segment is one verse of a passage.
type Segment struct {
	// Number is the verse number within its surah, used for display.
	Number int `yaml:"number" json:"number"`

	// Text is the verse as written, with diacritics.
	Text string `yaml:"text" json:"text"`
}

// Passage is a reference text.
type Passage struct {
	ID       string    `yaml:"id" json:"id"`
	Title    string    `yaml:"title,omitempty" json:"title,omitempty"`
	Segments []Segment `yaml:"segments" json:"segments"`
}

// Texts returns the text of every segment in order.
func (p *Passage) Texts() []string {
	out := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		out[i] = s.Text
	}
	return out
}

// Index builds the reference index of p.
func (p *Passage) Index() *reference.Index {
	return reference.FromTexts(p.Texts())
}

// Provider returns passages by ID.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Passage returns the passage with the given ID, or an error wrapping
	// [ErrNotFound].
	Passage(ctx context.Context, id string) (*Passage, error)
}

// Store is a Provider passages can be written to.
type Store interface {
	Provider

	// Put inserts p or replaces the stored passage with the same ID.
	Put(ctx context.Context, p *Passage) error

	// IDs lists the stored passage IDs in ascending order.
	IDs(ctx context.Context) ([]string, error)
}

// Validate checks p for an ID and non-empty segments.
func Validate(p *Passage) error {
	if p == nil {
		return errors.New("passage: nil passage")
	}
	var errs []error
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if len(p.Segments) == 0 {
		errs = append(errs, errors.New("at least one segment is required"))
	}
	for i, s := range p.Segments {
		if strings.TrimSpace(s.Text) == "" {
			errs = append(errs, fmt.Errorf("segment[%d]: text must not be empty", i))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("passage %q: %w", p.ID, errors.Join(errs...))
}

// Import writes every passage to dst after validating it. It returns the
// number written before the first error.
func Import(ctx context.Context, dst Store, ps []*Passage) (int, error) {
	for i, p := range ps {
		if err := Validate(p); err != nil {
			return i, err
		}
		if err := dst.Put(ctx, p); err != nil {
			return i, fmt.Errorf("passage: import %q: %w", p.ID, err)
		}
	}
	return len(ps), nil
}
