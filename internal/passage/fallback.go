package passage

import (
	"context"
	"errors"

	"github.com/liamchens/quran-voice-buddy/internal/resilience"
)

var _ Provider = (*Fallback)(nil)

// Fallback asks each source in turn. A source that does not know a passage
// passes the request on without being marked unhealthy; a source that fails
// is guarded by a circuit breaker.
type Fallback struct {
	group *resilience.FallbackGroup[Provider]
}

// NewFallback returns a Fallback asking primary first.
func NewFallback(primary Provider, primaryName string, cfg resilience.FallbackConfig) *Fallback {
	return &Fallback{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a source.
func (f *Fallback) AddFallback(name string, p Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the source names in the order they are asked.
func (f *Fallback) Names() []string { return f.group.Names() }

// Passage implements [Provider.Passage]. When no source knows id the error
// wraps [ErrNotFound].
func (f *Fallback) Passage(ctx context.Context, id string) (*Passage, error) {
	return resilience.ExecuteWithResult(f.group, func(p Provider) (*Passage, error) {
		if err := ctx.Err(); err != nil {
			return nil, resilience.Permanent(err)
		}
		res, err := p.Passage(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, resilience.Skip(err)
		}
		return res, err
	})
}
