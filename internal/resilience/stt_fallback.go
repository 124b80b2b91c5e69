package resilience

import (
	"context"

	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that opens the stream on the first healthy
// backend. Failover happens when a stream is opened; a session that later
// drops is reopened by its owner through StartStream again.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an STTFallback preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the backend names in failover order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// StartStream opens a session on the first backend that accepts it.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		if err := ctx.Err(); err != nil {
			return nil, Permanent(err)
		}
		return p.StartStream(ctx, cfg)
	})
}
