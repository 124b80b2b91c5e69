package app

import (
	"context"
	"errors"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/observe"
	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// Request statuses reported to metrics.
const (
	statusOK       = "ok"
	statusNotFound = "not_found"
	statusError    = "error"
)

type instrumentedSTT struct {
	name    string
	next    stt.Provider
	metrics *observe.Metrics
}

var _ stt.Provider = (*instrumentedSTT)(nil)

// InstrumentSTT records a provider request for every StartStream call on p
// and an error for every failed one.
func InstrumentSTT(name string, p stt.Provider, m *observe.Metrics) stt.Provider {
	return &instrumentedSTT{name: name, next: p, metrics: m}
}

func (s *instrumentedSTT) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	h, err := s.next.StartStream(ctx, cfg)
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.name, "stt", statusError)
		s.metrics.RecordProviderError(ctx, s.name, "stt")
		return nil, err
	}
	s.metrics.RecordProviderRequest(ctx, s.name, "stt", statusOK)
	return h, nil
}

type instrumentedPassages struct {
	name    string
	next    passage.Provider
	metrics *observe.Metrics
}

var _ passage.Provider = (*instrumentedPassages)(nil)

// InstrumentPassages records lookup latency and outcome for every call on p.
// A missing passage is not counted as a provider error.
func InstrumentPassages(name string, p passage.Provider, m *observe.Metrics) passage.Provider {
	return &instrumentedPassages{name: name, next: p, metrics: m}
}

func (s *instrumentedPassages) Passage(ctx context.Context, id string) (*passage.Passage, error) {
	start := time.Now()
	p, err := s.next.Passage(ctx, id)
	status := statusOK
	switch {
	case errors.Is(err, passage.ErrNotFound):
		status = statusNotFound
	case err != nil:
		status = statusError
		s.metrics.RecordProviderError(ctx, s.name, "passages")
	}
	s.metrics.RecordPassageLookup(ctx, time.Since(start), status)
	s.metrics.RecordProviderRequest(ctx, s.name, "passages", status)
	return p, err
}

// Ping forwards to the wrapped source when it supports it.
func (s *instrumentedPassages) Ping(ctx context.Context) error {
	if p, ok := s.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
