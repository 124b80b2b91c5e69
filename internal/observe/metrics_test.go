package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns Metrics backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point carrying key=value,
// or the first data point when key is empty.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, not a sum", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(Attr(key, "").Key); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestRecordAdvance(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAdvance(ctx, 40*time.Microsecond, AdvanceStats{Matched: 3, Skipped: 2, Noise: 1})
	m.RecordAdvance(ctx, 10*time.Microsecond, AdvanceStats{Matched: 1, Deferred: true})
	m.RecordAdvance(ctx, 5*time.Microsecond, AdvanceStats{})

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "voicebuddy.align.words", "status", "correct"); got != 4 {
		t.Errorf("correct words = %d, want 4", got)
	}
	if got := sumWhere(t, rm, "voicebuddy.align.words", "status", "skipped"); got != 2 {
		t.Errorf("skipped words = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "voicebuddy.align.hypothesis_tokens", "outcome", "noise"); got != 1 {
		t.Errorf("noise tokens = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "voicebuddy.align.deferrals", "", ""); got != 1 {
		t.Errorf("deferrals = %d, want 1", got)
	}

	met := findMetric(rm, "voicebuddy.align.advance.duration")
	if met == nil {
		t.Fatal("advance duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("advance duration data = %T", met.Data)
	}
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("advance samples = %d, want 3", got)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCompletion(ctx, "perfect")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
	m.RecordProviderError(ctx, "sqlite", "passage")
	m.RecordSTTRestart(ctx, "stalled")
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordCacheLookup(ctx, true)
	m.RecordCircuitTransition(ctx, "whisper", "open")

	rm := collect(t, reader)
	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"voicebuddy.recitation.completions", "category", "perfect", 1},
		{"voicebuddy.provider.requests", "status", "ok", 2},
		{"voicebuddy.provider.errors", "provider", "sqlite", 1},
		{"voicebuddy.stt.restarts", "reason", "stalled", 1},
		{"voicebuddy.passage.cache.lookups", "result", "hit", 2},
		{"voicebuddy.passage.cache.lookups", "result", "miss", 1},
		{"voicebuddy.circuit.transitions", "to", "open", 1},
	}
	for _, tt := range tests {
		if got := sumWhere(t, rm, tt.name, tt.key, tt.value); got != tt.want {
			t.Errorf("%s{%s=%s} = %d, want %d", tt.name, tt.key, tt.value, got, tt.want)
		}
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ListeningSessions.Add(ctx, 1)
	m.ListeningSessions.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "voicebuddy.active_sessions", "", ""); got != 2 {
		t.Errorf("active sessions = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "voicebuddy.listening_sessions", "", ""); got != 0 {
		t.Errorf("listening sessions = %d, want 0", got)
	}
}

func TestRecordPassageLookup(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordPassageLookup(context.Background(), 30*time.Millisecond, "not_found")

	met := findMetric(collect(t, reader), "voicebuddy.passage.lookup.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("data points = %+v", hist.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
