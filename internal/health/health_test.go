package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(t *testing.T, h *Handler, path string, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	h.Register(mux)
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "passages", Check: func(context.Context) error { return errors.New("down") }})

	code, body := serve(t, h, "/healthz", context.Background())
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	refused := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "passages", Check: ok},
				PingChecker("postgres", pingerFunc(ok)),
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"passages": "ok", "postgres": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "passages", Check: ok},
				PingChecker("postgres", pingerFunc(refused)),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"passages": "ok", "postgres": "fail: connection refused"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "passages", Check: refused},
				{Name: "stt", Check: func(context.Context) error { return errors.New("circuit open") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"passages": "fail: connection refused", "stt": "fail: circuit open"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := serve(t, New(tt.checkers...), "/readyz", context.Background())
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	// Each check waits for the other; run sequentially they would time out.
	arrived := make(chan struct{}, 2)
	wait := func(ctx context.Context) error {
		arrived <- struct{}{}
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: wait}, Checker{Name: "b", Check: wait})

	go func() {
		<-arrived
		<-arrived
		close(gate)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	code, body := serve(t, h, "/readyz", ctx)
	if code != http.StatusOK {
		t.Errorf("readyz = %d %v, want 200", code, body.Checks)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, _ := serve(t, h, "/readyz", ctx)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestReadyz_Draining(t *testing.T) {
	t.Parallel()
	called := false
	h := New(Checker{Name: "passages", Check: func(context.Context) error { called = true; return nil }})
	h.Drain()

	code, body := serve(t, h, "/readyz", context.Background())
	if code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Errorf("readyz = %d %q, want 503 fail", code, body.Status)
	}
	if called {
		t.Error("checkers ran while draining")
	}
	if code, _ := serve(t, h, "/healthz", context.Background()); code != http.StatusOK {
		t.Errorf("healthz while draining = %d, want 200", code)
	}
}
