// Package session owns the lifecycle of one recitation attempt: the loaded
// passage, the alignment engine, the hypothesis buffer and the speech-to-text
// stream feeding it.
//
// A [Controller] moves between four states:
//
//	idle ──Start──▶ listening ──Stop / completion──▶ stopped
//	                  │    ▲
//	    stream lost   ▼    │ reopened
//	               reconnecting
//
// While listening, every transcript that grows the hypothesis runs one
// alignment step under the controller mutex. A stream that ends while the
// user still intends to listen is reopened with exponential backoff; a
// stream that stops producing transcripts for StallTimeout while voiced audio
// is flowing is recycled the same way. The controller never restarts a stream
// after an explicit Stop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamchens/quran-voice-buddy/internal/feedback"
	"github.com/liamchens/quran-voice-buddy/internal/observe"
	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/recite/align"
	"github.com/liamchens/quran-voice-buddy/internal/recite/reference"
	"github.com/liamchens/quran-voice-buddy/internal/transcript"
	"github.com/liamchens/quran-voice-buddy/pkg/audio/pcm"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

var (
	// ErrNoPassage is returned when an operation needs a loaded passage.
	ErrNoPassage = errors.New("session: no passage loaded")

	// ErrStopped is returned when audio or transcripts arrive while the
	// controller is not listening.
	ErrStopped = errors.New("session: not listening")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session: controller closed")
)

// State is the listening state of a Controller.
type State string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

func (s State) active() bool { return s == StateListening || s == StateReconnecting }

// Restart reasons reported to metrics and logs.
const (
	reasonInterrupted = "interrupted"
	reasonStalled     = "stalled"
	reasonReset       = "reset"
)

const (
	// keywordBoost is the weight of passage words sent as recognition hints.
	keywordBoost = 2
	// maxKeywords bounds the hint list; providers reject very long lists.
	maxKeywords = 100
)

// Snapshot is the presentation view of a controller after a change.
type Snapshot struct {
	// Seq increases with every snapshot of the same controller. Clients drop
	// snapshots older than the last one rendered.
	Seq        uint64            `json:"seq"`
	SessionID  string            `json:"session_id"`
	PassageID  string            `json:"passage_id,omitempty"`
	State      State             `json:"state"`
	Words      []align.Word      `json:"words"`
	Cursor     align.Cursor      `json:"cursor"`
	Complete   bool              `json:"complete"`
	Summary    align.Summary     `json:"summary"`
	Category   feedback.Category `json:"category"`
	Hypothesis int               `json:"hypothesis"`
	Err        string            `json:"error,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithProvider sets the speech-to-text provider. Without one the controller
// only accepts client-side transcripts through Feed.
func WithProvider(p stt.Provider) Option {
	return func(c *Controller) { c.provider = p }
}

// WithMetrics records alignment and stream metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// OnUpdate registers fn to receive a snapshot after every change. fn runs
// outside the controller lock and may be called from several goroutines;
// order snapshots by Seq.
func OnUpdate(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onUpdate = fn }
}

// Controller runs recitation attempts. All methods are safe for concurrent
// use.
type Controller struct {
	id       string
	cfg      Config
	provider stt.Provider
	metrics  *observe.Metrics
	onUpdate func(Snapshot)
	now      func() time.Time

	mu       sync.Mutex
	state    State
	passage  *passage.Passage
	engine   *align.Engine
	buf      *transcript.Buffer
	keywords []stt.KeywordBoost
	parent   context.Context
	cancel   context.CancelFunc
	handle   stt.SessionHandle
	// gen identifies the current stream owner. Events from a stream opened
	// under an older generation are dropped.
	gen uint64
	seq uint64
	// voicedSince is when voiced audio was first sent after the last
	// transcript; zero when nothing is outstanding.
	voicedSince time.Time
	lastErr     error
	closed      bool

	wg sync.WaitGroup
}

// New returns an idle Controller with no passage loaded.
func New(cfg Config, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:     cfg,
		metrics: observe.DefaultMetrics(),
		now:     time.Now,
		state:   StateIdle,
		buf:     transcript.NewBuffer(cfg.Mode),
	}
	for _, o := range opts {
		o(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	c.metrics.ActiveSessions.Add(context.Background(), 1)
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Load stops any running attempt and prepares a fresh one for p.
func (c *Controller) Load(p *passage.Passage) error {
	if p == nil {
		return ErrNoPassage
	}
	idx := p.Index()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	h, cancel := c.detachLocked(StateIdle)
	c.passage = p
	c.engine = align.New(idx, c.cfg.Align)
	c.buf.Reset()
	c.keywords = keywordsFor(idx)
	c.lastErr = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()

	release(h, cancel)
	c.log().Info("passage loaded", "passage", p.ID, "tokens", idx.Len())
	c.notify(snap)
	return nil
}

// Start begins listening. With a provider the first stream is opened before
// Start returns; later streams are managed in the background and bound to
// ctx. Starting an attempt that already completed starts it over. Start is a
// no-op while already listening.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.engine == nil:
		c.mu.Unlock()
		return ErrNoPassage
	case c.state.active():
		c.mu.Unlock()
		return nil
	}
	if c.engine.Complete() {
		c.engine.Reset()
		c.buf.Reset()
	}
	c.lastErr = nil
	c.gen++
	gen := c.gen
	c.parent = ctx

	if c.engine.Index().Len() == 0 {
		c.setStateLocked(StateStopped)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return nil
	}
	if c.provider == nil {
		c.setStateLocked(StateListening)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setStateLocked(StateListening)
	cfg := c.streamConfigLocked()
	c.mu.Unlock()

	h, err := c.provider.StartStream(runCtx, cfg)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.gen++
			c.cancel = nil
			c.lastErr = err
			c.setStateLocked(StateIdle)
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		cancel()
		c.notify(snap)
		return fmt.Errorf("session: start stream: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = h.Close()
		return ErrStopped
	}
	c.handle = h
	c.voicedSince = time.Time{}
	snap := c.snapshotLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(runCtx, gen, h)
	c.log().Info("listening started", "passage", snap.PassageID)
	c.notify(snap)
	return nil
}

// Stop ends listening and freezes the statuses. It is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.state.active() {
		c.mu.Unlock()
		return
	}
	h, cancel := c.detachLocked(StateStopped)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	release(h, cancel)
	c.log().Info("listening stopped", "correct", snap.Summary.Correct, "skipped", snap.Summary.Skipped)
	c.notify(snap)
}

// Reset discards the cursor, the statuses and the hypothesis. While listening
// with a provider the stream is reopened, so transcripts of audio sent before
// the reset never reach the new attempt.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.engine == nil {
		c.mu.Unlock()
		return ErrNoPassage
	}
	c.engine.Reset()
	c.buf.Reset()
	c.lastErr = nil
	c.voicedSince = time.Time{}

	var (
		old    stt.SessionHandle
		cancel context.CancelFunc
	)
	restart := c.state.active() && c.provider != nil
	if restart {
		c.gen++
		gen := c.gen
		old, cancel = c.handle, c.cancel
		c.handle = nil
		runCtx, runCancel := context.WithCancel(c.parent)
		c.cancel = runCancel
		c.wg.Add(1)
		go c.run(runCtx, gen, nil)
	} else if !c.state.active() {
		old, c.handle = c.handle, nil
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	release(old, cancel)
	if restart {
		c.metrics.RecordSTTRestart(context.Background(), reasonReset)
	}
	c.log().Info("attempt reset", "restart_stream", restart)
	c.notify(snap)
	return nil
}

// SendAudio forwards a PCM chunk to the current stream. Chunks sent while the
// stream is being reopened are dropped.
func (c *Controller) SendAudio(chunk []byte) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.state.active():
		c.mu.Unlock()
		return ErrStopped
	case c.provider == nil:
		c.mu.Unlock()
		return fmt.Errorf("session: server-side recognition: %w", stt.ErrNotSupported)
	}
	h := c.handle
	if h != nil && c.voicedSince.IsZero() && pcm.RMS(chunk) >= pcm.DefaultSilenceRMS {
		c.voicedSince = c.now()
	}
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.SendAudio(chunk); err != nil {
		if errors.Is(err, stt.ErrClosed) {
			return nil
		}
		return fmt.Errorf("session: send audio: %w", err)
	}
	return nil
}

// Feed folds a client-side transcript into the hypothesis.
func (c *Controller) Feed(t stt.Transcript) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.engine == nil:
		c.mu.Unlock()
		return ErrNoPassage
	case !c.state.active():
		c.mu.Unlock()
		return ErrStopped
	}
	return c.ingestLocked(t)
}

// Snapshot returns the current presentation view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops listening, waits for background work and releases the
// controller. Later calls return ErrClosed from every operation.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	next := c.state
	if next.active() {
		next = StateStopped
	}
	h, cancel := c.detachLocked(next)
	c.mu.Unlock()

	release(h, cancel)
	c.wg.Wait()
	c.metrics.ActiveSessions.Add(context.Background(), -1)
	return nil
}

// ingestLocked grows the hypothesis with t and, if it grew, runs one
// alignment step. It unlocks c.mu before notifying.
func (c *Controller) ingestLocked(t stt.Transcript) error {
	c.voicedSince = time.Time{}
	if c.buf.Add(t) == 0 {
		c.mu.Unlock()
		return nil
	}

	ctx := c.metricsContext()
	start := time.Now()
	out, err := c.engine.Advance(c.buf.Tokens())
	if err != nil {
		c.lastErr = err
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.log().Error("alignment failed", "err", err)
		c.notify(snap)
		return fmt.Errorf("session: advance: %w", err)
	}
	c.metrics.RecordAdvance(ctx, time.Since(start), observe.AdvanceStats{
		Matched:  out.Matched,
		Skipped:  out.Skipped,
		Noise:    out.Noise,
		Deferred: out.Deferred,
	})

	var (
		h      stt.SessionHandle
		cancel context.CancelFunc
		done   bool
	)
	if c.engine.Complete() {
		done = true
		h, cancel = c.detachLocked(StateStopped)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if done {
		release(h, cancel)
		c.metrics.RecordCompletion(ctx, string(snap.Category))
		c.log().Info("recitation complete", "category", snap.Category, "mistakes", snap.Summary.Mistakes())
	}
	c.notify(snap)
	return nil
}

// run consumes stream h of generation gen, reopening it when it ends or
// stalls. A nil h is opened first.
func (c *Controller) run(ctx context.Context, gen uint64, h stt.SessionHandle) {
	defer c.wg.Done()
	for {
		if h == nil {
			var ok bool
			if h, ok = c.reconnect(ctx, gen); !ok {
				return
			}
		}
		reason := c.consume(ctx, gen, h)
		if reason == "" {
			if c.finish(gen, h) {
				_ = h.Close()
			}
			return
		}
		if !c.markReconnecting(gen, h, reason) {
			return
		}
		_ = h.Close()
		h = nil
	}
}

// consume delivers transcripts from h until the stream ends, stalls, ctx is
// done or gen is superseded. It returns the restart reason, or "" when the
// stream must not be reopened.
func (c *Controller) consume(ctx context.Context, gen uint64, h stt.SessionHandle) string {
	partials, finals := h.Partials(), h.Finals()

	var tick <-chan time.Time
	if c.cfg.StallTimeout > 0 {
		t := time.NewTicker(max(c.cfg.StallTimeout/4, 10*time.Millisecond))
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ""
		case t, ok := <-partials:
			if !ok {
				partials = nil
				if finals == nil {
					return reasonInterrupted
				}
				continue
			}
			if !c.apply(gen, t) {
				return ""
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				if partials == nil {
					return reasonInterrupted
				}
				continue
			}
			// Partials queued before the final belong to the same utterance.
			for drained := false; !drained && partials != nil; {
				select {
				case p, ok := <-partials:
					if !ok {
						partials = nil
					} else if !c.apply(gen, p) {
						return ""
					}
				default:
					drained = true
				}
			}
			if !c.apply(gen, t) {
				return ""
			}
		case <-tick:
			if c.stalled(gen) {
				return reasonStalled
			}
		}
	}
}

// apply ingests t if gen is still current and reports whether it still is.
func (c *Controller) apply(gen uint64, t stt.Transcript) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	_ = c.ingestLocked(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) stalled(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && !c.voicedSince.IsZero() && c.now().Sub(c.voicedSince) >= c.cfg.StallTimeout
}

// markReconnecting detaches h if gen is current and reports whether the
// caller should reopen the stream.
func (c *Controller) markReconnecting(gen uint64, h stt.SessionHandle, reason string) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	if c.handle == h {
		c.handle = nil
	}
	c.voicedSince = time.Time{}
	c.setStateLocked(StateReconnecting)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log().Warn("stt stream lost, reconnecting", "reason", reason)
	c.metrics.RecordSTTRestart(context.Background(), reason)
	c.notify(snap)
	return true
}

// finish ends generation gen after its context finished on its own, and
// reports whether the caller now owns h.
func (c *Controller) finish(gen uint64, h stt.SessionHandle) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	owned := c.handle == h
	_, cancel := c.detachLocked(StateStopped)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.notify(snap)
	return owned
}

// reconnect opens a new stream for gen with exponential backoff. The first
// attempt is immediate.
func (c *Controller) reconnect(ctx context.Context, gen uint64) (stt.SessionHandle, bool) {
	rc := c.cfg.Reconnect
	backoff := rc.Backoff
	var lastErr error

	for attempt := 1; attempt <= rc.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return nil, false
		}
		cfg := c.streamConfigLocked()
		c.mu.Unlock()

		h, err := c.provider.StartStream(ctx, cfg)
		if err == nil {
			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				_ = h.Close()
				return nil, false
			}
			c.handle = h
			c.voicedSince = time.Time{}
			c.setStateLocked(StateListening)
			snap := c.snapshotLocked()
			c.mu.Unlock()

			c.log().Info("stt stream reopened", "attempt", attempt)
			c.notify(snap)
			return h, true
		}
		lastErr = err
		c.log().Warn("stt reconnection attempt failed",
			"attempt", attempt,
			"max_retries", rc.MaxRetries,
			"backoff", backoff,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, rc.MaxBackoff)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil, false
	}
	c.lastErr = fmt.Errorf("session: reconnect failed after %d attempts: %w", rc.MaxRetries, lastErr)
	_, cancel := c.detachLocked(StateIdle)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.log().Error("stt reconnection failed after max retries", "max_retries", rc.MaxRetries, "err", lastErr)
	c.notify(snap)
	return nil, false
}

// detachLocked supersedes the current generation, moves to next and hands
// the stream and its cancel func to the caller, who must release them
// outside the lock.
func (c *Controller) detachLocked(next State) (stt.SessionHandle, context.CancelFunc) {
	c.gen++
	h, cancel := c.handle, c.cancel
	c.handle, c.cancel = nil, nil
	c.voicedSince = time.Time{}
	c.setStateLocked(next)
	return h, cancel
}

func release(h stt.SessionHandle, cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	if h != nil {
		_ = h.Close()
	}
}

func (c *Controller) setStateLocked(s State) {
	if was := c.state.active(); was != s.active() {
		delta := int64(1)
		if was {
			delta = -1
		}
		c.metrics.ListeningSessions.Add(context.Background(), delta)
	}
	c.state = s
}

func (c *Controller) streamConfigLocked() stt.StreamConfig {
	return stt.StreamConfig{
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		Language:   c.cfg.Language,
		Keywords:   c.keywords,
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	c.seq++
	s := Snapshot{
		Seq:        c.seq,
		SessionID:  c.id,
		State:      c.state,
		Hypothesis: c.buf.Len(),
		Category:   feedback.InProgress,
	}
	if c.passage != nil {
		s.PassageID = c.passage.ID
	}
	if c.engine != nil {
		s.Words = c.engine.Words()
		s.Cursor = c.engine.Cursor()
		s.Complete = c.engine.Complete()
		s.Summary = c.engine.Summary()
		s.Category = feedback.ForSummary(s.Summary)
	}
	if c.lastErr != nil {
		s.Err = c.lastErr.Error()
	}
	return s
}

func (c *Controller) notify(s Snapshot) {
	if c.onUpdate != nil {
		c.onUpdate(s)
	}
}

func (c *Controller) metricsContext() context.Context {
	if c.parent != nil {
		return c.parent
	}
	return context.Background()
}

func (c *Controller) log() *slog.Logger {
	return slog.With("session_id", c.id)
}

// keywordsFor lists the distinct words of idx as recognition hints, in
// reading order.
func keywordsFor(idx *reference.Index) []stt.KeywordBoost {
	seen := make(map[string]bool)
	var out []stt.KeywordBoost
	for i := range idx.Len() {
		w := idx.At(i).Normalized
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, stt.KeywordBoost{Keyword: w, Boost: keywordBoost})
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
