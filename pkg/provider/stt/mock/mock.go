// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out Sessions in order and records every StartStream call.
// A Session lets a test push partial and final transcripts, inspect the audio
// it received, and simulate the upstream stream dropping with End.
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	h, _ := p.StartStream(ctx, cfg)
//	sess.Final("بسم الله")
//	sess.End() // channels close as if the connection was lost
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are returned by successive StartStream calls. Once exhausted a
	// fresh NewSession is returned for every further call.
	Sessions []*Session

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// FailFirst makes the first FailFirst calls return StartStreamErr and later
	// calls succeed. Zero with a non-nil StartStreamErr fails every call.
	FailFirst int

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	started []*Session
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the next session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil && (p.FailFirst == 0 || len(p.StartStreamCalls) <= p.FailFirst) {
		return nil, p.StartStreamErr
	}
	var s *Session
	if len(p.Sessions) > 0 {
		s, p.Sessions = p.Sessions[0], p.Sessions[1:]
	} else {
		s = NewSession()
	}
	p.started = append(p.started, s)
	return s, nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Started returns the sessions handed out so far, in order. Thread-safe.
func (p *Provider) Started() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.started))
	copy(out, p.started)
	return out
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	partials chan stt.Transcript
	finals   chan stt.Transcript
	ended    bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SetKeywordsErr, if non-nil, is returned by every SetKeywords call.
	SetKeywordsErr error

	audio      [][]byte
	keywords   [][]stt.KeywordBoost
	closeCalls int
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session with buffered output channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
}

// Partial emits an interim transcript. It is a no-op after End or Close.
func (s *Session) Partial(text string) { s.emit(stt.Transcript{Text: text}) }

// Final emits a final transcript. It is a no-op after End or Close.
func (s *Session) Final(text string) { s.emit(stt.Transcript{Text: text, IsFinal: true}) }

func (s *Session) emit(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if t.IsFinal {
		s.finals <- t
	} else {
		s.partials <- t
	}
}

// End closes both output channels, as a provider does when its upstream
// connection is lost. It is idempotent.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	close(s.partials)
	close(s.finals)
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return fmt.Errorf("mock: %w", stt.ErrClosed)
	}
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// Partials returns the interim channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords records a copy of keywords.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, append([]stt.KeywordBoost(nil), keywords...))
	return s.SetKeywordsErr
}

// Close ends the session and counts the call.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	s.End()
	return nil
}

// Audio returns the chunks received so far. Thread-safe.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Ended reports whether End or Close has been called. Thread-safe.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Keywords returns every keyword list passed to SetKeywords. Thread-safe.
func (s *Session) Keywords() [][]stt.KeywordBoost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]stt.KeywordBoost, len(s.keywords))
	copy(out, s.keywords)
	return out
}
