// Package stt defines the streaming speech-to-text interface the recitation
// session listens through.
//
// A Provider opens a SessionHandle per listening period. The handle accepts
// raw 16-bit little-endian PCM and emits Transcript values on two channels:
// partials, which the provider may still revise, and finals, which it will
// not. Both channels are closed when the session ends, whether because Close
// was called or because the upstream stream went away; a consumer that did
// not call Close treats closed channels as an interruption it may recover
// from by opening a new session.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is wrapped by providers that cannot honour an optional
// request such as a mid-session keyword update.
var ErrNotSupported = errors.New("stt: not supported")

// ErrClosed is returned by SendAudio after the session has ended.
var ErrClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new
// session. Zero values select the provider's defaults.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz, typically 16000.
	SampleRate int

	// Channels is the number of interleaved audio channels.
	Channels int

	// Language is the BCP-47 tag of the recited language, "ar" for Arabic.
	Language string

	// Keywords biases recognition towards the words of the loaded passage.
	Keywords []KeywordBoost
}

// SessionHandle is one open transcription stream. All methods are safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM in the format agreed in StreamConfig.
	// It returns an error wrapping ErrClosed once the session has ended.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits authoritative transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the recognition hints. Providers that cannot do so
	// mid-stream return an error wrapping ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close ends the session and releases its resources. It is idempotent.
	Close() error
}

// Provider opens transcription sessions.
type Provider interface {
	// StartStream opens a session ready to accept audio. The caller must Close
	// the returned handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
