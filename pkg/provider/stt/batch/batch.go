// Package batch adapts utterance-at-a-time transcription engines to the
// streaming stt.SessionHandle interface.
//
// Engines such as whisper.cpp or a hosted transcription API take a complete
// clip and return its text. A batch session segments incoming PCM on silence
// with pcm.Segmenter and hands each utterance to a Transcriber, emitting the
// result as a final transcript. Batch sessions never emit partials.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/liamchens/quran-voice-buddy/pkg/audio/pcm"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// flushTimeout bounds the transcription of the last utterance on Close.
const flushTimeout = 30 * time.Second

// Transcriber turns one utterance of PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, utterance []byte, f pcm.Format, language string) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, utterance []byte, f pcm.Format, language string) (string, error)

// Transcribe calls fn.
func (fn TranscriberFunc) Transcribe(ctx context.Context, utterance []byte, f pcm.Format, language string) (string, error) {
	return fn(ctx, utterance, f, language)
}

// Options controls segmentation of a batch session.
type Options struct {
	SilenceMs      int
	MaxUtteranceMs int
	SilenceRMS     float64
}

// Session is a stt.SessionHandle backed by a Transcriber.
type Session struct {
	name     string
	tr       Transcriber
	format   pcm.Format
	language string
	seg      *pcm.Segmenter

	audio    chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	// elapsed is the audio time received so far. Owned by loop.
	elapsed time.Duration
}

var _ stt.SessionHandle = (*Session)(nil)

// Start opens a session that runs until Close is called or ctx is done. name
// prefixes log lines and errors.
func Start(ctx context.Context, name string, tr Transcriber, cfg stt.StreamConfig, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: context already cancelled: %w", name, err)
	}
	f := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = 16000
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	seg := pcm.NewSegmenter(f)
	if opts.SilenceMs > 0 {
		seg.SilenceMs = opts.SilenceMs
	}
	if opts.MaxUtteranceMs > 0 {
		seg.MaxUtteranceMs = opts.MaxUtteranceMs
	}
	if opts.SilenceRMS > 0 {
		seg.SilenceRMS = opts.SilenceRMS
	}

	s := &Session{
		name:     name,
		tr:       tr,
		format:   f,
		language: cfg.Language,
		seg:      seg,
		audio:    make(chan []byte, 256),
		partials: make(chan stt.Transcript),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
	}
	close(s.partials)

	s.wg.Add(1)
	go s.loop(ctx)
	return s, nil
}

// SendAudio queues a chunk for segmentation.
func (s *Session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("%s: %w", s.name, stt.ErrClosed)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("%s: %w", s.name, stt.ErrClosed)
	}
}

// Partials returns a closed channel; batch engines produce finals only.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of transcribed utterances.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords is not supported by batch engines.
func (s *Session) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("%s: keyword hints: %w", s.name, stt.ErrNotSupported)
}

// Close transcribes any buffered speech, closes Finals and waits for the
// session goroutine to exit.
func (s *Session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.finals)

	final := func() {
		fc, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		s.emit(fc, s.seg.Flush())
	}

	for {
		select {
		case <-ctx.Done():
			final()
			return
		case <-s.done:
			final()
			return
		case chunk := <-s.audio:
			s.elapsed += time.Duration(s.format.DurationMs(len(chunk))) * time.Millisecond
			s.emit(ctx, s.seg.Push(chunk))
		}
	}
}

func (s *Session) emit(ctx context.Context, utt []byte) {
	if len(utt) == 0 {
		return
	}
	text, err := s.tr.Transcribe(ctx, utt, s.format, s.language)
	if err != nil {
		slog.Warn("batch transcription failed", "provider", s.name, "err", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	dur := time.Duration(s.format.DurationMs(len(utt))) * time.Millisecond
	t := stt.Transcript{
		Text:      text,
		IsFinal:   true,
		Timestamp: max(s.elapsed-dur, 0),
		Duration:  dur,
	}
	select {
	case s.finals <- t:
	default:
		slog.Warn("batch transcript dropped: finals channel full", "provider", s.name)
	}
}
