// NativeProvider links whisper.cpp through CGO. libwhisper.a and whisper.h must
// be reachable through LIBRARY_PATH and C_INCLUDE_PATH at build time.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/liamchens/quran-voice-buddy/pkg/audio/pcm"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt/batch"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider with an in-process whisper.cpp
// model. The model is loaded once and shared by all sessions; each utterance
// gets its own inference context.
type NativeProvider struct {
	model      whisperlib.Model
	language   string
	segmenting batch.Options
}

// NativeOption configures a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default recognition language. Defaults to "ar".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSilenceThresholdMs sets how much trailing silence ends an
// utterance.
func WithNativeSilenceThresholdMs(ms int) NativeOption {
	return func(p *NativeProvider) { p.segmenting.SilenceMs = ms }
}

// WithNativeMaxBufferDurationMs caps the length of a single utterance.
func WithNativeMaxBufferDurationMs(ms int) NativeOption {
	return func(p *NativeProvider) { p.segmenting.MaxUtteranceMs = ms }
}

// NewNative loads the model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a batch session running inference in-process.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if cfg.Language == "" {
		cfg.Language = p.language
	}
	s, err := batch.Start(ctx, "whisper-native", batch.TranscriberFunc(p.infer), cfg, p.segmenting)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *NativeProvider) infer(_ context.Context, utt []byte, f pcm.Format, language string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: language not supported by model, using default", "language", language, "err", err)
	}
	if err := wctx.Process(pcm.ToFloat32Mono(utt, f.Channels), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
