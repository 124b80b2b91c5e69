// Package openai implements stt.Provider on the OpenAI audio transcription
// endpoint. Utterances are cut on silence and uploaded one at a time; the
// passage words passed as keywords become the transcription prompt, which
// biases recognition towards the expected text.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/liamchens/quran-voice-buddy/pkg/audio/pcm"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt/batch"
)

const (
	defaultModel    = "whisper-1"
	defaultLanguage = "ar"

	// maxPromptRunes keeps the prompt within the endpoint's token budget.
	maxPromptRunes = 800
)

type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	segmenting batch.Options
}

// Option configures a Provider.
type Option func(*config)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default recognition language. Defaults to "ar".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
func WithSilenceThresholdMs(ms int) Option {
	return func(c *config) { c.segmenting.SilenceMs = ms }
}

// Provider implements stt.Provider with OpenAI transcription models.
type Provider struct {
	client     oai.Client
	model      string
	language   string
	segmenting batch.Options
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider using model, "whisper-1" when empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	cfg := &config{language: defaultLanguage}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{
		client:     oai.NewClient(reqOpts...),
		model:      model,
		language:   cfg.language,
		segmenting: cfg.segmenting,
	}, nil
}

// StartStream opens a batch session. Keywords from cfg are joined into the
// prompt of every request in the session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if cfg.Language == "" {
		cfg.Language = p.language
	}
	prompt := promptFrom(cfg.Keywords)
	tr := batch.TranscriberFunc(func(ctx context.Context, utt []byte, f pcm.Format, lang string) (string, error) {
		return p.transcribe(ctx, utt, f, lang, prompt)
	})
	s, err := batch.Start(ctx, "openai", tr, cfg, p.segmenting)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Provider) transcribe(ctx context.Context, utt []byte, f pcm.Format, lang, prompt string) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(pcm.EncodeWAV(utt, f)), "utterance.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if prompt != "" {
		params.Prompt = oai.String(prompt)
	}
	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	return res.Text, nil
}

// promptFrom joins keywords into a prompt, truncated on a word boundary.
func promptFrom(kws []stt.KeywordBoost) string {
	var b strings.Builder
	n := 0
	for _, kw := range kws {
		r := len([]rune(kw.Keyword)) + 1
		if n+r > maxPromptRunes {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kw.Keyword)
		n += r
	}
	return b.String()
}
