// Package whisper provides STT providers backed by whisper.cpp.
//
// Provider talks to a running whisper-server over its REST API
// (POST /inference). NativeProvider links whisper.cpp through its Go bindings
// and runs inference in-process. whisper.cpp transcribes complete clips, so
// both providers segment the incoming PCM on silence and emit one final
// transcript per utterance; see package batch.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("ar"))
//	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
//	h.SendAudio(pcmChunk)
//	t := <-h.Finals()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/liamchens/quran-voice-buddy/pkg/audio/pcm"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt/batch"
)

const defaultLanguage = "ar"

var _ stt.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model name forwarded to the server. Empty leaves the
// server's loaded model in use.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language. Defaults to "ar".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.segmenting.SilenceMs = ms }
}

// WithMaxBufferDurationMs caps the length of a single utterance.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.segmenting.MaxUtteranceMs = ms }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider against a whisper-server HTTP endpoint.
type Provider struct {
	serverURL  string
	model      string
	language   string
	segmenting batch.Options
	httpClient *http.Client
}

// New returns a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a batch session. No connection is made until the first
// utterance is complete.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if cfg.Language == "" {
		cfg.Language = p.language
	}
	s, err := batch.Start(ctx, "whisper", batch.TranscriberFunc(p.infer), cfg, p.segmenting)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// infer uploads utt as a WAV file and returns the recognised text.
func (p *Provider) infer(ctx context.Context, utt []byte, f pcm.Format, language string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(pcm.EncodeWAV(utt, f)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        language,
		"model":           p.model,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
