// Package deepgram implements stt.Provider on Deepgram's live streaming
// WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "ar"
	defaultSampleRate = 16000

	// Deepgram closes a stream after ten seconds without audio. Reciters
	// pause between verses, so idle streams are kept open.
	keepAliveInterval = 5 * time.Second

	// closeTimeout bounds how long Close waits for Deepgram to flush.
	closeTimeout = 2 * time.Second
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model, e.g. "nova-3" or "nova-2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language. Defaults to "ar".
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider backed by Deepgram.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram and returns a live session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)
	return s, nil
}

// buildURL renders the streaming URL for cfg. Punctuation and formatting are
// disabled because every transcript is normalised before alignment.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "false")
	q.Set("smart_format", "false")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	// Nova-3 takes plain key terms; older models take word:boost pairs.
	for _, kw := range cfg.Keywords {
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw.Keyword)
			continue
		}
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the subset of a Results event the session reads.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is one live stream. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("deepgram: %w", stt.ErrClosed)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("deepgram: %w", stt.ErrClosed)
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords is not supported: Deepgram fixes key terms when the stream opens.
func (s *session) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("deepgram: mid-stream keyword update: %w", stt.ErrNotSupported)
}

// Close asks Deepgram to flush, waits for the stream to drain and closes the
// connection.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))

		drained := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(closeTimeout):
		}
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		<-drained
	})
	return nil
}

// writeLoop forwards audio and keeps the stream alive while the reciter is
// silent.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	idle := true

	for {
		select {
		case chunk := <-s.audio:
			idle = false
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-ticker.C:
			if idle {
				if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
					return
				}
			}
			idle = true
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop dispatches Results events until the connection ends. Both output
// channels are closed on return so the consumer observes the end of stream.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
			default:
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					slog.Warn("deepgram stream ended", "err", err)
				}
			}
			return
		}

		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.done:
			return
		}
	}
}

// parseDeepgramResponse converts a Results event into a Transcript. Other
// event types, empty results and malformed messages report false.
func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return stt.Transcript{}, false
	}
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
		Timestamp:  seconds(resp.Start),
		Duration:   seconds(resp.Duration),
	}, true
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
