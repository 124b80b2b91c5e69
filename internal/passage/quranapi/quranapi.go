// Package quranapi fetches passages from an alquran.cloud compatible REST
// API.
//
// Passage IDs name a surah ("112"), a single verse ("2:255") or a verse range
// ("2:1-5"). The API is asked for the whole surah; ranges are cut locally.
package quranapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/recite/normalize"
)

const (
	// DefaultBaseURL is the public alquran.cloud API.
	DefaultBaseURL = "https://api.alquran.cloud/v1"

	// DefaultEdition is the Uthmani script edition.
	DefaultEdition = "quran-uthmani"

	surahCount = 114
)

// The API prefixes the first verse of most surahs with the basmala.
var basmala = strings.Fields(normalize.Text("بسم الله الرحمن الرحيم"))

var _ passage.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithEdition selects the text edition.
func WithEdition(e string) Option {
	return func(c *Client) { c.edition = e }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client is a [passage.Provider] reading from the API.
type Client struct {
	baseURL string
	edition string
	http    *http.Client
}

// New returns a Client for the public API unless overridden by opts.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		edition: DefaultEdition,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ref is a parsed passage ID.
type Ref struct {
	Surah int
	// From and To are the inclusive verse range; zero selects the whole surah.
	From, To int
}

// ParseRef parses "S", "S:V" or "S:V-W".
func ParseRef(id string) (Ref, error) {
	surah, verses, hasVerses := strings.Cut(strings.TrimSpace(id), ":")
	var r Ref
	var err error
	if r.Surah, err = strconv.Atoi(surah); err != nil || r.Surah < 1 || r.Surah > surahCount {
		return Ref{}, fmt.Errorf("quranapi: invalid surah in %q", id)
	}
	if !hasVerses {
		return r, nil
	}
	from, to, isRange := strings.Cut(verses, "-")
	if r.From, err = strconv.Atoi(from); err != nil || r.From < 1 {
		return Ref{}, fmt.Errorf("quranapi: invalid verse in %q", id)
	}
	r.To = r.From
	if isRange {
		if r.To, err = strconv.Atoi(to); err != nil || r.To < r.From {
			return Ref{}, fmt.Errorf("quranapi: invalid verse range in %q", id)
		}
	}
	return r, nil
}

type surahResponse struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type surahData struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	EnglishName string `json:"englishName"`
	Ayahs       []struct {
		NumberInSurah int    `json:"numberInSurah"`
		Text          string `json:"text"`
	} `json:"ayahs"`
}

// Passage implements [passage.Provider]. Malformed IDs and verses outside
// the surah are reported as [passage.ErrNotFound].
func (c *Client) Passage(ctx context.Context, id string) (*passage.Passage, error) {
	ref, err := ParseRef(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", passage.ErrNotFound, err)
	}

	endpoint := fmt.Sprintf("%s/surah/%d/%s", c.baseURL, ref.Surah, url.PathEscape(c.edition))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("quranapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quranapi: get surah %d: %w", ref.Surah, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("quranapi: %w: surah %d in edition %q", passage.ErrNotFound, ref.Surah, c.edition)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("quranapi: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var env surahResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("quranapi: decode response: %w", err)
	}
	if env.Code != http.StatusOK {
		return nil, fmt.Errorf("quranapi: %w: API status %d %s", passage.ErrNotFound, env.Code, env.Status)
	}
	var data surahData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("quranapi: decode surah: %w", err)
	}
	return toPassage(id, ref, data)
}

func toPassage(id string, ref Ref, data surahData) (*passage.Passage, error) {
	p := &passage.Passage{ID: id, Title: data.EnglishName}
	for _, a := range data.Ayahs {
		if ref.From > 0 && (a.NumberInSurah < ref.From || a.NumberInSurah > ref.To) {
			continue
		}
		text := a.Text
		if a.NumberInSurah == 1 && ref.Surah != 1 {
			text = stripBasmala(text)
		}
		p.Segments = append(p.Segments, passage.Segment{Number: a.NumberInSurah, Text: text})
	}
	if len(p.Segments) == 0 {
		return nil, fmt.Errorf("quranapi: %w: no verses for %q", passage.ErrNotFound, id)
	}
	if ref.From > 0 && p.Segments[len(p.Segments)-1].Number < ref.To {
		return nil, fmt.Errorf("quranapi: %w: surah %d has no verse %d", passage.ErrNotFound, ref.Surah, ref.To)
	}
	if err := passage.Validate(p); err != nil {
		return nil, errors.Join(passage.ErrNotFound, err)
	}
	return p, nil
}

// stripBasmala removes a leading basmala from the first verse of a surah.
func stripBasmala(text string) string {
	words := strings.Fields(text)
	if len(words) <= len(basmala) {
		return text
	}
	for i, w := range basmala {
		if normalize.Token(words[i]) != w {
			return text
		}
	}
	return strings.Join(words[len(basmala):], " ")
}
