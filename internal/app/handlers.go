package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liamchens/quran-voice-buddy/internal/observe"
	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/recite/normalize"
)

// passageView is the JSON form of a passage with its comparison tokens.
type passageView struct {
	ID       string        `json:"id"`
	Title    string        `json:"title,omitempty"`
	Tokens   int           `json:"tokens"`
	Segments []segmentView `json:"segments"`
}

type segmentView struct {
	Number int      `json:"number"`
	Text   string   `json:"text"`
	Tokens []string `json:"tokens"`
}

type errorBody struct {
	Error string `json:"error"`
}

func newPassageView(p *passage.Passage) passageView {
	v := passageView{ID: p.ID, Title: p.Title, Segments: make([]segmentView, 0, len(p.Segments))}
	for _, s := range p.Segments {
		toks := normalize.Fields(s.Text)
		if toks == nil {
			toks = []string{}
		}
		v.Tokens += len(toks)
		v.Segments = append(v.Segments, segmentView{Number: s.Number, Text: s.Text, Tokens: toks})
	}
	return v
}

func (a *App) handlePassage(w http.ResponseWriter, r *http.Request) {
	p, status, err := a.lookupPassage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newPassageView(p))
}

func (a *App) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sessions.List())
}

// lookupPassage fetches id and maps failures to an HTTP status.
func (a *App) lookupPassage(ctx context.Context, id string) (*passage.Passage, int, error) {
	if id == "" {
		return nil, http.StatusBadRequest, errors.New("passage id is required")
	}
	p, err := a.providers.Passages.Passage(ctx, id)
	switch {
	case errors.Is(err, passage.ErrNotFound):
		return nil, http.StatusNotFound, err
	case err != nil:
		observe.Logger(ctx).Error("passage lookup failed", "passage", id, "err", err)
		return nil, http.StatusBadGateway, errors.New("passage source unavailable")
	}
	return p, http.StatusOK, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
