package quranapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
)

const ikhlasJSON = `{"code":200,"status":"OK","data":{"number":112,"name":"سُورَةُ الإِخۡلَاصِ","englishName":"Al-Ikhlaas","ayahs":[
{"number":6222,"numberInSurah":1,"text":"بِسْمِ ٱللَّهِ ٱلرَّحْمَٰنِ ٱلرَّحِيمِ قُلْ هُوَ ٱللَّهُ أَحَدٌ"},
{"number":6223,"numberInSurah":2,"text":"ٱللَّهُ ٱلصَّمَدُ"},
{"number":6224,"numberInSurah":3,"text":"لَمْ يَلِدْ وَلَمْ يُولَدْ"},
{"number":6225,"numberInSurah":4,"text":"وَلَمْ يَكُن لَّهُۥ كُفُوًا أَحَدٌۢ"}]}}`

type pathLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *pathLog) add(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, p)
}

func (l *pathLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.paths)
}

func newTestServer(t *testing.T) (*httptest.Server, *pathLog) {
	t.Helper()
	log := &pathLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path)
		switch r.URL.Path {
		case "/v1/surah/112/quran-uthmani":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(ikhlasJSON))
		case "/v1/surah/113/quran-uthmani":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":404,"status":"Not Found","data":"Not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func TestParseRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id      string
		want    Ref
		wantErr bool
	}{
		{id: "112", want: Ref{Surah: 112}},
		{id: "2:255", want: Ref{Surah: 2, From: 255, To: 255}},
		{id: " 2:1-5 ", want: Ref{Surah: 2, From: 1, To: 5}},
		{id: "0", wantErr: true},
		{id: "115", wantErr: true},
		{id: "al-fatiha", wantErr: true},
		{id: "2:0", wantErr: true},
		{id: "2:5-1", wantErr: true},
		{id: "2:1-x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRef(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRef(%q) err = %v, wantErr %v", tt.id, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRef(%q) = %+v, want %+v", tt.id, got, tt.want)
		}
	}
}

func TestClient_Passage(t *testing.T) {
	t.Parallel()
	srv, paths := newTestServer(t)
	c := New(WithBaseURL(srv.URL + "/v1/"))

	p, err := c.Passage(context.Background(), "112")
	if err != nil {
		t.Fatalf("Passage: %v", err)
	}
	if p.ID != "112" || p.Title != "Al-Ikhlaas" || len(p.Segments) != 4 {
		t.Fatalf("got %+v", p)
	}
	if p.Segments[0].Text != "قُلْ هُوَ ٱللَّهُ أَحَدٌ" {
		t.Errorf("basmala not stripped: %q", p.Segments[0].Text)
	}
	if got := paths.get(); !slices.Equal(got, []string{"/v1/surah/112/quran-uthmani"}) {
		t.Errorf("requested %v", got)
	}
}

func TestClient_PassageRange(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	c := New(WithBaseURL(srv.URL+"/v1"), WithHTTPClient(srv.Client()))

	p, err := c.Passage(context.Background(), "112:2-3")
	if err != nil {
		t.Fatalf("Passage: %v", err)
	}
	if len(p.Segments) != 2 || p.Segments[0].Number != 2 || p.Segments[1].Number != 3 {
		t.Errorf("segments = %+v", p.Segments)
	}
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	c := New(WithBaseURL(srv.URL+"/v1"), WithEdition("quran-uthmani"))

	tests := []struct {
		id           string
		wantNotFound bool
	}{
		{id: "nonsense", wantNotFound: true},
		{id: "114", wantNotFound: true},
		{id: "112:5", wantNotFound: true},
		{id: "112:3-9", wantNotFound: true},
		{id: "113", wantNotFound: false},
	}
	for _, tt := range tests {
		_, err := c.Passage(context.Background(), tt.id)
		if err == nil {
			t.Errorf("Passage(%q): expected error", tt.id)
			continue
		}
		if got := errors.Is(err, passage.ErrNotFound); got != tt.wantNotFound {
			t.Errorf("Passage(%q) err = %v, not-found = %v, want %v", tt.id, err, got, tt.wantNotFound)
		}
	}
}

func TestStripBasmala(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"بِسْمِ ٱللَّهِ ٱلرَّحْمَٰنِ ٱلرَّحِيمِ قُلْ أَعُوذُ", "قُلْ أَعُوذُ"},
		{"قُلْ هُوَ ٱللَّهُ أَحَدٌ", "قُلْ هُوَ ٱللَّهُ أَحَدٌ"},
		{"بِسْمِ ٱللَّهِ ٱلرَّحْمَٰنِ ٱلرَّحِيمِ", "بِسْمِ ٱللَّهِ ٱلرَّحْمَٰنِ ٱلرَّحِيمِ"},
	}
	for _, tt := range tests {
		if got := stripBasmala(tt.in); got != tt.want {
			t.Errorf("stripBasmala(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
