package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/liamchens/quran-voice-buddy/internal/observe"
	"github.com/liamchens/quran-voice-buddy/internal/session"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

const (
	// maxMessageBytes bounds one client frame. 1 MiB holds over 30 seconds
	// of 16 kHz mono PCM.
	maxMessageBytes = 1 << 20

	writeTimeout = 10 * time.Second
)

// Client message types.
const (
	msgStart      = "start"
	msgStop       = "stop"
	msgReset      = "reset"
	msgTranscript = "transcript"
)

// clientMessage is a JSON control frame sent by the client. Binary frames
// carry PCM audio instead.
type clientMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
}

// updateMessage carries a snapshot to the client.
type updateMessage struct {
	Type string `json:"type"`
	session.Snapshot
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// updates coalesces snapshots so a slow client only ever receives the
// newest one.
type updates struct {
	mu     sync.Mutex
	latest session.Snapshot
	has    bool
	ready  chan struct{}
}

func newUpdates() *updates {
	return &updates{ready: make(chan struct{}, 1)}
}

func (u *updates) push(s session.Snapshot) {
	u.mu.Lock()
	if !u.has || s.Seq > u.latest.Seq {
		u.latest, u.has = s, true
	}
	u.mu.Unlock()
	select {
	case u.ready <- struct{}{}:
	default:
	}
}

func (u *updates) pop() (session.Snapshot, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.latest, u.has
	u.has = false
	return s, ok
}

// handleRecite upgrades to a WebSocket bound to a new session for the
// passage named by the "passage" query parameter.
func (a *App) handleRecite(w http.ResponseWriter, r *http.Request) {
	p, status, err := a.lookupPassage(r.Context(), r.URL.Query().Get("passage"))
	if err != nil {
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}

	out := newUpdates()
	ctrl, err := a.sessions.Open(p, out.push)
	if errors.Is(err, ErrTooManySessions) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	defer a.sessions.Close(ctrl.ID())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", ctrl.ID(), "err", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(observe.WithSessionID(r.Context(), ctrl.ID()))
	defer cancel()
	log := observe.Logger(ctx)
	log.Info("recitation connected", "passage", p.ID)

	// The reader ends the connection; the writer follows.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writeUpdates(gctx, conn, out) })
	g.Go(func() error {
		defer cancel()
		return readClient(gctx, conn, ctrl)
	})
	err = g.Wait()

	switch {
	case r.Context().Err() != nil:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		log.Warn("recitation connection error", "err", err)
		conn.Close(websocket.StatusInternalError, "session error")
	}
	log.Info("recitation disconnected", "state", ctrl.State())
}

// writeUpdates sends snapshots in Seq order, skipping any older than the
// last one sent.
func writeUpdates(ctx context.Context, conn *websocket.Conn, u *updates) error {
	var sent uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-u.ready:
		}
		s, ok := u.pop()
		if !ok || s.Seq <= sent {
			continue
		}
		if err := writeMessage(ctx, conn, updateMessage{Type: "update", Snapshot: s}); err != nil {
			return fmt.Errorf("app: write update: %w", err)
		}
		sent = s.Seq
	}
}

// readClient dispatches client frames to ctrl until the client disconnects.
// A nil return means the client closed the connection normally.
func readClient(ctx context.Context, conn *websocket.Conn, ctrl *session.Controller) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("app: read: %w", err)
		}

		if typ == websocket.MessageBinary {
			// Audio after completion or before start is expected and dropped.
			if err := ctrl.SendAudio(data); err != nil && !errors.Is(err, session.ErrStopped) {
				if werr := sendError(ctx, conn, err); werr != nil {
					return werr
				}
			}
			continue
		}

		if err := handleControl(ctx, ctrl, data); err != nil {
			if werr := sendError(ctx, conn, err); werr != nil {
				return werr
			}
		}
	}
}

func handleControl(ctx context.Context, ctrl *session.Controller, data []byte) error {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("app: decode message: %w", err)
	}
	switch msg.Type {
	case msgStart:
		return ctrl.Start(ctx)
	case msgStop:
		ctrl.Stop()
		return nil
	case msgReset:
		return ctrl.Reset()
	case msgTranscript:
		return ctrl.Feed(stt.Transcript{Text: msg.Text, IsFinal: msg.Final})
	default:
		return fmt.Errorf("app: unknown message type %q", msg.Type)
	}
}

func sendError(ctx context.Context, conn *websocket.Conn, err error) error {
	return writeMessage(ctx, conn, errorMessage{Type: "error", Error: err.Error()})
}

func writeMessage(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
