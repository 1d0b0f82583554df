package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/quiz"
)

// handleWatch upgrades to a WebSocket and pushes the session snapshot
// whenever it changes, so the client learns about appended batches without
// polling. The first snapshot is sent immediately. The server only writes;
// any message from the client is ignored.
func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")
	snap, err := h.game.Session(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.origins),
	})
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Debug("api: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(observe.WithSession(r.Context(), id))
	log := observe.Logger(ctx)

	if err := wsjson.Write(ctx, conn, snap); err != nil {
		return
	}
	last := snap

	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := h.game.Session(ctx, id)
		if errors.Is(err, quiz.ErrSessionNotFound) {
			conn.Close(websocket.StatusNormalClosure, "session gone")
			return
		}
		if err != nil {
			log.Warn("api: watch read failed", "err", err)
			conn.Close(websocket.StatusInternalError, "session read failed")
			return
		}
		if !changed(last, snap) {
			continue
		}
		if err := wsjson.Write(ctx, conn, snap); err != nil {
			log.Debug("api: watch write failed", "err", err)
			return
		}
		last = snap
	}
}

// changed reports whether b differs from a in a way the client renders.
func changed(a, b quiz.Snapshot) bool {
	return len(a.Questions) != len(b.Questions) ||
		a.CurrentIndex != b.CurrentIndex ||
		a.PrefetchInFlight != b.PrefetchInFlight ||
		len(a.History) != len(b.History)
}

// originPatterns turns allowed origins ("https://quiz.example") into the
// host patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
