// Package api exposes the quiz over HTTP for the browser client.
//
// Routes:
//
//	POST /api/game/start               start a session, returns its snapshot
//	POST /api/game/answer              submit an answer (multipart audio or JSON text)
//	GET  /api/game/summary/{sessionID} batch summary after a batch boundary
//	GET  /api/game/stats/{sessionID}   whole-session analysis
//	GET  /api/game/session/{sessionID} current snapshot, polled while a prefetch runs
//	GET  /api/game/watch/{sessionID}   WebSocket stream of snapshots as they change
//	GET  /api/passages                 corpus listing
//
// Error responses are JSON objects of the form {"error": "..."}.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/passage"
	"github.com/MrWong99/hifz/internal/quiz"
	"github.com/MrWong99/hifz/pkg/provider/stt"
)

// Game is the part of [quiz.Engine] the handlers drive.
type Game interface {
	StartSession(ctx context.Context) (quiz.Snapshot, error)
	SubmitAnswer(ctx context.Context, sessionID, transcribed string) (quiz.AnswerResult, error)
	CurrentQuestion(sessionID string) (quiz.Question, bool, error)
	BatchSummary(ctx context.Context, sessionID string) (quiz.Summary, error)
	SessionStats(ctx context.Context, sessionID string) (string, error)
	Session(ctx context.Context, sessionID string) (quiz.Snapshot, error)
}

var _ Game = (*quiz.Engine)(nil)

// Handler serves the quiz routes.
type Handler struct {
	game     Game
	stt      stt.Provider
	sttName  string
	language string
	passages passage.Source
	metrics  *observe.Metrics

	maxUpload     int64
	watchInterval time.Duration
	origins       []string
}

// Option configures a [Handler].
type Option func(*Handler)

// WithSTT sets the transcription backend used for audio answers. Without
// one, audio uploads are rejected with 503 and only JSON text answers work.
func WithSTT(p stt.Provider, name string) Option {
	return func(h *Handler) {
		h.stt = p
		h.sttName = name
	}
}

// WithLanguage sets the recognition language hint. Default: "ar".
func WithLanguage(lang string) Option { return func(h *Handler) { h.language = lang } }

// WithPassages enables GET /api/passages.
func WithPassages(src passage.Source) Option { return func(h *Handler) { h.passages = src } }

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option { return func(h *Handler) { h.metrics = m } }

// WithMaxUploadBytes caps the size of an uploaded recording. Default: 10 MiB.
func WithMaxUploadBytes(n int64) Option { return func(h *Handler) { h.maxUpload = n } }

// WithWatchInterval sets how often the watch socket re-reads the session.
// Default: 500ms.
func WithWatchInterval(d time.Duration) Option { return func(h *Handler) { h.watchInterval = d } }

// WithAllowedOrigins sets the origins allowed for CORS and WebSocket
// upgrades. "*" allows any origin. Default: same-origin only.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) { h.origins = origins }
}

// New creates a [Handler] around game.
func New(game Game, opts ...Option) *Handler {
	h := &Handler{
		game:          game,
		language:      "ar",
		maxUpload:     10 << 20,
		watchInterval: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Register adds the quiz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/game/start", h.handleStart)
	mux.HandleFunc("POST /api/game/answer", h.handleAnswer)
	mux.HandleFunc("GET /api/game/summary/{sessionID}", h.handleSummary)
	mux.HandleFunc("GET /api/game/stats/{sessionID}", h.handleStats)
	mux.HandleFunc("GET /api/game/session/{sessionID}", h.handleSession)
	mux.HandleFunc("GET /api/game/watch/{sessionID}", h.handleWatch)
	mux.HandleFunc("GET /api/passages", h.handlePassages)
	mux.HandleFunc("OPTIONS /api/", h.handlePreflight)
}

// Routes returns the quiz routes wrapped in CORS handling and
// [observe.Middleware].
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return observe.Middleware(h.metrics)(h.cors(mux))
}

// startResponse carries the session even when the first batch failed, so the
// client can show the session ID and retry later.
type startResponse struct {
	quiz.Snapshot
	Error string `json:"error,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.game.StartSession(r.Context())
	switch {
	case errors.Is(err, quiz.ErrGenerationUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, startResponse{Snapshot: snap, Error: "generation unavailable"})
	case err != nil:
		writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, startResponse{Snapshot: snap})
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.game.BatchSummary(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.game.SessionStats(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stats": stats})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.game.Session(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handlePassages(w http.ResponseWriter, r *http.Request) {
	if h.passages == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no passage corpus configured"})
		return
	}
	list, err := h.passages.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type errorBody struct {
	Error string `json:"error"`
}

// errBadRequest marks client mistakes detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// statusFor maps engine and handler errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, quiz.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, quiz.ErrNoQuestion):
		return http.StatusConflict
	case errors.Is(err, quiz.ErrInvalidQuestion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quiz.ErrGenerationUnavailable), errors.Is(err, passage.ErrEmptyCorpus), errors.Is(err, errNoSTT):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("api: request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
