package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/quiz"
	"github.com/MrWong99/hifz/pkg/provider/stt"
)

// genericHint primes recognition when the session has no current question.
const genericHint = "القرآن الكريم. نطق عربي فصيح."

// recitationHint wraps the filled verse so the recogniser expects it.
func recitationHint(q quiz.Question) string {
	return fmt.Sprintf("سياق الآية: \"%s\". المستخدم يقرأ كلمة من هذه الآية.", q.Filled())
}

type textAnswer struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// handleAnswer accepts either a multipart form with "sessionId" and an
// "audio" file, which is transcribed first, or a JSON body with "sessionId"
// and an already transcribed "text".
func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		sessionID, text string
		err             error
	)
	if mediaType == "multipart/form-data" {
		sessionID, text, err = h.transcribeUpload(w, r)
	} else {
		var body textAnswer
		if derr := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); derr != nil {
			err = fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, derr)
		} else if body.SessionID == "" {
			err = fmt.Errorf("%w: missing sessionId", errBadRequest)
		}
		sessionID, text = body.SessionID, body.Text
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.game.SubmitAnswer(r.Context(), sessionID, text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// errNoSTT is returned for audio uploads when no transcription backend is
// configured.
var errNoSTT = errors.New("api: speech recognition is not configured")

// transcribeUpload reads the multipart answer and turns the recording into
// text. A transcription failure yields empty text rather than an error, so
// the attempt is still judged (as wrong) and the session moves on.
func (h *Handler) transcribeUpload(w http.ResponseWriter, r *http.Request) (sessionID, text string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return "", "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	sessionID = r.FormValue("sessionId")
	file, hdr, ferr := r.FormFile("audio")
	if sessionID == "" || ferr != nil {
		return "", "", fmt.Errorf("%w: missing audio or sessionId", errBadRequest)
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return "", "", fmt.Errorf("%w: read audio: %v", errBadRequest, err)
	}

	q, ok, err := h.game.CurrentQuestion(sessionID)
	if err != nil {
		return "", "", err
	}
	if h.stt == nil {
		return "", "", errNoSTT
	}
	hint := genericHint
	if ok {
		hint = recitationHint(q)
	}

	ctx, span := observe.StartSpan(observe.WithSession(r.Context(), sessionID), "api.Transcribe")
	start := time.Now()
	text, err = h.stt.Transcribe(ctx, stt.Request{
		Audio:    audio,
		Filename: hdr.Filename,
		Prompt:   hint,
		Language: h.language,
	})
	h.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", h.sttName)))
	observe.EndSpan(span, err)
	if err != nil {
		h.metrics.RecordProviderRequest(ctx, h.sttName, "stt", "error")
		h.metrics.RecordProviderError(ctx, h.sttName, "stt")
		observe.Logger(ctx).Warn("api: transcription failed, judging empty answer", "err", err)
		return sessionID, "", nil
	}
	h.metrics.RecordProviderRequest(ctx, h.sttName, "stt", "ok")

	text = strings.TrimSpace(text)
	observe.Logger(ctx).Debug("api: transcribed answer", "text", text)
	return sessionID, text, nil
}
