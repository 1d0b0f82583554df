package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/hifz/pkg/provider/stt"
	"github.com/MrWong99/hifz/pkg/provider/stt/whisper"
)

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. It stores the parsed form fields of the
// last request in *fields.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32, fields *map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if fields != nil {
			got := map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got[k] = v[0]
			}
			if fh := r.MultipartForm.File["file"]; len(fh) == 1 {
				f, _ := fh[0].Open()
				data, _ := io.ReadAll(f)
				_ = f.Close()
				got["file"] = string(data)
				got["filename"] = fh[0].Filename
			}
			*fields = got
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_UploadsClipWithHints(t *testing.T) {
	var calls atomic.Int32
	var fields map[string]string
	srv := newMockServer(t, " الكوثر\n", &calls, &fields)
	defer srv.Close()

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("large-v3"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    []byte("opus-bytes"),
		Filename: "clip.ogg",
		Prompt:   "القرآن الكريم",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "الكوثر" {
		t.Errorf("text = %q, want الكوثر", text)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}

	want := map[string]string{
		"file":            "opus-bytes",
		"filename":        "clip.ogg",
		"language":        "ar",
		"model":           "large-v3",
		"prompt":          "القرآن الكريم",
		"response_format": "json",
		"temperature":     "0",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestTranscribe_RequestLanguageOverridesDefault(t *testing.T) {
	var fields map[string]string
	srv := newMockServer(t, "hello", nil, &fields)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x"), Language: "en"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if fields["language"] != "en" {
		t.Errorf("language = %q, want en", fields["language"])
	}
	if fields["filename"] != stt.DefaultFilename {
		t.Errorf("filename = %q, want %q", fields["filename"], stt.DefaultFilename)
	}
	if _, ok := fields["prompt"]; ok {
		t.Error("empty prompt should not be sent")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := whisper.New("http://localhost:1")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	srv := newMockServer(t, "x", nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
