package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/hifz/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := New("gsk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_SendsMultipartFields(t *testing.T) {
	fields := map[string]string{}
	var gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("MultipartReader: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("NextPart: %v", err)
				break
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				gotFilename = part.FileName()
				continue
			}
			fields[part.FormName()] = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text": "  السلام  "}`)
	}))
	defer srv.Close()

	p, err := New("gsk-test", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    []byte("fake-webm"),
		Filename: "answer.webm",
		Prompt:   "سياق",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "السلام" {
		t.Errorf("text = %q, want trimmed السلام", text)
	}
	if gotFilename != "answer.webm" {
		t.Errorf("filename = %q, want answer.webm", gotFilename)
	}
	if fields["model"] != defaultModel {
		t.Errorf("model = %q, want %q", fields["model"], defaultModel)
	}
	if fields["language"] != "ar" {
		t.Errorf("language = %q, want ar", fields["language"])
	}
	if fields["prompt"] != "سياق" {
		t.Errorf("prompt = %q, want سياق", fields["prompt"])
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"unauthorized"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("gsk-test", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a.unknownext"); got != "application/octet-stream" {
		t.Errorf("contentType = %q", got)
	}
	if got := contentType("a.WAV"); got != "audio/wav" {
		t.Errorf("contentType(a.WAV) = %q, want audio/wav", got)
	}
	if got := contentType("a.webm"); got != "audio/webm" {
		t.Errorf("contentType(a.webm) = %q, want audio/webm", got)
	}
}
