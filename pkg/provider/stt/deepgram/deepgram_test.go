package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/hifz/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestBuildURL(t *testing.T) {
	p, _ := New("key", WithModel("whisper-large"))
	raw, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	if q.Get("model") != "whisper-large" {
		t.Errorf("model = %q", q.Get("model"))
	}
	if q.Get("language") != "ar" {
		t.Errorf("language = %q, want ar", q.Get("language"))
	}

	raw, _ = p.buildURL(stt.Request{Language: "en"})
	u, _ = url.Parse(raw)
	if got := u.Query().Get("language"); got != "en" {
		t.Errorf("language override = %q, want en", got)
	}
}

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "transcript",
			body: `{"results":{"channels":[{"alternatives":[{"transcript":" ربه ","confidence":0.9}]}]}}`,
			want: "ربه",
		},
		{name: "no channels", body: `{"results":{"channels":[]}}`, want: ""},
		{name: "no alternatives", body: `{"results":{"channels":[{"alternatives":[]}]}}`, want: ""},
		{name: "bad json", body: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDeepgramResponse([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranscribe_AgainstFakeServer(t *testing.T) {
	var gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"الكوثر"}]}]}}`)
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint(srv.URL+"/v1/listen"))
	text, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("clip"), Filename: "a.ogg"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "الكوثر" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Token secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "audio/ogg" {
		t.Errorf("Content-Type = %q, want audio/ogg", gotType)
	}
	if gotBody != "clip" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint(srv.URL))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for HTTP 403")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := New("secret")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}
