// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It talks to a running whisper-server binary, which exposes a REST API at
// POST /inference. The recorded clip is uploaded unchanged; start the server
// with --convert so it can decode browser containers such as webm/opus.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("ar"))
//	text, err := p.Transcribe(ctx, stt.Request{Audio: clip, Prompt: hint})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/hifz/pkg/provider/stt"
)

const defaultLanguage = "ar"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "large-v3"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "ar".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTemperature sets the decoding temperature. Defaults to 0.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
type Provider struct {
	serverURL   string
	model       string
	language    string
	temperature float64
	httpClient  *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", stt.ErrEmptyAudio
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", req.FilenameOrDefault())
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", strconv.FormatFloat(p.temperature, 'f', -1, 64)},
		{"language", lang},
		{"model", p.model},
		{"prompt", req.Prompt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}
