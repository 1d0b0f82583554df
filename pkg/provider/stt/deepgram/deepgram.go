// Package deepgram provides a Deepgram-backed STT provider using the
// pre-recorded audio endpoint (POST /v1/listen). It implements the
// stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/hifz/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "ar"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "whisper-large").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code for recognition (e.g., "ar").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the listen URL. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the clip and returns the best alternative of the first
// channel. Deepgram has no free-text prompt; Request.Prompt is ignored.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", stt.ErrEmptyAudio
	}

	u, err := p.buildURL(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(req.Audio))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", audioContentType(req.FilenameOrDefault()))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	text, err := parseDeepgramResponse(data)
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}
	return text, nil
}

// buildURL constructs the listen endpoint URL for a request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the subset of the pre-recorded response we read.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseDeepgramResponse extracts the top transcript. A response with no
// channels or alternatives is an empty transcript, not an error.
func parseDeepgramResponse(data []byte) (string, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse JSON response: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Results.Channels[0].Alternatives[0].Transcript), nil
}

func audioContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/webm"
	}
}
