// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint. Groq serves the same API shape, so pointing
// [WithBaseURL] at https://api.groq.com/openai/v1 selects Groq's hosted
// whisper-large-v3, which is the default model.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/hifz/pkg/provider/stt"
)

const (
	defaultModel    = "whisper-large-v3"
	defaultLanguage = "ar"
)

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI audio API.
type Provider struct {
	client      oai.Client
	model       string
	language    string
	temperature float64
}

type config struct {
	baseURL     string
	model       string
	language    string
	temperature float64
	timeout     time.Duration
	maxRetries  int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model. Default: whisper-large-v3.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the default ISO-639-1 language. Default: "ar".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTemperature sets the sampling temperature. Default: 0 (deterministic).
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the SDK retries failed requests.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs a transcription Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	cfg := &config{
		model:      defaultModel,
		language:   defaultLanguage,
		maxRetries: -1,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.model,
		language:    cfg.language,
		temperature: cfg.temperature,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", stt.ErrEmptyAudio
	}

	filename := req.FilenameOrDefault()
	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(req.Audio), filename, contentType(filename)),
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
		Temperature:    oai.Float(p.temperature),
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// audioTypes covers the containers browsers record in. mime's table is
// platform dependent and often lacks them.
var audioTypes = map[string]string{
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
}

// contentType guesses the MIME type from the upload name.
func contentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
