// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. It implements the tts.Provider
// interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/hifz/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultRESTBase  = "https://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	// DefaultVoiceID is the stock "Adam" voice, which handles Arabic well
	// with the multilingual model.
	DefaultVoiceID = "pNInz6obpgDQGcFmaJgB"

	defaultStability       = 0.75
	defaultSimilarityBoost = 0.85
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoiceSettings overrides stability and similarity boost.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarityBoost}
	}
}

// WithBaseURLs points the provider at different WebSocket and REST hosts.
// Used by tests.
func WithBaseURLs(wsBase, restBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.restBase = strings.TrimRight(restBase, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	settings     voiceSettings
	wsBase       string
	restBase     string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		settings:     voiceSettings{Stability: defaultStability, SimilarityBoost: defaultSimilarityBoost},
		wsBase:       defaultWSBase,
		restBase:     defaultRESTBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio in the requested format
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// SynthesizeStream opens a WebSocket to ElevenLabs, pipes text fragments from
// the text channel, and returns a channel emitting audio chunks. An empty
// voice.ID selects [DefaultVoiceID].
//
// The returned audio channel is closed when ElevenLabs reports the final
// chunk, the connection drops, or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		voice.ID = DefaultVoiceID
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// The opening message authenticates and configures the stream. ElevenLabs
	// requires a non-empty first text value.
	boi, _ := buildWSMessage(" ", &p.settings, p.apiKey)
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	audioCh := make(chan []byte, 64)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var resp audioResponse
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}
				if resp.Audio != "" {
					chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
					if err == nil {
						select {
						case audioCh <- chunk:
						case <-ctx.Done():
							return
						}
					}
				}
				if resp.IsFinal {
					return
				}
			}
		}()

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					// Text channel closed: an empty text flushes the stream.
					flush, _ := buildWSMessage("", nil, "")
					_ = conn.Write(ctx, websocket.MessageText, flush)
					select {
					case <-readDone:
					case <-ctx.Done():
					}
					return
				}
				if strings.TrimSpace(fragment) == "" {
					continue
				}
				// ElevenLabs buffers until it sees trailing whitespace.
				msg, _ := buildWSMessage(fragment+" ", nil, "")
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					return
				}
			case <-readDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.restBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toProfiles(vr.Voices), nil
}

// ---- helpers ----

// buildWSMessage constructs the JSON text payload for a single fragment.
func buildWSMessage(text string, vs *voiceSettings, apiKey string) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs, XiAPIKey: apiKey})
}

// streamURL builds the stream-input URL. language_code is only sent when the
// voice names a language; models without language enforcement reject it.
func (p *Provider) streamURL(voice tts.VoiceProfile) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	if voice.Language != "" {
		q.Set("language_code", voice.Language)
	}
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.wsBase, url.PathEscape(voice.ID), q.Encode())
}

// parseVoicesResponse parses a raw /v1/voices body into voice profiles.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return toProfiles(vr.Voices), nil
}

func toProfiles(voices []elevenLabsVoice) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}
