package app

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/hifz/internal/config"
	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/resilience"
	"github.com/MrWong99/hifz/pkg/provider/llm"
	"github.com/MrWong99/hifz/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/hifz/pkg/provider/llm/openai"
	"github.com/MrWong99/hifz/pkg/provider/stt"
	"github.com/MrWong99/hifz/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/hifz/pkg/provider/stt/openai"
	"github.com/MrWong99/hifz/pkg/provider/stt/whisper"
	"github.com/MrWong99/hifz/pkg/provider/tts"
	"github.com/MrWong99/hifz/pkg/provider/tts/elevenlabs"
)

const defaultOpenAIModel = "gpt-4o-mini"

// RegisterBuiltins wires every provider implementation that ships with hifz
// into reg.
func RegisterBuiltins(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai goes through the official SDK so base_url can point at any
	// OpenAI-compatible gateway (OpenRouter, Groq, a local llama.cpp server).
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, oaillm.WithMaxRetries(n))
		}
		if ref, title := optString(entry.Options, "referer"), optString(entry.Options, "app_title"); ref != "" || title != "" {
			opts = append(opts, oaillm.WithAppInfo(ref, title))
		}
		return oaillm.New(entry.APIKey, model, opts...)
	})

	// Every other any-llm backend takes an optional APIKey and BaseURL.
	// Local backends only need the address.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && !anyllm.Local(providerName) {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if t, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, oaistt.WithTemperature(t))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaistt.WithTimeout(d))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, oaistt.WithMaxRetries(n))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if t, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, whisper.WithTemperature(t))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		stability, okS := optFloat(entry.Options, "stability")
		boost, okB := optFloat(entry.Options, "similarity_boost")
		if okS || okB {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, boost))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// backend is one constructed member of a provider chain.
type backend[P any] struct {
	name string
	p    P
}

// createChain constructs entry and each of its fallbacks, in order.
func createChain[P any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (P, error)) ([]backend[P], error) {
	entries := append([]config.ProviderEntry{entry}, entry.Fallbacks...)
	chain := make([]backend[P], 0, len(entries))
	for _, e := range entries {
		p, err := create(e)
		if err != nil {
			return nil, fmt.Errorf("create %s provider %q: %w", kind, e.DisplayName(), err)
		}
		slog.Info("provider created", "kind", kind, "name", e.Name, "label", e.DisplayName(), "model", e.Model)
		chain = append(chain, backend[P]{name: e.DisplayName(), p: p})
	}
	return chain, nil
}

// fallbackConfig turns the resilience section into breaker settings that
// report transitions to m.
func fallbackConfig(rc config.ResilienceConfig, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:   rc.MaxFailures,
		ResetTimeout:  rc.ResetTimeout,
		HalfOpenMax:   rc.HalfOpenMax,
		OnStateChange: resilience.ObserveTransitions(m),
	}}
}

func buildLLM(reg *config.Registry, entry config.ProviderEntry, fc resilience.FallbackConfig) (*resilience.LLMFallback, error) {
	chain, err := createChain("llm", entry, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	f := resilience.NewLLMFallback(chain[0].p, chain[0].name, fc)
	for _, b := range chain[1:] {
		f.AddFallback(b.name, b.p)
	}
	return f, nil
}

func buildSTT(reg *config.Registry, entry config.ProviderEntry, fc resilience.FallbackConfig) (*resilience.STTFallback, error) {
	chain, err := createChain("stt", entry, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	f := resilience.NewSTTFallback(chain[0].p, chain[0].name, fc)
	for _, b := range chain[1:] {
		f.AddFallback(b.name, b.p)
	}
	return f, nil
}

func buildTTS(reg *config.Registry, entry config.ProviderEntry, fc resilience.FallbackConfig) (*resilience.TTSFallback, error) {
	chain, err := createChain("tts", entry, reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	f := resilience.NewTTSFallback(chain[0].p, chain[0].name, fc)
	for _, b := range chain[1:] {
		f.AddFallback(b.name, b.p)
	}
	return f, nil
}

// ── Option helpers ──────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat accepts YAML integers as well as floats.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func optInt(opts map[string]any, key string) (int, bool) {
	v, ok := opts[key].(int)
	return v, ok
}

// optDuration parses values such as "30s". Invalid strings are logged and
// ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
