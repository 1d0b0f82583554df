package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper"},
	"tts": {"elevenlabs"},
}

// LoadEnv reads KEY=VALUE pairs from the given dotenv files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments, ".env" is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. ${VAR} references are expanded from the environment, so secrets
// can live in .env (see [LoadEnv]).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; questions cannot be generated without it"))
	}
	validateChain("llm", "providers.llm", cfg.Providers.LLM, &errs)
	validateChain("stt", "providers.stt", cfg.Providers.STT, &errs)
	validateChain("tts", "providers.tts", cfg.Providers.TTS, &errs)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; only text answers will be accepted")
	}
	if cfg.Providers.TTS.Name != "" && cfg.Voice.VoiceID == "" {
		errs = append(errs, errors.New("voice.voice_id is required when providers.tts is configured"))
	}

	rc := cfg.Resilience
	if rc.MaxFailures < 0 || rc.HalfOpenMax < 0 || rc.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	q := cfg.Quiz
	if err := q.BatchConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if q.MaxConcurrentPrefetch < 1 {
		errs = append(errs, fmt.Errorf("quiz.max_concurrent_prefetch %d must be at least 1", q.MaxConcurrentPrefetch))
	}
	if q.Difficulty != "" && !q.Difficulty.IsValid() {
		errs = append(errs, fmt.Errorf("quiz.difficulty %q is invalid; valid values: easy, medium, hard", q.Difficulty))
	}
	if q.ContextChars < 0 {
		errs = append(errs, fmt.Errorf("quiz.context_chars %d must not be negative", q.ContextChars))
	}
	if q.Temperature < 0 || q.Temperature > 2 {
		errs = append(errs, fmt.Errorf("quiz.temperature %.2f is out of range [0, 2]", q.Temperature))
	}

	m := cfg.Match
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"short_threshold", m.ShortThreshold},
		{"long_threshold", m.LongThreshold},
		{"partial_min_ratio", m.PartialMinRatio},
	} {
		if th.v < 0 || th.v > 1 {
			errs = append(errs, fmt.Errorf("match.%s %.2f is out of range [0, 1]", th.name, th.v))
		}
	}
	if m.ShortWordMaxLen < 0 || m.PartialMinLen < 0 || m.FuzzyMinLen < 0 {
		errs = append(errs, errors.New("match lengths must not be negative"))
	}

	switch p := cfg.Passages; {
	case p.File == "" && p.PostgresDSN == "":
		errs = append(errs, errors.New("passages: one of file or postgres_dsn is required"))
	case p.File != "" && p.PostgresDSN != "":
		errs = append(errs, errors.New("passages: file and postgres_dsn are mutually exclusive"))
	}

	return errors.Join(errs...)
}

// validateChain checks a provider entry and its fallbacks.
func validateChain(kind, prefix string, e ProviderEntry, errs *[]error) {
	if e.Name == "" {
		if len(e.Fallbacks) > 0 {
			*errs = append(*errs, fmt.Errorf("%s.fallbacks set without a primary name", prefix))
		}
		return
	}
	validateProviderName(kind, e.Name)
	seen := map[string]bool{e.DisplayName(): true}
	for i, fb := range e.Fallbacks {
		p := fmt.Sprintf("%s.fallbacks[%d]", prefix, i)
		if fb.Name == "" {
			*errs = append(*errs, fmt.Errorf("%s.name is required", p))
			continue
		}
		if len(fb.Fallbacks) > 0 {
			*errs = append(*errs, fmt.Errorf("%s: fallbacks cannot be nested", p))
		}
		if seen[fb.DisplayName()] {
			*errs = append(*errs, fmt.Errorf("%s: label %q is a duplicate; set label to tell backends apart", p, fb.DisplayName()))
		}
		seen[fb.DisplayName()] = true
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is not found in the
// [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
