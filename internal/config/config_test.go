package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/hifz/internal/config"
	"github.com/MrWong99/hifz/internal/match"
	"github.com/MrWong99/hifz/pkg/provider/llm"
	"github.com/MrWong99/hifz/pkg/provider/stt"
	"github.com/MrWong99/hifz/pkg/provider/tts"
)

// minimalYAML is the smallest config that validates.
const minimalYAML = `
providers:
  llm:
    name: openai
passages:
  file: quran_data.json
`

const fullYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  log_file:
    path: /var/log/hifz.log
    max_size_mb: 50
  allowed_origins: ["https://hifz.example"]
providers:
  llm:
    name: openai
    label: openrouter
    api_key: sk-test
    base_url: https://openrouter.ai/api/v1
    model: google/gemini-2.0-flash-001
    fallbacks:
      - name: groq
        model: llama-3.3-70b-versatile
  stt:
    name: openai
    label: groq-whisper
    base_url: https://api.groq.com/openai/v1
    model: whisper-large-v3
    fallbacks:
      - name: deepgram
        model: nova-2
  tts:
    name: elevenlabs
    model: eleven_multilingual_v2
resilience:
  max_failures: 3
  reset_timeout: 45s
quiz:
  batch_size: 12
  prefetch_threshold: 8
  max_concurrent_prefetch: 2
  difficulty: hard
  context_chars: 3000
  temperature: 0.7
match:
  long_threshold: 0.85
passages:
  postgres_dsn: postgres://localhost/hifz
voice:
  voice_id: pNInz6obpgDQGcFmaJgB
  cache_ttl: 30m
journal:
  path: attempts.jsonl
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.LogFile.MaxSizeMB != 50 {
		t.Errorf("log_file = %+v", cfg.Server.LogFile)
	}
	llmCfg := cfg.Providers.LLM
	if llmCfg.DisplayName() != "openrouter" || len(llmCfg.Fallbacks) != 1 || llmCfg.Fallbacks[0].DisplayName() != "groq" {
		t.Errorf("providers.llm = %+v", llmCfg)
	}
	if cfg.Resilience.ResetTimeout != 45*time.Second {
		t.Errorf("reset_timeout = %v", cfg.Resilience.ResetTimeout)
	}
	if bc := cfg.Quiz.BatchConfig(); bc.BatchSize != 12 || bc.PrefetchThreshold != 8 {
		t.Errorf("batch config = %+v", bc)
	}
	if cfg.Quiz.Difficulty != config.DifficultyHard {
		t.Errorf("difficulty = %q", cfg.Quiz.Difficulty)
	}
	if cfg.Voice.CacheTTL != 30*time.Minute {
		t.Errorf("cache_ttl = %v", cfg.Voice.CacheTTL)
	}
	p := cfg.Match.Policy()
	if p.LongThreshold != 0.85 || p.ShortThreshold != match.DefaultPolicy().ShortThreshold {
		t.Errorf("policy = %+v", p)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":3000" || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	q := cfg.Quiz
	if q.BatchSize != 10 || q.PrefetchThreshold != 7 || q.MaxConcurrentPrefetch != 4 ||
		q.Difficulty != config.DifficultyEasy || q.ContextChars != 4000 {
		t.Errorf("quiz defaults = %+v", q)
	}
	if cfg.Match.Policy() != match.DefaultPolicy() {
		t.Errorf("policy = %+v, want defaults", cfg.Match.Policy())
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("HIFZ_TEST_LLM_KEY", "sk-from-env")
	yaml := strings.Replace(minimalYAML, "name: openai", "name: openai\n    api_key: ${HIFZ_TEST_LLM_KEY}", 1)
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q", cfg.Providers.LLM.APIKey)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + "npcs: []\n"))
	if err == nil || !strings.Contains(err.Error(), "npcs") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing llm", "passages:\n  file: x.json\n", "providers.llm is required"},
		{"missing corpus", "providers:\n  llm:\n    name: openai\n", "one of file or postgres_dsn"},
		{"both corpora", minimalYAML + "  postgres_dsn: postgres://x\n", "mutually exclusive"},
		{"bad log level", minimalYAML + "server:\n  log_level: bananas\n", "server.log_level"},
		{"threshold at batch size", minimalYAML + "quiz:\n  batch_size: 5\n  prefetch_threshold: 5\n", "prefetch threshold"},
		{"negative prefetch bound", minimalYAML + "quiz:\n  max_concurrent_prefetch: -1\n", "max_concurrent_prefetch"},
		{"bad difficulty", minimalYAML + "quiz:\n  difficulty: brutal\n", "quiz.difficulty"},
		{"threshold out of range", minimalYAML + "match:\n  short_threshold: 1.5\n", "match.short_threshold"},
		{"tts without voice", "providers:\n  llm:\n    name: openai\n  tts:\n    name: elevenlabs\npassages:\n  file: x.json\n", "voice.voice_id"},
		{"tls half configured", minimalYAML + "server:\n  tls:\n    cert_file: c.pem\n", "server.tls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_FallbackChain(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
    fallbacks:
      - name: openai
      - model: x
passages:
  file: x.json
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"duplicate", "fallbacks[1].name is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %v, want it to mention %q", err, want)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("HIFZ_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HIFZ_TEST_DOTENV", "")
	os.Unsetenv("HIFZ_TEST_DOTENV")

	if err := config.LoadEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("HIFZ_TEST_DOTENV"); got != "from-file" {
		t.Errorf("HIFZ_TEST_DOTENV = %q", got)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "stt", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("no known names for %s", kind)
		}
	}
}

// ── Registry ────────────────────────────────────────────────────────────────

type stubLLM struct{}

func (stubLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}

type stubSTT struct{}

func (stubSTT) Transcribe(context.Context, stt.Request) (string, error) { return "", nil }

type stubTTS struct{}

func (stubTTS) SynthesizeStream(context.Context, <-chan string, tts.VoiceProfile) (<-chan []byte, error) {
	return nil, nil
}
func (stubTTS) ListVoices(context.Context) ([]tts.VoiceProfile, error) { return nil, nil }

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}
	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("llm err = %v", err)
	}
	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("stt err = %v", err)
	}
	if _, err := reg.CreateTTS(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("tts err = %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return stubLLM{}, nil
	})
	reg.RegisterLLM("groq", func(config.ProviderEntry) (llm.Provider, error) { return stubLLM{}, nil })
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Provider, error) { return stubSTT{}, nil })
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return stubTTS{}, nil })

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotEntry.Model != "gpt-4o-mini" {
		t.Errorf("factory entry = %+v", gotEntry)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if got := reg.Names("llm"); !slices.Equal(got, []string{"groq", "openai"}) {
		t.Errorf("Names(llm) = %v", got)
	}
	if got := reg.Names("s2s"); got != nil {
		t.Errorf("Names(s2s) = %v", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want factory error", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("configs/example.yaml does not load: %v", err)
	}
	if cfg.Match.Policy() != match.DefaultPolicy() {
		t.Errorf("example match section = %+v, want the defaults", cfg.Match.Policy())
	}
	if got := len(cfg.Providers.STT.Fallbacks); got != 1 {
		t.Errorf("stt fallbacks = %d, want 1", got)
	}
}
