// Package app wires all hifz subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Handler exposes them over HTTP, Reload applies hot config
// changes and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithCorpus, WithLLM,
// etc.). When an option is not provided, New creates real implementations
// from the config and the provider registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/hifz/internal/api"
	"github.com/MrWong99/hifz/internal/coach"
	"github.com/MrWong99/hifz/internal/config"
	"github.com/MrWong99/hifz/internal/feedback"
	"github.com/MrWong99/hifz/internal/generator"
	"github.com/MrWong99/hifz/internal/health"
	"github.com/MrWong99/hifz/internal/match"
	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/passage"
	"github.com/MrWong99/hifz/internal/quiz"
	"github.com/MrWong99/hifz/pkg/provider/llm"
	"github.com/MrWong99/hifz/pkg/provider/stt"
	"github.com/MrWong99/hifz/pkg/provider/tts"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	reg        *config.Registry
	metrics    *observe.Metrics
	metricsSrc prometheus.Gatherer

	corpus passage.Source
	llm    llm.Provider
	stt    stt.Provider
	tts    tts.Provider

	engine *quiz.Engine
	api    *api.Handler
	checks []health.Checker

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCorpus injects a passage source instead of opening the configured one.
func WithCorpus(s passage.Source) Option {
	return func(a *App) { a.corpus = s }
}

// WithLLM injects the language model instead of building the configured chain.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithSTT injects the transcriber instead of building the configured chain.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.stt = p }
}

// WithTTS injects the synthesiser instead of building the configured chain.
func WithTTS(p tts.Provider) Option {
	return func(a *App) { a.tts = p }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the registry served on /metrics. Default: the Prometheus
// default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.metricsSrc = g }
}

// New creates an App by wiring all subsystems together. reg must hold the
// factories for every provider named in cfg that is not injected (see
// [RegisterBuiltins]).
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initCorpus(ctx); err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("app: init corpus: %w", err)
	}
	if err := a.initProviders(); err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	if err := a.initEngine(); err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("app: init engine: %w", err)
	}
	a.initAPI()
	return a, nil
}

func (a *App) initCorpus(ctx context.Context) error {
	if a.corpus == nil {
		switch pc := a.cfg.Passages; {
		case pc.PostgresDSN != "":
			pg, err := passage.Open(ctx, pc.PostgresDSN)
			if err != nil {
				return err
			}
			a.corpus = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			if n, err := pg.Count(ctx); err == nil && n == 0 {
				slog.Warn("postgres corpus is empty, fill it with hifz -import <corpus.json>")
			}
		case pc.File != "":
			mem, err := passage.LoadFile(pc.File)
			if err != nil {
				return err
			}
			a.corpus = mem
			slog.Info("corpus loaded", "file", pc.File, "passages", mem.Len())
		default:
			return errors.New("no passage source configured")
		}
	}
	a.checks = append(a.checks, health.PingChecker("corpus", a.corpus))
	return nil
}

func (a *App) initProviders() error {
	pc := a.cfg.Providers
	fc := fallbackConfig(a.cfg.Resilience, a.metrics)

	if a.llm == nil {
		f, err := buildLLM(a.reg, pc.LLM, fc)
		if err != nil {
			return err
		}
		a.llm = f
	}
	if a.stt == nil && pc.STT.Name != "" {
		f, err := buildSTT(a.reg, pc.STT, fc)
		if err != nil {
			return err
		}
		a.stt = f
	}
	if a.tts == nil && pc.TTS.Name != "" {
		f, err := buildTTS(a.reg, pc.TTS, fc)
		if err != nil {
			return err
		}
		a.tts = f
	}

	for _, p := range []struct {
		name string
		v    any
	}{{"llm", a.llm}, {"stt", a.stt}, {"tts", a.tts}} {
		if pinger, ok := p.v.(health.Pinger); ok {
			a.checks = append(a.checks, health.PingChecker(p.name, pinger))
		}
	}
	return nil
}

func (a *App) initEngine() error {
	qc := a.cfg.Quiz
	llmName := a.cfg.Providers.LLM.DisplayName()

	gen := generator.New(a.llm, a.corpus,
		generator.WithContextChars(qc.ContextChars),
		generator.WithDifficulty(string(qc.Difficulty)),
		generator.WithTemperature(qc.Temperature),
		generator.WithProviderName(llmName),
		generator.WithMetrics(a.metrics),
	)

	opts := []quiz.Option{
		quiz.WithAnalyst(coach.New(a.llm,
			coach.WithProviderName(llmName),
			coach.WithMetrics(a.metrics),
		)),
		quiz.WithVerifier(match.NewVerifier(a.cfg.Match.Policy())),
		quiz.WithBatchConfig(qc.BatchConfig()),
		quiz.WithMaxConcurrentPrefetch(qc.MaxConcurrentPrefetch),
		quiz.WithMetrics(a.metrics),
	}
	if a.tts != nil {
		ttsName := a.cfg.Providers.TTS.DisplayName()
		speakerOpts := []feedback.Option{
			feedback.WithProviderName(ttsName),
			feedback.WithMetrics(a.metrics),
		}
		if ttl := a.cfg.Voice.CacheTTL; ttl != 0 {
			speakerOpts = append(speakerOpts, feedback.WithCacheTTL(ttl))
		}
		voice := tts.VoiceProfile{ID: a.cfg.Voice.VoiceID, Provider: ttsName, Language: a.cfg.Voice.Language}
		opts = append(opts, quiz.WithSpeaker(feedback.NewSpeaker(a.tts, voice, speakerOpts...)))
	}
	if path := a.cfg.Journal.Path; path != "" {
		opts = append(opts, quiz.WithRecorder(feedback.NewJournal(path)))
	}

	eng, err := quiz.New(gen, opts...)
	if err != nil {
		return err
	}
	a.engine = eng
	return nil
}

func (a *App) initAPI() {
	opts := []api.Option{
		api.WithPassages(a.corpus),
		api.WithMetrics(a.metrics),
		api.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...),
	}
	if a.stt != nil {
		opts = append(opts, api.WithSTT(a.stt, a.cfg.Providers.STT.DisplayName()))
	}
	a.api = api.New(a.engine, opts...)
}

// Engine returns the quiz engine.
func (a *App) Engine() *quiz.Engine { return a.engine }

// Handler returns the complete HTTP surface: the quiz API under /api/, the
// health probes and the Prometheus scrape endpoint.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", a.api.Routes())
	health.New(a.checks...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(a.metricsSrc))
	return mux
}

// Reload applies the parts of next that can change at runtime and returns
// the full diff against the running config. The log level is left to the
// caller, which owns the logger.
func (a *App) Reload(next *config.Config) config.ConfigDiff {
	d := config.Diff(a.cfg, next)
	if d.MatchChanged {
		a.engine.SetVerifier(match.NewVerifier(next.Match.Policy()))
		a.cfg.Match = next.Match
		slog.Info("match policy reloaded", "policy", next.Match.Policy())
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
	a.cfg.Server.LogLevel = next.Server.LogLevel
	return d
}

// Shutdown waits for background prefetches and then runs the closers in
// reverse order of creation. If ctx expires first the remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		done := make(chan struct{})
		go func() {
			a.engine.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded while waiting for prefetches")
			err = ctx.Err()
			return
		}
		err = a.closeAll()
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
