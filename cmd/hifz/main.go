// Command hifz serves the spoken-recall Quran quiz.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/hifz/internal/app"
	"github.com/MrWong99/hifz/internal/config"
	"github.com/MrWong99/hifz/internal/observe"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file with provider secrets; missing files are ignored")
	watch := flag.Bool("watch", true, "reload the config file when it changes")
	sampleRatio := flag.Float64("trace-sample", 1, "fraction of traces to sample")
	importPath := flag.String("import", "", "load this JSON corpus into the empty postgres passages table and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "hifz: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hifz: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hifz: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logOut, closeLog := logWriter(cfg.Server.LogFile)
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &level})))

	slog.Info("hifz starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *importPath != "" {
		if err := importCorpus(ctx, cfg, *importPath); err != nil {
			slog.Error("corpus import failed", "err", err)
			return 1
		}
		return 0
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		SampleRatio:    *sampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)

	application, err := app.New(ctx, cfg, reg,
		app.WithMetrics(tel.Metrics),
		app.WithGatherer(tel.Registry),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	printStartupSummary(cfg)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if *watch {
		watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
			d := application.Reload(next)
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(sctx), application.Shutdown(sctx))
	})

	slog.Info("server ready, press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           hifz, startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM)
	printProvider("STT", cfg.Providers.STT)
	printProvider("TTS", cfg.Providers.TTS)
	corpus := cfg.Passages.File
	if cfg.Passages.PostgresDSN != "" {
		corpus = "postgres"
	}
	fmt.Printf("║  Corpus          : %-19s ║\n", clip(corpus))
	fmt.Printf("║  Batch size      : %-19d ║\n", cfg.Quiz.BatchSize)
	fmt.Printf("║  Difficulty      : %-19s ║\n", cfg.Quiz.Difficulty)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, e config.ProviderEntry) {
	value := e.DisplayName()
	switch {
	case value == "":
		value = "(not configured)"
	case e.Model != "":
		value += " / " + e.Model
	}
	if n := len(e.Fallbacks); n > 0 && e.Name != "" {
		value = fmt.Sprintf("%s +%d", value, n)
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, clip(value))
}

func clip(s string) string {
	if r := []rune(s); len(r) > 19 {
		return string(r[:18]) + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logWriter returns stderr, teed into a rotated file when lc.Path is set.
func logWriter(lc config.LogFileConfig) (io.Writer, func()) {
	if lc.Path == "" {
		return os.Stderr, func() {}
	}
	rotated := &lumberjack.Logger{
		Filename:   lc.Path,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
	return io.MultiWriter(os.Stderr, rotated), func() { _ = rotated.Close() }
}
