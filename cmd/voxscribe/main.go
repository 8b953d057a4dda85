// Command voxscribe is the main entry point for the voxscribe streaming
// transcription server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxscribe/voxscribe/internal/config"
	"github.com/voxscribe/voxscribe/internal/health"
	"github.com/voxscribe/voxscribe/internal/observe"
	"github.com/voxscribe/voxscribe/internal/server"
	"github.com/voxscribe/voxscribe/pkg/asr"
	"github.com/voxscribe/voxscribe/pkg/asr/whispercpp"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	def := config.Default()

	configPath := flag.String("config", "", "path to an optional YAML configuration file")

	host := flag.String("host", def.Server.Host, "interface the transcription listener binds to")
	port := flag.Int("port", def.Server.Port, "TCP port of the transcription listener")
	metricsAddr := flag.String("metrics-addr", def.Server.MetricsAddr, "listen address for /metrics and health probes (empty disables)")
	logLevel := flag.String("log-level", string(def.Server.LogLevel), "log verbosity: debug, info, warn or error")

	model := flag.String("model", def.Model.Name, "whisper model size or path to a ggml weights file")
	modelDir := flag.String("model-dir", def.Model.Dir, "directory holding the weights file (overrides the cache)")
	modelCacheDir := flag.String("model-cache-dir", def.Model.CacheDir, "directory where fetched weights are looked up")
	language := flag.String("language", def.Model.Language, "ISO language code to bias transcription, or \"auto\"")
	threads := flag.Int("threads", def.Model.Threads, "CPU threads per inference pass (0 uses the whisper.cpp default)")

	minChunk := flag.Float64("min-chunk", def.Session.MinChunkSec, "minimum audio seconds accumulated before each recognition pass")
	bufferTrim := flag.Float64("buffer-trim", def.Session.BufferTrimSec, "audio window seconds above which the recognition buffer is trimmed")
	flushOnClose := flag.Bool("flush-on-close", def.Session.FlushOnClose, "emit the uncommitted tail hypothesis when a client disconnects")

	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath, def)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "voxscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "voxscribe: %v\n", err)
			}
			return 1
		}
		cfg = loaded
	}

	// applyFlags overlays every flag set on the command line, so flags win
	// over file values. Reused on every config reload for the same reason.
	applyFlags := func(c *config.Config) {
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "host":
				c.Server.Host = *host
			case "port":
				c.Server.Port = *port
			case "metrics-addr":
				c.Server.MetricsAddr = *metricsAddr
			case "log-level":
				c.Server.LogLevel = config.LogLevel(*logLevel)
			case "model":
				c.Model.Name = *model
			case "model-dir":
				c.Model.Dir = *modelDir
			case "model-cache-dir":
				c.Model.CacheDir = *modelCacheDir
			case "language":
				c.Model.Language = *language
			case "threads":
				c.Model.Threads = *threads
			case "min-chunk":
				c.Session.MinChunkSec = *minChunk
			case "buffer-trim":
				c.Session.BufferTrimSec = *bufferTrim
			case "flush-on-close":
				c.Session.FlushOnClose = *flushOnClose
			}
		})
	}
	applyFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxscribe: invalid configuration: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voxscribe starting",
		"version", version,
		"listen_addr", cfg.Server.Addr(),
		"model", cfg.Model.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxscribe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// Readiness flags flip as startup progresses, so /readyz reports "model
	// not ready" while the weights are still loading.
	modelReady := health.NewFlag("model")
	listenerReady := health.NewFlag("listener")

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	eg, egCtx := errgroup.WithContext(ctx)

	// The metrics endpoint starts before the model load on purpose: loading
	// large weights takes tens of seconds and the probes must answer during it.
	if cfg.Server.MetricsAddr != "" {
		eg.Go(func() error {
			return serveMetrics(egCtx, cfg.Server.MetricsAddr, metrics, modelReady.Checker(), listenerReady.Checker())
		})
		slog.Info("metrics endpoint enabled", "addr", cfg.Server.MetricsAddr)
	}

	// trimWindow feeds each new session's engine; the config watcher may
	// replace it while the server runs.
	var trimWindow atomic.Int64
	trimWindow.Store(int64(cfg.Session.BufferTrim()))

	eg.Go(func() error {
		modelPath, err := whispercpp.ResolveModel(cfg.Model.Name, cfg.Model.Dir, cfg.Model.CacheDir)
		if err != nil {
			if slices.Contains(config.ValidModelNames, cfg.Model.Name) {
				fmt.Fprintf(os.Stderr, "voxscribe: fetch the weights with:\n  curl -L --create-dirs -o models/ggml-%[1]s.bin https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-%[1]s.bin\n", cfg.Model.Name)
			}
			return err
		}

		loadStart := time.Now()
		recOpts := []whispercpp.Option{whispercpp.WithLanguage(cfg.Model.Language)}
		if cfg.Model.Threads > 0 {
			recOpts = append(recOpts, whispercpp.WithThreads(uint(cfg.Model.Threads)))
		}
		rec, err := whispercpp.New(modelPath, recOpts...)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Warn("model close error", "err", err)
			}
		}()
		slog.Info("model loaded",
			"path", modelPath,
			"language", cfg.Model.Language,
			"took", time.Since(loadStart).Round(time.Millisecond),
		)
		modelReady.Set()

		srv, err := server.New(server.Config{
			Addr: cfg.Server.Addr(),
			NewEngine: func() asr.Engine {
				return asr.NewOnlineProcessor(rec, asr.WithTrimWindow(time.Duration(trimWindow.Load())))
			},
			Settings: server.SessionSettings{
				MinChunk:     cfg.Session.MinChunk(),
				FlushOnClose: cfg.Session.FlushOnClose,
			},
			Metrics: metrics,
		})
		if err != nil {
			return err
		}

		go func() {
			select {
			case <-srv.Ready():
				listenerReady.Set()
				slog.Info("server ready — press Ctrl+C to shut down")
			case <-egCtx.Done():
			}
		}()

		// Hot reload: log level and session tuning apply without a restart.
		if *configPath != "" {
			w, err := startWatcher(*configPath, cfg, applyFlags, level, srv, &trimWindow)
			if err != nil {
				slog.Warn("config watcher disabled", "path", *configPath, "err", err)
			} else {
				defer w.Stop()
			}
		}

		return srv.Serve(egCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Metrics endpoint ──────────────────────────────────────────────────────────

// serveMetrics exposes the Prometheus /metrics endpoint and the health probes
// over HTTP until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, m *observe.Metrics, checkers ...health.Checker) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	hs := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		<-errc
		return nil
	case err := <-errc:
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
}

// ── Config hot reload ─────────────────────────────────────────────────────────

// startWatcher polls the config file and hot-applies what can change at
// runtime. Command-line flags keep precedence over file values across
// reloads, and changes to the session tuning reach connections accepted
// after the reload.
func startWatcher(path string, startCfg *config.Config, applyFlags func(*config.Config), level *slog.LevelVar, srv *server.Server, trimWindow *atomic.Int64) (*config.Watcher, error) {
	current := startCfg
	onChange := func(_, loaded *config.Config) {
		eff := *loaded
		applyFlags(&eff)

		d := config.Diff(current, &eff)
		if d.Empty() {
			return
		}
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionChanged {
			srv.UpdateSettings(server.SessionSettings{
				MinChunk:     d.NewSession.MinChunk(),
				FlushOnClose: d.NewSession.FlushOnClose,
			})
			trimWindow.Store(int64(d.NewSession.BufferTrim()))
			slog.Info("session tuning changed, applies to the next connection",
				"min_chunk_sec", d.NewSession.MinChunkSec,
				"buffer_trim_sec", d.NewSession.BufferTrimSec,
				"flush_on_close", d.NewSession.FlushOnClose,
			)
		}
		if d.RestartRequired {
			slog.Warn("config change affects the listener or model and needs a restart to apply")
		}
		current = &eff
	}
	return config.NewWatcher(path, onChange, config.WithBase(config.Default()))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║       voxscribe — startup summary      ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printRow("Model", cfg.Model.Name)
	printRow("Language", cfg.Model.Language)
	printRow("Listen addr", cfg.Server.Addr())
	if cfg.Server.MetricsAddr != "" {
		printRow("Metrics addr", cfg.Server.MetricsAddr)
	} else {
		printRow("Metrics addr", "(disabled)")
	}
	printRow("Min chunk", fmt.Sprintf("%.2fs", cfg.Session.MinChunkSec))
	printRow("Buffer trim", fmt.Sprintf("%.0fs", cfg.Session.BufferTrimSec))
	printRow("Flush on close", fmt.Sprintf("%t", cfg.Session.FlushOnClose))
	fmt.Println("╚════════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

// slogLevel maps the config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
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
