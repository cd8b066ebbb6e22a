package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	twhttp "github.com/Strob0t/taskwatch/internal/adapter/http"
	twnats "github.com/Strob0t/taskwatch/internal/adapter/nats"
	"github.com/Strob0t/taskwatch/internal/adapter/otel"
	"github.com/Strob0t/taskwatch/internal/adapter/ristretto"
	"github.com/Strob0t/taskwatch/internal/adapter/sse"
	"github.com/Strob0t/taskwatch/internal/adapter/tasksapi"
	"github.com/Strob0t/taskwatch/internal/adapter/terminal"
	"github.com/Strob0t/taskwatch/internal/adapter/ws"
	"github.com/Strob0t/taskwatch/internal/config"
	"github.com/Strob0t/taskwatch/internal/logger"
	"github.com/Strob0t/taskwatch/internal/resilience"
	"github.com/Strob0t/taskwatch/internal/service"
)

const shutdownTimeout = 10 * time.Second

type watchFlags struct {
	port     string
	noServer bool
	noRender bool
	maxSteps int
}

func watchCmd(configPath *string) *cobra.Command {
	var f watchFlags
	cmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Stream a task's progress until it completes or fails",
		Long: `Loads the task snapshot, follows its event stream and keeps a reconciled
view of it. Without the local server the command exits when the stream ends;
with it, the view stays available until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(*configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			f.apply(cmd, cfg)
			return runWatch(cmd.Context(), cfg, args[0])
		},
	}
	cmd.Flags().StringVar(&f.port, "port", "", "Serve the local API and WebSocket on this port")
	cmd.Flags().BoolVar(&f.noServer, "no-server", false, "Do not start the local API")
	cmd.Flags().BoolVar(&f.noRender, "no-render", false, "Do not print progress to the terminal")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "Only print the last N steps (0 = all)")
	return cmd
}

// apply overlays explicitly set flags on top of the loaded config.
func (f watchFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	if f.noServer {
		cfg.Server.Port = ""
	}
	if f.noRender {
		cfg.Render.Enabled = false
	}
	if cmd.Flags().Changed("max-steps") {
		cfg.Render.MaxSteps = f.maxSteps
	}
}

func runWatch(parent context.Context, cfg *config.Config, taskID string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Keep stdout for the progress log when it is enabled.
	var logOut io.Writer = os.Stdout
	if cfg.Render.Enabled {
		logOut = os.Stderr
	}
	log, closeLog := logger.NewWithWriter(logOut, cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"api", cfg.API.BaseURL,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"otlp", cfg.Telemetry.OTLPEndpoint != "",
	)

	// --- Telemetry ---

	shutdownOtel, err := otel.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Remote ---

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithIgnore(tasksapi.IsNotFound))
	client := tasksapi.NewClient(cfg.API.BaseURL, cfg.API.SnapshotPath, cfg.API.FetchTimeout)
	client.SetBreaker(breaker)
	source := sse.NewSource(cfg.API.BaseURL, cfg.API.EventsPath,
		sse.WithMaxFrameBytes(cfg.API.MaxFrameMB<<20))

	// --- Sinks ---

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB<<20, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	hub := ws.NewHub(cache.Latest)
	defer hub.Close()

	sinks := service.Fanout{cache, hub}

	if cfg.NATS.URL != "" {
		mirror, err := twnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			fctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := mirror.Flush(fctx); err != nil {
				slog.Warn("nats flush failed", "error", err)
			}
			if err := mirror.Close(); err != nil {
				slog.Warn("nats close failed", "error", err)
			}
		}()
		sinks = append(sinks, mirror)
		slog.Info("nats mirror connected", "prefix", cfg.NATS.SubjectPrefix)
	}

	if cfg.Render.Enabled {
		sinks = append(sinks, terminal.New(os.Stdout, terminal.Options{
			MaxSteps: cfg.Render.MaxSteps,
			Color:    cfg.Render.Color,
		}))
	}

	// --- Viewer ---

	viewer := service.NewViewer(
		otel.TracedSource{Next: source},
		otel.TracedLoader{Next: client},
		sinks,
		metrics,
	)
	if err := viewer.Open(ctx, taskID); err != nil {
		return err
	}
	defer viewer.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Port == "" {
		done := viewer.Done()
		g.Go(func() error {
			select {
			case <-done:
				if err := viewer.State().StreamErr; err != nil {
					return fmt.Errorf("watch %s: %w", taskID, err)
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		})
		return g.Wait()
	}

	handlers := &twhttp.Handlers{
		Viewer:  viewer,
		Cache:   cache,
		Breaker: breaker,
		WS:      hub.HandleWS,
		Version: version,
	}
	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           twhttp.NewRouter(handlers, cfg.Server.CORSOrigin, otel.HTTPMiddleware(cfg.Telemetry.ServiceName)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
