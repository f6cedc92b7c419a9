// feedd runs the table feed daemon: it holds the websocket connection to
// the assist backend, buffers and routes messages, and serves status,
// metrics, export, and command endpoints for local consumers.
package main

import (
	"context"
	"encoding/json"
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

	"github.com/dmaslov/tablefeed/internal/config"
	"github.com/dmaslov/tablefeed/internal/endpoint"
	"github.com/dmaslov/tablefeed/internal/export"
	"github.com/dmaslov/tablefeed/internal/feed"
	"github.com/dmaslov/tablefeed/internal/health"
	"github.com/dmaslov/tablefeed/internal/router"
	"github.com/dmaslov/tablefeed/internal/status"
	"github.com/dmaslov/tablefeed/internal/transport"
	"github.com/dmaslov/tablefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedd.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ep, err := endpoint.New(cfg.Endpoints.Primary, cfg.Endpoints.Fallback)
	if err != nil {
		logger.Error("invalid endpoint config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"primary", ep.Primary.String(),
		"has_fallback", ep.HasFallback(),
		"buffer_capacity", cfg.Buffer.Capacity,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	log := feed.NewLog(cfg.Buffer.Capacity)

	mgrCfg := transport.ManagerConfig{
		Endpoint:         ep,
		AuthToken:        cfg.Endpoints.Token,
		RetryInterval:    cfg.Transport.RetryInterval,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		PingTimeout:      cfg.Transport.PingTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		FrameBuffer:      cfg.Transport.FrameBuffer,
	}
	mgr := transport.NewManager(mgrCfg, logger)

	rt := router.New(router.DefaultConfig(), mgr.Frames(), log, logger)

	obs := status.New(status.Config{}, log, logger)
	cancelStatus := mgr.OnStateChange(obs.SetConnection)
	defer cancelStatus()

	metrics := status.NewMetrics(obs, rt.Stats)

	var poller *health.Poller
	if cfg.Endpoints.Health != "" {
		hcfg := health.Config{
			URL:              cfg.Endpoints.Health,
			Interval:         cfg.Health.Interval,
			Timeout:          cfg.Health.Timeout,
			FailureThreshold: uint32(cfg.Health.FailureThresh),
			BreakerCooldown:  cfg.Health.BreakerCooldown,
		}
		poller = health.New(hcfg, obs.SetBackendHealth, logger)
	} else {
		// No health endpoint configured: assume the backend is fine and
		// let the socket state drive degradation alone.
		obs.SetBackendHealth(true, time.Now())
	}

	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}
	if poller != nil {
		if err := poller.Start(ctx); err != nil {
			logger.Error("failed to start health poller", "error", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/status", obs.Handler())
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/export", export.Handler(log))
	mux.Handle("/command", commandHandler(mgr, logger))
	mux.Handle("/buffer/clear", clearHandler(log, logger))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting status server", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("feedd running",
		"status_url", fmt.Sprintf("http://localhost:%d/status", cfg.HTTP.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if poller != nil {
		poller.Stop(shutdownCtx)
	}
	mgr.Stop(shutdownCtx)
	rt.Stop(shutdownCtx)

	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("feedd stopped")
}

// commandHandler accepts POSTed commands and forwards them over the
// socket. Commands are fire-and-forget: a disconnected socket still
// answers 202, matching the send semantics.
func commandHandler(mgr transport.Manager, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}

		var cmd struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil || cmd.Type == "" {
			http.Error(w, "body must be {\"type\": ..., \"data\": ...}", http.StatusBadRequest)
			return
		}

		if err := mgr.Send(cmd.Type, cmd.Data); err != nil {
			logger.Warn("command rejected", "type", cmd.Type, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	})
}

// clearHandler empties the message log, leaving a system marker so the
// stream records that history was discarded.
func clearHandler(log *feed.Log, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		log.Clear(true)
		logger.Info("message log cleared")
		w.WriteHeader(http.StatusNoContent)
	})
}
