// feedtap connects to the assist backend and streams decoded messages to
// the console, paced the way a dashboard view would render them.
// Usage: go run ./cmd/feedtap --config configs/feedd.yaml --types advice,table_update
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dmaslov/tablefeed/internal/config"
	"github.com/dmaslov/tablefeed/internal/endpoint"
	"github.com/dmaslov/tablefeed/internal/feed"
	"github.com/dmaslov/tablefeed/internal/router"
	"github.com/dmaslov/tablefeed/internal/throttle"
	"github.com/dmaslov/tablefeed/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/feedd.yaml", "path to config file")
	types := flag.String("types", "advice,table_update,system", "comma-separated message types to tap")
	raw := flag.Bool("raw", false, "print every message unthrottled")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ep, err := endpoint.New(cfg.Endpoints.Primary, cfg.Endpoints.Fallback)
	if err != nil {
		logger.Error("invalid endpoint config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
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

	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	for _, typ := range strings.Split(*types, ",") {
		typ = strings.TrimSpace(typ)
		if typ == "" {
			continue
		}
		go tap(ctx, rt, typ, cfg.Throttle, *raw)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := rt.Stats()
				st := mgr.Status()
				logger.Info("stream stats",
					"state", st.State,
					"attempts", st.Attempts,
					"received", stats.FramesReceived,
					"routed", stats.Routed,
					"decode_errors", stats.DecodeErrors,
					"buffered", log.Len(),
				)
			}
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	mgr.Stop(shutdownCtx)
	rt.Stop(shutdownCtx)
}

// tap subscribes to one message type and prints updates. Without --raw,
// updates are coalesced to one line per throttle window, last-write-wins,
// like a dashboard panel.
func tap(ctx context.Context, rt router.Router, msgType string, tcfg config.ThrottleConfig, raw bool) {
	sub := rt.Subscribe(msgType)
	defer sub.Cancel()

	emit := func(m feed.Message) {
		fmt.Printf("%s  %-24s %s\n",
			m.ReceivedAt.Format("15:04:05.000"),
			m.Type,
			string(m.Data),
		)
	}

	if raw {
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-sub.Updates():
				if !ok {
					return
				}
				emit(m)
			}
		}
	}

	th := throttle.New(throttle.Config{Window: tcfg.Window, Pulse: tcfg.Pulse}, emit)
	defer th.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Updates():
			if !ok {
				return
			}
			th.Accept(m)
		}
	}
}
