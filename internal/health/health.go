// Package health polls the REST backend's health endpoint.
//
// The websocket feed and the REST API can fail independently; the poller
// gives the status observable a second signal so the dashboard can tell
// "socket down" from "whole backend down". A circuit breaker stops
// hammering a dead backend and re-probes after a cooldown.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Defaults for the poll loop.
const (
	DefaultInterval         = 30 * time.Second
	DefaultTimeout          = 5 * time.Second
	DefaultFailureThreshold = 3
	DefaultBreakerCooldown  = 60 * time.Second
)

// ErrUnhealthy is returned when the backend answers with a non-2xx status.
var ErrUnhealthy = errors.New("backend health check failed")

// Config holds poller configuration.
type Config struct {
	// URL is the health endpoint, e.g. http://127.0.0.1:8080/health.
	URL string

	// Interval between polls.
	Interval time.Duration

	// Timeout per request.
	Timeout time.Duration

	// FailureThreshold is how many consecutive failures open the breaker.
	FailureThreshold uint32

	// BreakerCooldown is how long the breaker stays open before a probe.
	BreakerCooldown time.Duration
}

// DefaultConfig returns sensible defaults for the given endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		Interval:         DefaultInterval,
		Timeout:          DefaultTimeout,
		FailureThreshold: DefaultFailureThreshold,
		BreakerCooldown:  DefaultBreakerCooldown,
	}
}

// ReportFunc receives each poll verdict.
type ReportFunc func(ok bool, at time.Time)

// Poller periodically checks backend health and reports the result.
type Poller struct {
	cfg    Config
	client *http.Client
	report ReportFunc
	logger *slog.Logger
	cb     *gobreaker.CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller. report must be non-nil.
func New(cfg Config, report ReportFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}

	settings := gobreaker.Settings{
		Name:    "backend-health",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("health breaker state change",
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Poller{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		report: report,
		logger: logger,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

// Start begins the poll loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("health poller started",
		"url", p.cfg.URL,
		"interval", p.cfg.Interval,
	)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("health poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll runs one check through the breaker. An open breaker counts as a
// failed check without touching the network.
func (p *Poller) poll() {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.check()
	})

	ok := err == nil
	if !ok && !errors.Is(err, gobreaker.ErrOpenState) {
		p.logger.Debug("health check failed", "error", err)
	}
	p.report(ok, time.Now())
}

func (p *Poller) check() error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}
