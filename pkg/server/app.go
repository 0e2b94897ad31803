package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PairPulse/internal/broadcast"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/usecase"
	"PairPulse/pkg/config"
	xhttp "PairPulse/pkg/http"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/queue"
)

// limiterIdle is how long an untouched rate limit bucket is kept.
const limiterIdle = 10 * time.Minute

// Components are the long-running parts the App starts and stops.
type Components struct {
	Source  usecase.TickSource
	Cycle   *usecase.RecomputeCycle
	Rules   *usecase.AlertRulesUseCase
	Warmer  *usecase.Warmer
	Limiter *ratelimit.Limiter
	Hub     *broadcast.Hub
	HTTP    *xhttp.Server
	// AlertQueue is nil unless webhook delivery is configured.
	AlertQueue *queue.RedisQueue
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, log: l.With("app"), c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done or the
// HTTP listener fails, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if n, err := a.c.Rules.Load(ctx); err != nil {
		return fmt.Errorf("load alert rules: %w", err)
	} else if n > 0 {
		a.log.Info("alert rules loaded", applogger.Int("rules", n))
	}

	// Warm start has to finish before live ticks open bars.
	if a.c.Warmer != nil {
		n, err := a.c.Warmer.Run(ctx)
		if err != nil {
			a.log.Warn("warmup incomplete", applogger.Int("bars", n), applogger.Error(err))
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.c.Source.Start(runCtx); err != nil {
		return fmt.Errorf("start tick source: %w", err)
	}
	a.log.Info("tick source started",
		applogger.String("source", a.cfg.Ingest.Source),
		applogger.Strings("symbols", a.cfg.Symbols),
	)

	if a.c.AlertQueue != nil {
		if err := a.c.AlertQueue.Start(); err != nil {
			_ = a.c.Source.Shutdown(context.Background())
			return fmt.Errorf("start alert queue: %w", err)
		}
	}

	a.c.Cycle.Start(runCtx)

	if err := a.c.HTTP.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		_ = a.shutdown()
		return err
	}

	go a.pruneLimiter(runCtx)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.c.HTTP.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()
	return errors.Join(runErr, a.shutdown())
}

func (a *App) pruneLimiter(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.c.Limiter.Prune(limiterIdle); n > 0 {
				a.log.Debug("rate limit buckets pruned", applogger.Int("buckets", n))
			}
		}
	}
}

// shutdown stops ingestion first so the last cycle sees a settled state,
// then the live sessions and finally the HTTP listener.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.log.Info("shutting down...")

	var errList []error
	if err := a.c.Source.Shutdown(ctx); err != nil {
		a.log.Warn("tick source stop error", applogger.Error(err))
		errList = append(errList, err)
	}
	if err := a.c.Cycle.Stop(ctx); err != nil {
		a.log.Warn("recompute stop error", applogger.Error(err))
		errList = append(errList, err)
	}
	if a.c.AlertQueue != nil {
		if err := a.c.AlertQueue.Stop(ctx); err != nil {
			a.log.Warn("alert queue stop error", applogger.Error(err))
			errList = append(errList, err)
		}
	}
	a.c.Hub.Close()
	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errList = append(errList, err)
	}

	a.log.Info("shutdown complete")
	return errors.Join(errList...)
}
