package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/docforge/internal/api"
	"github.com/vietddude/docforge/internal/core/config"
	"github.com/vietddude/docforge/internal/failure"
	redisclient "github.com/vietddude/docforge/internal/infra/redis"
	"github.com/vietddude/docforge/internal/processor"
	"github.com/vietddude/docforge/internal/queue"
	"github.com/vietddude/docforge/internal/recovery"
	"github.com/vietddude/docforge/internal/sched"
)

// Engine assembles the queue, scheduler, failure handling, recovery, and the
// API server, and manages their lifecycles. All instances are explicit; no
// package-level shared state.
type Engine struct {
	cfg       *config.AppConfig
	queue     *queue.JobQueue
	proc      *processor.Processor
	schedMgr  *sched.Manager
	apiServer *api.Server
	publisher *redisclient.Publisher

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewEngine wires everything from configuration. Handlers must be registered
// on the registry before Start; submissions for unregistered types fail at
// dispatch, not at submit.
func NewEngine(cfg *config.AppConfig, handlers *processor.HandlerRegistry) (*Engine, error) {
	q := queue.New(queue.Config{
		MaxQueueSize:      cfg.Engine.MaxQueueSize,
		MaxConcurrentJobs: cfg.Engine.MaxConcurrentJobs,
		DefaultMaxRetries: cfg.Engine.DefaultMaxRetries,
		RetentionPeriod:   cfg.Engine.RetentionPeriod,
		DefaultJobTimeout: cfg.Engine.DefaultJobTimeout,
	})

	schedMgr, err := sched.NewManager(sched.NewHostProbe(), cfg.Engine.Strategy, cfg.Engine.AutoOptimize)
	if err != nil {
		return nil, fmt.Errorf("failed to init scheduler: %w", err)
	}

	breakers := failure.NewBreakerRegistry(failure.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Timeout:          cfg.Breaker.Timeout,
		HalfOpenMax:      cfg.Breaker.HalfOpenMax,
	})

	recMgr := recovery.NewManager(recovery.Config{
		HistoryLimit:        cfg.Recovery.HistoryLimit,
		AttemptsPerStrategy: cfg.Recovery.AttemptsPerStrategy,
	}, nil)

	proc := processor.New(q, schedMgr, breakers, recMgr, handlers, processor.Config{
		PollInterval:    cfg.Engine.PollInterval,
		CleanupInterval: cfg.Engine.CleanupInterval,
	})

	e := &Engine{
		cfg:      cfg,
		queue:    q,
		proc:     proc,
		schedMgr: schedMgr,
	}

	if cfg.Redis.URL != "" {
		pub, err := redisclient.NewPublisher(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis publisher: %w", err)
		}
		proc.Events().OnAll(pub.HandleEvent)
		e.publisher = pub
		slog.Info("Redis event publisher enabled")
	}

	e.apiServer = api.NewServer(proc, api.Config{
		Port:        cfg.Server.Port,
		SubmitRate:  cfg.Server.SubmitRate,
		SubmitBurst: cfg.Server.SubmitBurst,
	})

	return e, nil
}

// Processor exposes the orchestrator for embedding callers (tests, custom
// collaborators).
func (e *Engine) Processor() *processor.Processor {
	return e.proc
}

// Start launches the poll loop, the resource refresher, and the API server.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	e.group = g

	g.Go(func() error {
		e.proc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		e.schedMgr.Run(gctx, e.cfg.Engine.ResourceInterval)
		return nil
	})
	g.Go(func() error {
		slog.Info("API server listening", "port", e.cfg.Server.Port)
		if err := e.apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	return nil
}

// Stop shuts everything down, waiting for the workers to exit.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	if err := e.apiServer.Stop(ctx); err != nil {
		slog.Warn("API server shutdown error", "error", err)
	}
	if e.publisher != nil {
		_ = e.publisher.Close()
	}
	if e.group != nil {
		return e.group.Wait()
	}
	return nil
}
