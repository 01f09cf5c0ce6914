package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/birdielabs/waveportal/internal/config"
	"github.com/birdielabs/waveportal/internal/sync"
	"github.com/birdielabs/waveportal/internal/tokens"
)

// Scheduler triggers the daily reconciliation run. A single goroutine
// drives the ticker, so scheduled runs never overlap each other; a manual
// sync racing a scheduled one is the caller's responsibility to avoid.
type Scheduler struct {
	engine   *sync.Engine
	settings *tokens.Store
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler.
func New(cfg *config.Config, engine *sync.Engine, settings *tokens.Store, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		settings: settings,
		interval: cfg.Sync.Interval,
		logger:   logger,
	}
}

// Start launches the ticker goroutine.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	s.logger.Info("sync scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the ticker and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, businessName, err := s.settings.Business()
	if err != nil || businessName == "" {
		s.logger.Warn("scheduled sync skipped: no connected business", zap.Error(err))
		return
	}

	result, err := s.engine.Sync(ctx, businessName)
	if err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
		return
	}

	s.logger.Info("scheduled sync finished", zap.String("summary", result.Summary()))
}
