package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
)

// HeartbeatPruner periodically deletes station heartbeats older than the
// retention period. A retention of 0 disables pruning.
type HeartbeatPruner struct {
	store     store.HeartbeatStore
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type PrunerConfig struct {
	// RetentionDays is how many days of heartbeat history to keep.
	// 0 keeps everything.
	RetentionDays int

	// IntervalHours defaults to 6.
	IntervalHours int
}

// NewHeartbeatPruner creates a pruner but does not start it.
func NewHeartbeatPruner(s store.HeartbeatStore, cfg PrunerConfig, logger *zap.Logger) *HeartbeatPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HeartbeatPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the interval until ctx is
// cancelled or Stop is called.
func (p *HeartbeatPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("heartbeat pruner disabled", zap.Int("retention_days", 0))
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("heartbeat pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("interval", p.interval))
}

// Stop signals the loop to exit and waits for it. Safe to call more than
// once.
func (p *HeartbeatPruner) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	<-p.done
}

// PruneOnce deletes rows older than the retention period and returns the
// count.
func (p *HeartbeatPruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("heartbeat prune",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}

func (p *HeartbeatPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *HeartbeatPruner) prune(ctx context.Context) {
	if _, err := p.PruneOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("heartbeat prune failed", zap.Error(err))
	}
}
