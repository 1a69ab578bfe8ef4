package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultPruneInterval = time.Hour

// Pruner deletes event rows older than a cutoff. Satisfied by EventModel.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Retention prunes events past their maximum age on a fixed cadence. Clip
// and thumbnail files stay on disk; disk cleanup is an operator concern
// and the API reports a missing file as 404.
type Retention struct {
	pruner   Pruner
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.Logger
}

func NewRetention(pruner Pruner, maxAge, interval time.Duration, logger *zap.Logger) *Retention {
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &Retention{pruner: pruner, maxAge: maxAge, interval: interval, logger: logger}
}

// Start launches the prune loop. One pass runs immediately; the loop exits
// when ctx is cancelled. A maxAge of zero disables retention entirely.
func (r *Retention) Start(ctx context.Context) {
	if r.maxAge <= 0 {
		r.logger.Info("event retention disabled")
		return
	}
	go func() {
		r.prune(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.prune(ctx)
			}
		}
	}()
}

func (r *Retention) prune(ctx context.Context) {
	cutoff := time.Now().Add(-r.maxAge)
	n, err := r.pruner.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Error("event prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("events pruned", zap.Int64("rows", n), zap.Time("cutoff", cutoff))
	}
}
