package history

// retention.go runs the periodic pruning of old workflow runs. It is
// long-running and context-aware; a failed prune is logged and retried on
// the next tick.

import (
	"context"
	"time"
)

// RetentionConfig controls the pruner. Zero values fall back to defaults.
type RetentionConfig struct {
	RetentionDays int           // Days to keep runs (default: 90)
	CheckInterval time.Duration // How often to prune (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartPruner prunes once immediately, then every CheckInterval, until ctx
// is cancelled.
func (s *Store) StartPruner(ctx context.Context, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	s.log.Info("history pruner started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval,
	)

	s.pruneOnce(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("history pruner stopped")
			return
		case <-ticker.C:
			s.pruneOnce(ctx, cfg)
		}
	}
}

func (s *Store) pruneOnce(ctx context.Context, cfg RetentionConfig) {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -cfg.RetentionDays)

	n, err := s.Prune(ctx, cutoff)
	if err != nil {
		s.log.Error("history prune failed", "error", err)
		return
	}
	s.log.Info("pruned workflow runs",
		"runs_pruned", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
