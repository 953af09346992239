package store

import (
	"context"
	"log/slog"
	"time"
)

// Pruner removes rows whose retention window has passed.
type Pruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// RunPruner calls p on every tick until ctx is cancelled. Failures are logged
// and the loop keeps going: the read path already ignores expired rows, so a
// missed prune only delays reclamation.
func RunPruner(ctx context.Context, p Pruner, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "store.pruner"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PruneExpired(ctx)
			if err != nil {
				log.Warn("booking record prune failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				log.Info("booking records pruned", slog.Int64("rows", n))
			}
		}
	}
}
