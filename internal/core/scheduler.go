package core

// scheduler.go runs maintenance jobs on a ticker until the context is
// cancelled. A failing run is logged and the next tick tries again.

import (
	"context"
	"log/slog"
	"time"
)

// Job performs one maintenance pass and reports how many items it touched.
type Job func(ctx context.Context) (int64, error)

// RunPeriodic runs job immediately and then every interval until ctx is done.
func RunPeriodic(ctx context.Context, name string, interval time.Duration, job Job) {
	if interval <= 0 {
		slog.Warn("scheduler disabled", "job", name)
		return
	}
	slog.Info("scheduler started", "job", name, "interval", interval.String())

	runJob(ctx, name, job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "job", name)
			return
		case <-ticker.C:
			runJob(ctx, name, job)
		}
	}
}

func runJob(ctx context.Context, name string, job Job) {
	start := time.Now()
	n, err := job(ctx)
	if err != nil {
		slog.Error("scheduled job failed", "job", name, "error", err)
		return
	}
	slog.Info("scheduled job completed",
		"job", name,
		"affected", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
