package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/ayo6706/wallet-policy/internal/service"
	"go.uber.org/zap"
)

// SnapshotWorker reloads the policy snapshot in the background so admin rule
// edits reach the engine without a restart.
type SnapshotWorker struct {
	loader   *service.SnapshotLoader
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSnapshotWorker(loader *service.SnapshotLoader) *SnapshotWorker {
	return &SnapshotWorker{
		loader:   loader,
		interval: 30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval sets the refresh interval.
func (w *SnapshotWorker) WithInterval(interval time.Duration) *SnapshotWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start runs until Stop is called or the context is canceled. The initial
// load is done by the caller before serving traffic.
func (w *SnapshotWorker) Start(ctx context.Context) {
	zap.L().Info("snapshot worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("snapshot worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("snapshot worker stop signal received")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *SnapshotWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *SnapshotWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce refreshes the snapshot immediately.
func (w *SnapshotWorker) ProcessOnce(ctx context.Context) error {
	if _, err := w.loader.Refresh(ctx); err != nil {
		observability.IncrementWorkerRun("snapshot", "failed")
		zap.L().Error("snapshot refresh failed", zap.Error(err))
		return err
	}
	observability.IncrementWorkerRun("snapshot", "success")
	return nil
}
