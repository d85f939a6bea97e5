package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/ayo6706/wallet-policy/internal/service"
	"go.uber.org/zap"
)

// CapAuditWorker runs periodic campaign cap audits.
type CapAuditWorker struct {
	svc      *service.CapAuditService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCapAuditWorker constructs a worker with a default hourly interval.
func NewCapAuditWorker(svc *service.CapAuditService) *CapAuditWorker {
	return &CapAuditWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *CapAuditWorker) WithInterval(interval time.Duration) *CapAuditWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs the audit at the configured interval.
func (w *CapAuditWorker) Start(ctx context.Context) {
	zap.L().Info("cap audit worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("cap audit worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("cap audit worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *CapAuditWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *CapAuditWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *CapAuditWorker) runOnce(ctx context.Context) {
	breaches, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("cap_audit", "failed")
		zap.L().Error("cap audit run failed", zap.Error(err))
		return
	}
	if len(breaches) > 0 {
		observability.IncrementWorkerRun("cap_audit", "breach")
		return
	}
	observability.IncrementWorkerRun("cap_audit", "success")
}
