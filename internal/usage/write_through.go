package usage

import (
	"context"

	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Counter is the fast usage counter grants race on.
type Counter interface {
	Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error)
	CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error)
}

// Recorder persists a usage high-water mark. RecordUsage must never lower
// the stored value.
type Recorder interface {
	RecordUsage(ctx context.Context, campaignID uuid.UUID, usage decimal.Decimal) error
}

// WriteThrough copies every successful swap on the counter into a durable
// recorder, so a counter lost from Redis is re-seeded from a value at least as
// high as the last grant that was recorded.
type WriteThrough struct {
	counter  Counter
	recorder Recorder
	logger   *zap.Logger
}

func NewWriteThrough(counter Counter, recorder Recorder, logger *zap.Logger) *WriteThrough {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteThrough{counter: counter, recorder: recorder, logger: logger}
}

func (w *WriteThrough) Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	return w.counter.Usage(ctx, campaignID)
}

// CompareAndSwapUsage reports the counter's result. A failed record is logged
// rather than returned: the grant is already committed on the counter, and
// the next successful record carries a higher value.
func (w *WriteThrough) CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error) {
	swapped, err := w.counter.CompareAndSwapUsage(ctx, campaignID, old, next)
	if err != nil || !swapped {
		return swapped, err
	}
	if err := w.recorder.RecordUsage(ctx, campaignID, next); err != nil {
		observability.IncrementUsageRecordFailure()
		w.logger.Error("campaign usage write-through failed",
			zap.String("campaign_id", campaignID.String()),
			zap.String("usage", next.String()),
			zap.Error(err),
		)
	}
	return true, nil
}
