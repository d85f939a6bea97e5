package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CapBreach is a campaign whose usage total exceeds its cap.
type CapBreach struct {
	CampaignID uuid.UUID
	Usage      decimal.Decimal
	Cap        decimal.Decimal
}

// CapAuditService verifies that no campaign has granted past its cap.
type CapAuditService struct {
	snapshots *SnapshotStore
	usage     UsageStore
}

func NewCapAuditService(snapshots *SnapshotStore, usage UsageStore) *CapAuditService {
	return &CapAuditService{snapshots: snapshots, usage: usage}
}

// Run checks every capped campaign in the current snapshot.
func (s *CapAuditService) Run(ctx context.Context) ([]CapBreach, error) {
	snap := s.snapshots.Load()
	if snap == nil {
		return nil, domain.ErrSnapshotUnavailable
	}

	var breaches []CapBreach
	for _, campaign := range snap.Campaigns() {
		if campaign.MaximumCashback == nil {
			continue
		}
		usage, err := s.usage.Usage(ctx, campaign.ID)
		if err != nil {
			return breaches, fmt.Errorf("read usage for campaign %s: %w", campaign.ID, err)
		}
		if usage.GreaterThan(*campaign.MaximumCashback) {
			observability.IncrementCapBreach(campaign.ID.String())
			zap.L().Error("CRITICAL: campaign usage exceeds cap",
				zap.String("campaign_id", campaign.ID.String()),
				zap.Stringer("usage", domain.NewMoney(usage, campaign.Currency)),
				zap.Stringer("cap", domain.NewMoney(*campaign.MaximumCashback, campaign.Currency)),
			)
			breaches = append(breaches, CapBreach{CampaignID: campaign.ID, Usage: usage, Cap: *campaign.MaximumCashback})
		}
	}

	if len(breaches) == 0 {
		zap.L().Info("Campaign caps intact")
	}
	return breaches, nil
}
