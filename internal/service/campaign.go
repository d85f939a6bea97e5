package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultGrantAttempts bounds the compare-and-swap loop when no limit is configured.
const DefaultGrantAttempts = 5

// CampaignMatch is a qualifying campaign with its uncapped cashback.
type CampaignMatch struct {
	Campaign models.Campaign
	Cashback decimal.Decimal
}

type CampaignMatcher struct{}

func NewCampaignMatcher() *CampaignMatcher {
	return &CampaignMatcher{}
}

// Match reports every live campaign in currency whose targets all hold.
func (m *CampaignMatcher) Match(snap *Snapshot, currency string, amount decimal.Decimal, attrs map[string]string, at time.Time) []CampaignMatch {
	var matches []CampaignMatch
	for _, campaign := range snap.Campaigns() {
		if !Qualifies(campaign, currency, attrs, at) {
			continue
		}
		matches = append(matches, CampaignMatch{
			Campaign: campaign,
			Cashback: CashbackFor(campaign, amount),
		})
	}
	return matches
}

// Qualifies ANDs every target. A campaign without targets qualifies on
// liveness and currency alone.
func Qualifies(c models.Campaign, currency string, attrs map[string]string, at time.Time) bool {
	if !c.LiveAt(at) {
		return false
	}
	if domain.NormalizeCurrency(c.Currency) != domain.NormalizeCurrency(currency) {
		return false
	}
	for _, target := range c.Targets {
		if !targetHolds(target, attrs) {
			return false
		}
	}
	return true
}

func targetHolds(target models.CampaignTarget, attrs map[string]string) bool {
	observed, ok := attrs[strings.TrimSpace(target.Key)]
	if !ok {
		return false
	}
	observed = strings.TrimSpace(observed)

	switch target.Operator {
	case domain.OperatorEquals:
		return observed == strings.TrimSpace(target.Value)
	case domain.OperatorIn:
		for _, candidate := range strings.Split(target.Value, ",") {
			if observed == strings.TrimSpace(candidate) {
				return true
			}
		}
	}
	return false
}

// CashbackFor returns the uncapped cashback for amount.
func CashbackFor(c models.Campaign, amount decimal.Decimal) decimal.Decimal {
	cashback := c.CashbackValue
	if c.CashbackType == domain.CashbackPercentage {
		cashback = domain.PercentOf(amount, c.CashbackValue)
	}
	return domain.RoundToMinorUnit(cashback, c.Currency)
}

// Grant is the result of allocating cashback against a campaign.
type Grant struct {
	CampaignID uuid.UUID
	Desired    decimal.Decimal
	Granted    decimal.Decimal
	UsageAfter decimal.Decimal
	Remaining  *decimal.Decimal // nil when uncapped
	Exhausted  bool
	Attempts   int
}

// CashbackAccumulator grants capped cashback through an optimistic
// compare-and-swap loop on the campaign usage counter.
type CashbackAccumulator struct {
	usage       UsageStore
	maxAttempts int
	logger      *zap.Logger
}

func NewCashbackAccumulator(usage UsageStore, maxAttempts int, logger *zap.Logger) *CashbackAccumulator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultGrantAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CashbackAccumulator{usage: usage, maxAttempts: maxAttempts, logger: logger}
}

// Grant allocates min(desired, cap - usage) and adds it to usage. Concurrent
// grants never push usage past the cap. When every attempt loses the race the
// returned error wraps domain.ErrCashbackGrantContention and nothing is granted.
func (a *CashbackAccumulator) Grant(ctx context.Context, campaign models.Campaign, desired decimal.Decimal) (Grant, error) {
	g := Grant{CampaignID: campaign.ID, Desired: desired, Granted: decimal.Zero}
	if desired.IsNegative() {
		return g, fmt.Errorf("negative cashback %s for campaign %s", desired, campaign.ID)
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		g.Attempts = attempt
		if err := ctx.Err(); err != nil {
			return g, err
		}

		current, err := a.usage.Usage(ctx, campaign.ID)
		if err != nil {
			return g, fmt.Errorf("read usage for campaign %s: %w", campaign.ID, err)
		}

		granted := allowance(campaign, current, desired)
		if granted.IsZero() {
			settle(&g, campaign, current, granted)
			return g, nil
		}

		next := current.Add(granted)
		if next.GreaterThan(domain.MaxStorableAmount) {
			return g, fmt.Errorf("%w: campaign %s usage %s", domain.ErrAmountOverflow, campaign.ID, next)
		}
		swapped, err := a.usage.CompareAndSwapUsage(ctx, campaign.ID, current, next)
		if err != nil {
			return g, fmt.Errorf("update usage for campaign %s: %w", campaign.ID, err)
		}
		if swapped {
			settle(&g, campaign, next, granted)
			if micros, err := domain.ToMicros(granted); err == nil {
				observability.AddCashbackGranted(campaign.Currency, micros)
			}
			return g, nil
		}

		observability.IncrementUsageConflict(campaign.ID.String())
		a.logger.Debug("campaign usage changed during grant",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Int("attempt", attempt),
		)
	}

	observability.IncrementGrantContention(campaign.ID.String())
	a.logger.Warn("cashback grant deferred",
		zap.String("campaign_id", campaign.ID.String()),
		zap.Int("attempts", a.maxAttempts),
	)
	return g, fmt.Errorf("%w: campaign %s after %d attempts", domain.ErrCashbackGrantContention, campaign.ID, a.maxAttempts)
}

// Preview computes what Grant would allocate at the current usage without writing.
func (a *CashbackAccumulator) Preview(ctx context.Context, campaign models.Campaign, desired decimal.Decimal) (Grant, error) {
	g := Grant{CampaignID: campaign.ID, Desired: desired, Granted: decimal.Zero}
	if desired.IsNegative() {
		return g, fmt.Errorf("negative cashback %s for campaign %s", desired, campaign.ID)
	}
	current, err := a.usage.Usage(ctx, campaign.ID)
	if err != nil {
		return g, fmt.Errorf("read usage for campaign %s: %w", campaign.ID, err)
	}
	granted := allowance(campaign, current, desired)
	settle(&g, campaign, current.Add(granted), granted)
	return g, nil
}

// Usage reads the campaign's current usage total.
func (a *CashbackAccumulator) Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	return a.usage.Usage(ctx, campaignID)
}

func allowance(campaign models.Campaign, usage, desired decimal.Decimal) decimal.Decimal {
	if campaign.MaximumCashback == nil {
		return desired
	}
	headroom := campaign.MaximumCashback.Sub(usage)
	if !headroom.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(desired, headroom)
}

func settle(g *Grant, campaign models.Campaign, usageAfter, granted decimal.Decimal) {
	g.Granted = granted
	g.UsageAfter = usageAfter
	if campaign.MaximumCashback == nil {
		return
	}
	remaining := campaign.MaximumCashback.Sub(usageAfter)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	g.Remaining = &remaining
	g.Exhausted = granted.IsZero() && !usageAfter.LessThan(*campaign.MaximumCashback)
}
