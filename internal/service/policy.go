package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/ayo6706/wallet-policy/internal/validation"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("wallet-policy/service")

const (
	modeQuote   = "quote"
	modeResolve = "resolve"
)

// PolicyService evaluates one transaction against the current snapshot.
type PolicyService struct {
	snapshots   *SnapshotStore
	scopes      *ScopeResolver
	limits      *LimitResolver
	commissions *CommissionCalculator
	matcher     *CampaignMatcher
	accumulator *CashbackAccumulator
	logger      *zap.Logger
	now         func() time.Time
}

func NewPolicyService(snapshots *SnapshotStore, scopes *ScopeResolver, accumulator *CashbackAccumulator, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		snapshots:   snapshots,
		scopes:      scopes,
		limits:      NewLimitResolver(),
		commissions: NewCommissionCalculator(),
		matcher:     NewCampaignMatcher(),
		accumulator: accumulator,
		logger:      logger,
		now:         time.Now,
	}
}

// Quote evaluates tc without side effects. Campaign outcomes show what would
// be granted at current usage.
func (s *PolicyService) Quote(ctx context.Context, tc models.TransactionContext) (*models.PolicyDecision, error) {
	return s.evaluate(ctx, tc, modeQuote)
}

// Resolve evaluates tc and grants cashback for every qualifying campaign.
// Sub-resolution failures are reported inside the decision; the returned
// error is set only for an invalid context or a missing snapshot.
func (s *PolicyService) Resolve(ctx context.Context, tc models.TransactionContext) (*models.PolicyDecision, error) {
	return s.evaluate(ctx, tc, modeResolve)
}

func (s *PolicyService) evaluate(ctx context.Context, tc models.TransactionContext, mode string) (*models.PolicyDecision, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "policy."+mode, trace.WithAttributes(
		attribute.String("policy.customer_id", tc.CustomerID),
		attribute.String("policy.currency", tc.Currency),
		attribute.String("policy.transaction_type", tc.TransactionType),
	))
	defer span.End()
	defer func() { observability.ObserveResolution(mode, time.Since(start)) }()

	if err := validateTransaction(tc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid transaction")
		return nil, err
	}
	snap := s.snapshots.Load()
	if snap == nil {
		span.SetStatus(codes.Error, "snapshot unavailable")
		return nil, domain.ErrSnapshotUnavailable
	}

	at := tc.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	currency := domain.NormalizeCurrency(tc.Currency)

	decision := &models.PolicyDecision{
		CustomerID:  tc.CustomerID,
		EvaluatedAt: at,
		Campaigns:   []models.CampaignOutcome{},
	}

	scopes, err := s.scopes.Resolve(ctx, tc.CustomerID)
	if err != nil {
		decision.Rejected = true
		decision.Err = err
		decision.Error = models.NewOutcomeError(err)
		observability.IncrementPolicyOutcome("scope", domain.ErrorCode(err))
		s.logger.Warn("customer scope lookup failed", zap.String("customer_id", tc.CustomerID), zap.Error(err))
	}
	decision.Scopes = scopes

	decision.Limit = s.limitOutcome(snap, scopes, err, currency, tc)
	decision.Commission = s.commissionOutcome(snap, currency, at, tc)

	attrs := targetAttributes(tc, currency)
	for _, match := range s.matcher.Match(snap, currency, tc.Amount, attrs, at) {
		if decision.Rejected {
			decision.Campaigns = append(decision.Campaigns, newCampaignOutcome(match))
			continue
		}
		decision.Campaigns = append(decision.Campaigns, s.campaignOutcome(ctx, match, mode == modeResolve))
	}

	span.SetAttributes(
		attribute.Bool("policy.rejected", decision.Rejected),
		attribute.Int("policy.campaigns", len(decision.Campaigns)),
	)
	return decision, nil
}

func (s *PolicyService) limitOutcome(snap *Snapshot, scopes []models.Scope, scopeErr error, currency string, tc models.TransactionContext) models.LimitOutcome {
	out := models.LimitOutcome{Limits: []models.EffectiveLimit{}}
	if scopeErr != nil {
		out.Err = scopeErr
		out.Error = models.NewOutcomeError(scopeErr)
		return out
	}
	limits, err := s.limits.ResolveAll(snap, scopes, currency, tc.TransactionType, tc.KYCTier)
	observability.IncrementPolicyOutcome("limit", domain.ErrorCode(err))
	if err != nil {
		out.Err = err
		out.Error = models.NewOutcomeError(err)
		return out
	}
	for i := range limits {
		limits[i].AmountWithinBounds = limits[i].Allows(tc.Amount)
	}
	out.Limits = limits
	return out
}

func (s *PolicyService) commissionOutcome(snap *Snapshot, currency string, at time.Time, tc models.TransactionContext) models.CommissionOutcome {
	out := models.CommissionOutcome{Currency: currency}
	result, err := s.commissions.Calculate(snap, CommissionQuery{
		Type:             tc.TransactionType,
		SubType:          tc.SubType,
		ATMType:          tc.ATMType,
		Currency:         currency,
		Amount:           tc.Amount,
		TransactionCount: tc.PeriodTransactionCount,
		At:               at,
	})
	observability.IncrementPolicyOutcome("commission", domain.ErrorCode(err))
	if !errors.Is(err, domain.ErrNoCommissionRule) {
		ruleID := result.Rule.ID
		out.RuleID = &ruleID
		out.CalculationType = result.Rule.CalculationType
	}
	if err != nil {
		out.Err = err
		out.Error = models.NewOutcomeError(err)
		return out
	}
	fee := result.Fee
	out.Fee = &fee
	return out
}

// newCampaignOutcome reports a qualifying campaign with nothing granted.
func newCampaignOutcome(match CampaignMatch) models.CampaignOutcome {
	return models.CampaignOutcome{
		CampaignID: match.Campaign.ID,
		Name:       match.Campaign.Name,
		Currency:   domain.NormalizeCurrency(match.Campaign.Currency),
		Cashback:   match.Cashback,
		Granted:    decimal.Zero,
	}
}

func (s *PolicyService) campaignOutcome(ctx context.Context, match CampaignMatch, grant bool) models.CampaignOutcome {
	campaign := match.Campaign
	out := newCampaignOutcome(match)

	var (
		g   Grant
		err error
	)
	if grant {
		g, err = s.accumulator.Grant(ctx, campaign, match.Cashback)
	} else {
		g, err = s.accumulator.Preview(ctx, campaign, match.Cashback)
	}
	observability.IncrementPolicyOutcome("campaign", domain.ErrorCode(err))
	out.Granted = g.Granted
	if err != nil {
		out.Deferred = true
		out.Err = err
		out.Error = models.NewOutcomeError(err)
		s.logger.Warn("campaign grant not applied", zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
		return out
	}
	out.Remaining = g.Remaining
	out.Exhausted = g.Exhausted
	return out
}

func validateTransaction(tc models.TransactionContext) error {
	if err := validation.ValidateStruct(tc); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidTransaction, err)
	}
	if tc.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be >= 0", domain.ErrInvalidTransaction)
	}
	if tc.Amount.GreaterThan(domain.MaxStorableAmount) {
		return fmt.Errorf("%w: amount must be <= %s", domain.ErrInvalidTransaction, domain.MaxStorableAmount)
	}
	return nil
}

// targetAttributes adds the transaction's own fields under their canonical
// keys unless the caller supplied them explicitly.
func targetAttributes(tc models.TransactionContext, currency string) map[string]string {
	attrs := make(map[string]string, len(tc.TargetAttributes)+5)
	for k, v := range tc.TargetAttributes {
		attrs[strings.TrimSpace(k)] = v
	}
	defaults := map[string]string{
		"customer_id":      tc.CustomerID,
		"currency":         currency,
		"transaction_type": tc.TransactionType,
		"sub_type":         tc.SubType,
		"kyc_tier":         string(tc.KYCTier),
	}
	for k, v := range defaults {
		if _, ok := attrs[k]; !ok && v != "" {
			attrs[k] = v
		}
	}
	return attrs
}
