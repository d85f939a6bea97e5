package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type limitIndexKey struct {
	scopeTag        domain.ScopeTag
	scopeID         string
	currency        string
	transactionType string
	kycTier         domain.KYCTier
	period          domain.Period
}

type commissionIndexKey struct {
	ruleType string
	subType  string
	atmType  string
	currency string
}

// Snapshot is an immutable, indexed view of the rule set. It is never mutated
// after BuildSnapshot returns, so readers need no locking.
type Snapshot struct {
	LoadedAt time.Time

	limits        map[limitIndexKey]models.LimitRule
	commissions   map[commissionIndexKey][]models.CommissionRule
	campaigns     []models.Campaign
	campaignsByID map[uuid.UUID]models.Campaign
}

// SnapshotStats counts what a build kept and dropped.
type SnapshotStats struct {
	LimitRules      int
	CommissionRules int
	Campaigns       int
	Skipped         int
}

// BuildSnapshot indexes the active rules of rs. Rules failing validation are
// skipped; of two active limit rules sharing a key the first one read wins.
func BuildSnapshot(rs *models.RuleSet, loadedAt time.Time, logger *zap.Logger) (*Snapshot, SnapshotStats) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap := &Snapshot{
		LoadedAt:      loadedAt,
		limits:        make(map[limitIndexKey]models.LimitRule),
		commissions:   make(map[commissionIndexKey][]models.CommissionRule),
		campaignsByID: make(map[uuid.UUID]models.Campaign),
	}
	var stats SnapshotStats
	if rs == nil {
		return snap, stats
	}

	for _, rule := range rs.LimitRules {
		if rule.Status != domain.StatusActive {
			continue
		}
		if err := rule.Validate(); err != nil {
			logger.Warn("skipping invalid limit rule", zap.String("rule_id", rule.ID.String()), zap.Error(err))
			stats.Skipped++
			continue
		}
		key := limitKeyFor(rule.Scope, LimitKey{
			Currency:        rule.Currency,
			TransactionType: rule.TransactionType,
			KYCTier:         rule.KYCTier,
			Period:          rule.Period,
		})
		if existing, ok := snap.limits[key]; ok {
			logger.Warn("duplicate active limit rule",
				zap.String("rule_id", rule.ID.String()),
				zap.String("kept_rule_id", existing.ID.String()),
			)
			stats.Skipped++
			continue
		}
		snap.limits[key] = rule
		stats.LimitRules++
	}

	for _, rule := range rs.CommissionRules {
		if rule.Status != domain.StatusActive {
			continue
		}
		if err := rule.Validate(); err != nil {
			logger.Warn("skipping invalid commission rule", zap.String("rule_id", rule.ID.String()), zap.Error(err))
			stats.Skipped++
			continue
		}
		key := commissionKeyFor(rule.Type, rule.SubType, rule.ATMType, rule.Currency)
		snap.commissions[key] = append(snap.commissions[key], rule)
		stats.CommissionRules++
	}

	for _, campaign := range rs.Campaigns {
		if campaign.Status != domain.StatusActive {
			continue
		}
		if err := campaign.Validate(); err != nil {
			logger.Warn("skipping invalid campaign", zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
			stats.Skipped++
			continue
		}
		snap.campaigns = append(snap.campaigns, campaign)
		snap.campaignsByID[campaign.ID] = campaign
		stats.Campaigns++
	}
	return snap, stats
}

func limitKeyFor(scope models.Scope, key LimitKey) limitIndexKey {
	scopeID := scope.ID
	if scope.Tag == domain.ScopeSystem {
		scopeID = ""
	}
	return limitIndexKey{
		scopeTag:        scope.Tag,
		scopeID:         scopeID,
		currency:        domain.NormalizeCurrency(key.Currency),
		transactionType: normalizeKey(key.TransactionType),
		kycTier:         key.KYCTier,
		period:          key.Period,
	}
}

// atmType only narrows prepaid_card rules.
func commissionKeyFor(ruleType, subType, atmType, currency string) commissionIndexKey {
	ruleType = normalizeKey(ruleType)
	if ruleType != domain.CommissionPrepaidCard {
		atmType = ""
	}
	return commissionIndexKey{
		ruleType: ruleType,
		subType:  normalizeKey(subType),
		atmType:  normalizeKey(atmType),
		currency: domain.NormalizeCurrency(currency),
	}
}

func (s *Snapshot) limitRule(scope models.Scope, key LimitKey) (models.LimitRule, bool) {
	rule, ok := s.limits[limitKeyFor(scope, key)]
	return rule, ok
}

func (s *Snapshot) commissionRules(ruleType, subType, atmType, currency string) []models.CommissionRule {
	return s.commissions[commissionKeyFor(ruleType, subType, atmType, currency)]
}

// Campaigns returns the active campaigns in load order.
func (s *Snapshot) Campaigns() []models.Campaign {
	return s.campaigns
}

func (s *Snapshot) Campaign(id uuid.UUID) (models.Campaign, bool) {
	c, ok := s.campaignsByID[id]
	return c, ok
}

// SnapshotStore publishes the current snapshot to concurrent readers.
type SnapshotStore struct {
	current atomic.Pointer[Snapshot]
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Load returns nil until the first snapshot is stored.
func (s *SnapshotStore) Load() *Snapshot {
	return s.current.Load()
}

func (s *SnapshotStore) Store(snap *Snapshot) {
	s.current.Store(snap)
}

// SnapshotLoader rebuilds the snapshot from a RuleSource.
type SnapshotLoader struct {
	source RuleSource
	store  *SnapshotStore
	seeder UsageSeeder
	logger *zap.Logger
	now    func() time.Time
}

// NewSnapshotLoader creates a loader. seeder may be nil when usage lives in
// the rule database itself.
func NewSnapshotLoader(source RuleSource, store *SnapshotStore, seeder UsageSeeder, logger *zap.Logger) *SnapshotLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotLoader{
		source: source,
		store:  store,
		seeder: seeder,
		logger: logger,
		now:    time.Now,
	}
}

// Refresh loads, validates and publishes a new snapshot. The previous snapshot
// stays in place when loading fails.
func (l *SnapshotLoader) Refresh(ctx context.Context) (SnapshotStats, error) {
	rs, err := l.source.LoadRuleSet(ctx)
	if err != nil {
		return SnapshotStats{}, fmt.Errorf("load rule set: %w", err)
	}

	loadedAt := l.now().UTC()
	snap, stats := BuildSnapshot(rs, loadedAt, l.logger)

	if l.seeder != nil {
		for _, campaign := range snap.Campaigns() {
			if err := l.seeder.SeedUsage(ctx, campaign.ID, campaign.UsageTotal); err != nil {
				return stats, fmt.Errorf("seed usage for campaign %s: %w", campaign.ID, err)
			}
		}
	}

	l.store.Store(snap)
	observability.SetSnapshotSize(stats.LimitRules, stats.CommissionRules, stats.Campaigns, loadedAt)
	l.logger.Info("policy snapshot refreshed",
		zap.Int("limit_rules", stats.LimitRules),
		zap.Int("commission_rules", stats.CommissionRules),
		zap.Int("campaigns", stats.Campaigns),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
