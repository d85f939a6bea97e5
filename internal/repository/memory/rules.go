package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleStore keeps rules and customer scopes in process memory.
type RuleStore struct {
	mu          sync.RWMutex
	scopes      map[string]models.CustomerScope
	limits      []models.LimitRule
	commissions []models.CommissionRule
	campaigns   []models.Campaign
}

func NewRuleStore() *RuleStore {
	return &RuleStore{
		scopes: make(map[string]models.CustomerScope),
	}
}

func (s *RuleStore) UpsertCustomerScope(ctx context.Context, scope *models.CustomerScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope.CustomerID] = *scope
	return nil
}

func (s *RuleStore) GetCustomerScope(ctx context.Context, customerID string) (*models.CustomerScope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope, ok := s.scopes[customerID]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", customerID, repository.ErrNotFound)
	}
	return &scope, nil
}

func (s *RuleStore) CreateLimitRule(ctx context.Context, rule *models.LimitRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, *rule)
	return nil
}

func (s *RuleStore) CreateCommissionRule(ctx context.Context, rule *models.CommissionRule) error {
	rule.ApplyDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commissions = append(s.commissions, *rule)
	return nil
}

func (s *RuleStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *campaign
	c.Targets = append([]models.CampaignTarget(nil), campaign.Targets...)
	s.campaigns = append(s.campaigns, c)
	return nil
}

// RecordUsage raises a campaign's stored usage to at least usage.
func (s *RuleStore) RecordUsage(ctx context.Context, campaignID uuid.UUID, usage decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.campaigns {
		if s.campaigns[i].ID != campaignID {
			continue
		}
		if usage.GreaterThan(s.campaigns[i].UsageTotal) {
			s.campaigns[i].UsageTotal = usage
		}
		return nil
	}
	return fmt.Errorf("campaign %s: %w", campaignID, repository.ErrNotFound)
}

// LoadRuleSet returns a copy of every stored rule; inactive rules are left to the caller to skip.
func (s *RuleStore) LoadRuleSet(ctx context.Context) (*models.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := &models.RuleSet{
		LimitRules:      append([]models.LimitRule(nil), s.limits...),
		CommissionRules: append([]models.CommissionRule(nil), s.commissions...),
		Campaigns:       make([]models.Campaign, 0, len(s.campaigns)),
	}
	for _, c := range s.campaigns {
		c.Targets = append([]models.CampaignTarget(nil), c.Targets...)
		set.Campaigns = append(set.Campaigns, c)
	}
	return set, nil
}
