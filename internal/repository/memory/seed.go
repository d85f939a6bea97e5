package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/google/uuid"
)

// Seed is the on-disk rule fixture the memory backend starts from.
type Seed struct {
	CustomerScopes  []models.CustomerScope  `json:"customer_scopes"`
	LimitRules      []models.LimitRule      `json:"limit_rules"`
	CommissionRules []models.CommissionRule `json:"commission_rules"`
	Campaigns       []models.Campaign       `json:"campaigns"`
}

// SeedCounts reports how many records a seed loaded.
type SeedCounts struct {
	CustomerScopes  int
	LimitRules      int
	CommissionRules int
	Campaigns       int
}

// LoadSeedFile reads a JSON fixture into store. Records without an id get one;
// an invalid record fails the whole load so a typo never silently drops a rule.
func LoadSeedFile(ctx context.Context, path string, store *RuleStore) (SeedCounts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedCounts{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return SeedCounts{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return Apply(ctx, &seed, store)
}

// Apply validates and stores every record in seed.
func Apply(ctx context.Context, seed *Seed, store *RuleStore) (SeedCounts, error) {
	var counts SeedCounts
	for i := range seed.CustomerScopes {
		scope := seed.CustomerScopes[i]
		if scope.CustomerID == "" {
			return counts, fmt.Errorf("customer_scopes[%d]: customer_id is required", i)
		}
		if err := store.UpsertCustomerScope(ctx, &scope); err != nil {
			return counts, err
		}
		counts.CustomerScopes++
	}
	for i := range seed.LimitRules {
		rule := seed.LimitRules[i]
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		if err := rule.Validate(); err != nil {
			return counts, fmt.Errorf("limit_rules[%d]: %w", i, err)
		}
		if err := store.CreateLimitRule(ctx, &rule); err != nil {
			return counts, err
		}
		counts.LimitRules++
	}
	for i := range seed.CommissionRules {
		rule := seed.CommissionRules[i]
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		rule.ApplyDefaults()
		if err := rule.Validate(); err != nil {
			return counts, fmt.Errorf("commission_rules[%d]: %w", i, err)
		}
		if err := store.CreateCommissionRule(ctx, &rule); err != nil {
			return counts, err
		}
		counts.CommissionRules++
	}
	for i := range seed.Campaigns {
		campaign := seed.Campaigns[i]
		if campaign.ID == uuid.Nil {
			campaign.ID = uuid.New()
		}
		if err := campaign.Validate(); err != nil {
			return counts, fmt.Errorf("campaigns[%d]: %w", i, err)
		}
		if err := store.CreateCampaign(ctx, &campaign); err != nil {
			return counts, err
		}
		counts.Campaigns++
	}
	return counts, nil
}
