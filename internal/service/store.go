package service

import (
	"context"

	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleSource supplies a consistent read of every rule the engine evaluates.
type RuleSource interface {
	LoadRuleSet(ctx context.Context) (*models.RuleSet, error)
}

// ScopeDirectory resolves a customer's scope membership.
type ScopeDirectory interface {
	GetCustomerScope(ctx context.Context, customerID string) (*models.CustomerScope, error)
}

// UsageStore is the contended campaign usage counter. CompareAndSwapUsage must
// only write next when the stored value still equals old.
type UsageStore interface {
	Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error)
	CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error)
}

// UsageSeeder initialises counters held outside the rule database.
type UsageSeeder interface {
	SeedUsage(ctx context.Context, campaignID uuid.UUID, usage decimal.Decimal) error
}
