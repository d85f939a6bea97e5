package service

import (
	"fmt"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
)

// LimitKey is the exact match key of a limit rule within one scope.
type LimitKey struct {
	Currency        string
	TransactionType string
	KYCTier         domain.KYCTier
	Period          domain.Period
}

// LimitResolver picks the effective limit by scanning scopes in precedence order.
type LimitResolver struct{}

func NewLimitResolver() *LimitResolver {
	return &LimitResolver{}
}

// Resolve returns the first rule matching key, taken from the most specific
// scope that defines one. Rules are never merged across scopes.
func (r *LimitResolver) Resolve(snap *Snapshot, scopes []models.Scope, key LimitKey) (models.EffectiveLimit, error) {
	for _, scope := range scopes {
		rule, ok := snap.limitRule(scope, key)
		if !ok {
			continue
		}
		return models.EffectiveLimit{
			Period:    rule.Period,
			MinAmount: rule.MinAmount,
			MaxAmount: rule.MaxAmount,
			Scope:     rule.Scope,
			RuleID:    rule.ID,
		}, nil
	}
	return models.EffectiveLimit{}, fmt.Errorf("%w: %s/%s/%s/%s", domain.ErrLimitNotConfigured,
		domain.NormalizeCurrency(key.Currency), normalizeKey(key.TransactionType), key.KYCTier, key.Period)
}

// ResolveAll resolves every period independently. Periods without a rule are
// omitted; when none has a rule the currency/type pair is not configured.
func (r *LimitResolver) ResolveAll(snap *Snapshot, scopes []models.Scope, currency, transactionType string, tier domain.KYCTier) ([]models.EffectiveLimit, error) {
	limits := make([]models.EffectiveLimit, 0, len(domain.Periods))
	for _, period := range domain.Periods {
		limit, err := r.Resolve(snap, scopes, LimitKey{
			Currency:        currency,
			TransactionType: transactionType,
			KYCTier:         tier,
			Period:          period,
		})
		if err != nil {
			continue
		}
		limits = append(limits, limit)
	}
	if len(limits) == 0 {
		return nil, fmt.Errorf("%w: %s/%s/%s", domain.ErrLimitNotConfigured,
			domain.NormalizeCurrency(currency), normalizeKey(transactionType), tier)
	}
	return limits, nil
}
