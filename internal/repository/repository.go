package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("record not found")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// microsEncoder converts amounts for storage and remembers the first overflow.
type microsEncoder struct {
	err error
}

func (m *microsEncoder) of(d decimal.Decimal) int64 {
	v, err := domain.ToMicros(d)
	if err != nil && m.err == nil {
		m.err = err
	}
	return v
}

func (m *microsEncoder) ofPtr(d *decimal.Decimal) *int64 {
	v, err := domain.ToMicrosPtr(d)
	if err != nil && m.err == nil {
		m.err = err
	}
	return v
}

type Repository struct {
	db DBTX
}

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) UpsertCustomerScope(ctx context.Context, scope *models.CustomerScope) error {
	query := `
		INSERT INTO customer_scopes (customer_id, group_id, has_individual_profile, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (customer_id) DO UPDATE
		SET group_id = EXCLUDED.group_id, has_individual_profile = EXCLUDED.has_individual_profile, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, scope.CustomerID, scope.GroupID, scope.HasIndividualProfile); err != nil {
		return fmt.Errorf("failed to upsert customer scope: %w", err)
	}
	return nil
}

func (r *Repository) GetCustomerScope(ctx context.Context, customerID string) (*models.CustomerScope, error) {
	scope := &models.CustomerScope{}
	query := `SELECT customer_id, group_id, has_individual_profile FROM customer_scopes WHERE customer_id = $1`
	err := r.db.QueryRow(ctx, query, customerID).Scan(&scope.CustomerID, &scope.GroupID, &scope.HasIndividualProfile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer scope: %w", err)
	}
	return scope, nil
}

func (r *Repository) CreateLimitRule(ctx context.Context, rule *models.LimitRule) error {
	query := `
		INSERT INTO limit_rules (id, scope_tag, scope_id, currency, transaction_type, kyc_tier, period,
			min_amount_micros, max_amount_micros, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING updated_at
	`
	var m microsEncoder
	minMicros, maxMicros := m.of(rule.MinAmount), m.ofPtr(rule.MaxAmount)
	if m.err != nil {
		return fmt.Errorf("limit rule %s: %w", rule.ID, m.err)
	}
	err := r.db.QueryRow(ctx, query,
		rule.ID, string(rule.Scope.Tag), rule.Scope.ID, rule.Currency, rule.TransactionType,
		string(rule.KYCTier), string(rule.Period), minMicros, maxMicros, rule.Status,
	).Scan(&rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create limit rule: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveLimitRules(ctx context.Context) ([]models.LimitRule, error) {
	query := `
		SELECT id, scope_tag, scope_id, currency, transaction_type, kyc_tier, period,
			min_amount_micros, max_amount_micros, status, updated_at
		FROM limit_rules
		WHERE status = 'active'
		ORDER BY updated_at DESC, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list limit rules: %w", err)
	}
	defer rows.Close()

	var rules []models.LimitRule
	for rows.Next() {
		var (
			rule                   models.LimitRule
			scopeTag, tier, period string
			minMicros              int64
			maxMicros              *int64
		)
		if err := rows.Scan(&rule.ID, &scopeTag, &rule.Scope.ID, &rule.Currency, &rule.TransactionType,
			&tier, &period, &minMicros, &maxMicros, &rule.Status, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan limit rule: %w", err)
		}
		rule.Scope.Tag = domain.ScopeTag(scopeTag)
		rule.KYCTier = domain.KYCTier(tier)
		rule.Period = domain.Period(period)
		rule.MinAmount = domain.FromMicros(minMicros)
		rule.MaxAmount = domain.FromMicrosPtr(maxMicros)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate limit rules: %w", err)
	}
	return rules, nil
}

func (r *Repository) CreateCommissionRule(ctx context.Context, rule *models.CommissionRule) error {
	query := `
		INSERT INTO commission_rules (id, type, sub_type, atm_type, currency, calculation_type,
			fixed_amount_micros, percentage_rate_micros, min_amount_micros, max_amount_micros,
			min_transactions, max_transactions, start_date, end_date, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
	`
	rule.ApplyDefaults()
	var m microsEncoder
	args := []any{
		rule.ID, rule.Type, rule.SubType, rule.ATMType, rule.Currency, string(rule.CalculationType),
		m.ofPtr(rule.FixedAmount), m.ofPtr(rule.PercentageRate),
		m.of(rule.MinAmount), m.ofPtr(rule.MaxAmount),
		rule.MinTransactions, rule.MaxTransactions, rule.StartDate, rule.EndDate, rule.Status,
	}
	if m.err != nil {
		return fmt.Errorf("commission rule %s: %w", rule.ID, m.err)
	}
	_, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create commission rule: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveCommissionRules(ctx context.Context) ([]models.CommissionRule, error) {
	query := `
		SELECT id, type, sub_type, atm_type, currency, calculation_type,
			fixed_amount_micros, percentage_rate_micros, min_amount_micros, max_amount_micros,
			min_transactions, max_transactions, start_date, end_date, status
		FROM commission_rules
		WHERE status = 'active'
		ORDER BY start_date DESC, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list commission rules: %w", err)
	}
	defer rows.Close()

	var rules []models.CommissionRule
	for rows.Next() {
		var (
			rule                    models.CommissionRule
			calcType                string
			fixedMicros, rateMicros *int64
			minMicros               int64
			maxMicros               *int64
			minTx                   int32
			maxTx                   *int32
		)
		if err := rows.Scan(&rule.ID, &rule.Type, &rule.SubType, &rule.ATMType, &rule.Currency, &calcType,
			&fixedMicros, &rateMicros, &minMicros, &maxMicros,
			&minTx, &maxTx, &rule.StartDate, &rule.EndDate, &rule.Status); err != nil {
			return nil, fmt.Errorf("failed to scan commission rule: %w", err)
		}
		rule.CalculationType = domain.CalculationType(calcType)
		rule.FixedAmount = domain.FromMicrosPtr(fixedMicros)
		rule.PercentageRate = domain.FromMicrosPtr(rateMicros)
		rule.MinAmount = domain.FromMicros(minMicros)
		rule.MaxAmount = domain.FromMicrosPtr(maxMicros)
		rule.MinTransactions = int(minTx)
		if maxTx != nil {
			v := int(*maxTx)
			rule.MaxTransactions = &v
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commission rules: %w", err)
	}
	return rules, nil
}

// CreateCampaign writes the campaign and its targets atomically. A campaign
// stored without all of its targets would match more broadly than intended.
func (r *Repository) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	var m microsEncoder
	args := []any{
		campaign.ID, campaign.Name, campaign.StartDate, campaign.EndDate, campaign.Status,
		string(campaign.CashbackType), m.of(campaign.CashbackValue), campaign.Currency,
		m.ofPtr(campaign.MaximumCashback), m.of(campaign.UsageTotal),
	}
	if m.err != nil {
		return fmt.Errorf("campaign %s: %w", campaign.ID, m.err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin campaign insert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO campaigns (id, name, start_date, end_date, status, cashback_type, cashback_value_micros,
			currency, maximum_cashback_micros, usage_total_micros, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	for i, target := range campaign.Targets {
		_, err := tx.Exec(ctx,
			`INSERT INTO campaign_targets (campaign_id, position, key, operator, value) VALUES ($1, $2, $3, $4, $5)`,
			campaign.ID, i, target.Key, string(target.Operator), target.Value)
		if err != nil {
			return fmt.Errorf("failed to create campaign target %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit campaign insert: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	query := `
		SELECT id, name, start_date, end_date, status, cashback_type, cashback_value_micros,
			currency, maximum_cashback_micros, usage_total_micros
		FROM campaigns
		WHERE status = 'active'
		ORDER BY start_date, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			c                        models.Campaign
			cashbackType             string
			valueMicros, usageMicros int64
			capMicros                *int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.Status, &cashbackType,
			&valueMicros, &c.Currency, &capMicros, &usageMicros); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		c.CashbackType = domain.CashbackType(cashbackType)
		c.CashbackValue = domain.FromMicros(valueMicros)
		c.MaximumCashback = domain.FromMicrosPtr(capMicros)
		c.UsageTotal = domain.FromMicros(usageMicros)
		index[c.ID] = len(campaigns)
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaigns: %w", err)
	}
	rows.Close()

	targetRows, err := r.db.Query(ctx, `
		SELECT t.campaign_id, t.key, t.operator, t.value
		FROM campaign_targets t
		JOIN campaigns c ON c.id = t.campaign_id
		WHERE c.status = 'active'
		ORDER BY t.campaign_id, t.position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign targets: %w", err)
	}
	defer targetRows.Close()

	for targetRows.Next() {
		var (
			campaignID uuid.UUID
			target     models.CampaignTarget
			operator   string
		)
		if err := targetRows.Scan(&campaignID, &target.Key, &operator, &target.Value); err != nil {
			return nil, fmt.Errorf("failed to scan campaign target: %w", err)
		}
		target.Operator = domain.TargetOperator(operator)
		if i, ok := index[campaignID]; ok {
			campaigns[i].Targets = append(campaigns[i].Targets, target)
		}
	}
	if err := targetRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaign targets: %w", err)
	}
	return campaigns, nil
}

// Usage returns the cashback already issued by a campaign.
func (r *Repository) Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	var micros int64
	err := r.db.QueryRow(ctx, `SELECT usage_total_micros FROM campaigns WHERE id = $1`, campaignID).Scan(&micros)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to get campaign usage: %w", err)
	}
	return domain.FromMicros(micros), nil
}

// CompareAndSwapUsage moves usage from old to next only if nobody else moved it first.
func (r *Repository) CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error) {
	var m microsEncoder
	oldMicros, nextMicros := m.of(old), m.of(next)
	if m.err != nil {
		return false, fmt.Errorf("campaign %s usage: %w", campaignID, m.err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE campaigns SET usage_total_micros = $3, updated_at = $4 WHERE id = $1 AND usage_total_micros = $2`,
		campaignID, oldMicros, nextMicros, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to swap campaign usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordUsage raises the persisted usage to at least usage. It never lowers
// it, so replaying an older value is harmless.
func (r *Repository) RecordUsage(ctx context.Context, campaignID uuid.UUID, usage decimal.Decimal) error {
	usageMicros, err := domain.ToMicros(usage)
	if err != nil {
		return fmt.Errorf("campaign %s usage: %w", campaignID, err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE campaigns SET usage_total_micros = GREATEST(usage_total_micros, $2), updated_at = NOW() WHERE id = $1`,
		campaignID, usageMicros)
	if err != nil {
		return fmt.Errorf("failed to record campaign usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	return nil
}
