package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Amounts are BIGINT micros; percentage rates are micros of a percent.

const schemaCustomerScopes = `
CREATE TABLE IF NOT EXISTS customer_scopes (
    customer_id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL DEFAULT '',
    has_individual_profile BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const schemaLimitRules = `
CREATE TABLE IF NOT EXISTS limit_rules (
    id UUID PRIMARY KEY,
    scope_tag TEXT NOT NULL CHECK (scope_tag IN ('system', 'group', 'individual')),
    scope_id TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    kyc_tier TEXT NOT NULL CHECK (kyc_tier IN ('verified', 'unverified')),
    period TEXT NOT NULL CHECK (period IN ('daily', 'weekly', 'monthly', 'one_time')),
    min_amount_micros BIGINT NOT NULL DEFAULT 0 CHECK (min_amount_micros >= 0),
    max_amount_micros BIGINT CHECK (max_amount_micros IS NULL OR max_amount_micros >= min_amount_micros),
    status TEXT NOT NULL DEFAULT 'active',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_limit_rules_active_key
    ON limit_rules (scope_tag, scope_id, currency, transaction_type, kyc_tier, period)
    WHERE status = 'active';
`

const schemaCommissionRules = `
CREATE TABLE IF NOT EXISTS commission_rules (
    id UUID PRIMARY KEY,
    type TEXT NOT NULL,
    sub_type TEXT NOT NULL DEFAULT '',
    atm_type TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL,
    calculation_type TEXT NOT NULL CHECK (calculation_type IN ('fixed', 'percentage', 'mixed')),
    fixed_amount_micros BIGINT,
    percentage_rate_micros BIGINT,
    min_amount_micros BIGINT NOT NULL DEFAULT 0,
    max_amount_micros BIGINT,
    min_transactions INTEGER NOT NULL DEFAULT 1,
    max_transactions INTEGER,
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ,
    status TEXT NOT NULL DEFAULT 'active',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_commission_rules_match
    ON commission_rules (type, sub_type, currency) WHERE status = 'active';
`

const schemaCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ,
    status TEXT NOT NULL DEFAULT 'active',
    cashback_type TEXT NOT NULL CHECK (cashback_type IN ('PERCENTAGE', 'AMOUNT')),
    cashback_value_micros BIGINT NOT NULL,
    currency TEXT NOT NULL,
    maximum_cashback_micros BIGINT,
    usage_total_micros BIGINT NOT NULL DEFAULT 0 CHECK (usage_total_micros >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS campaign_targets (
    campaign_id UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    key TEXT NOT NULL,
    operator TEXT NOT NULL CHECK (operator IN ('EQUALS', 'IN')),
    value TEXT NOT NULL,
    PRIMARY KEY (campaign_id, position)
);
`

const schemaIdempotencyKeys = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
    idempotency_key TEXT PRIMARY KEY,
    request_hash TEXT NOT NULL,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    response_status INTEGER NOT NULL DEFAULT 0,
    response_body BYTEA NOT NULL DEFAULT ''::bytea,
    content_type TEXT NOT NULL DEFAULT 'application/json',
    in_progress BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates every table the service reads or writes.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, ddl := range []string{
		schemaCustomerScopes,
		schemaLimitRules,
		schemaCommissionRules,
		schemaCampaigns,
		schemaIdempotencyKeys,
	} {
		if _, err := db.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
