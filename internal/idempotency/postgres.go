package idempotency

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKeys persists keys in the idempotency_keys table.
type PostgresKeys struct {
	db *pgxpool.Pool
}

func NewPostgresKeys(db *pgxpool.Pool) *PostgresKeys {
	return &PostgresKeys{db: db}
}

func (k *PostgresKeys) Get(ctx context.Context, key string) (*Record, error) {
	var (
		rec    Record
		status int32
	)
	err := k.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, response_status, response_body, content_type, in_progress
		FROM idempotency_keys
		WHERE idempotency_key = $1
	`, key).Scan(&rec.Key, &rec.RequestHash, &status, &rec.Body, &rec.ContentType, &rec.InProgress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Status = int(status)
	rec.ServedBy = "postgres"
	return &rec, nil
}

func (k *PostgresKeys) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	tag, err := k.db.Exec(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, requestHash, method, path)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (k *PostgresKeys) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	rec := Record{Key: key, RequestHash: requestHash, Status: status, Body: body, ContentType: contentType, ServedBy: "postgres"}
	tag, err := k.db.Exec(ctx, `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
	`, int32(status), body, contentType, key, requestHash)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() != 1 {
		return nil, ErrNotFound
	}
	return &rec, nil
}
