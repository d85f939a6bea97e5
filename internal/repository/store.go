package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides access to the repository and transaction scoping.
type Store struct {
	db   *pgxpool.Pool
	repo *Repository
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:   db,
		repo: NewRepository(db),
	}
}

// Repository returns the non-transactional repository.
func (s *Store) Repository() *Repository {
	return s.repo
}

// RunInTx executes fn within a database transaction.
func (s *Store) RunInTx(ctx context.Context, opts pgx.TxOptions, fn func(r *Repository) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.repo.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadRuleSet reads every active rule inside one repeatable-read snapshot.
func (s *Store) LoadRuleSet(ctx context.Context) (*models.RuleSet, error) {
	set := &models.RuleSet{}
	err := s.RunInTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(r *Repository) error {
		var err error
		if set.LimitRules, err = r.ListActiveLimitRules(ctx); err != nil {
			return err
		}
		if set.CommissionRules, err = r.ListActiveCommissionRules(ctx); err != nil {
			return err
		}
		if set.Campaigns, err = r.ListActiveCampaigns(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load rule set: %w", err)
	}
	return set, nil
}
