package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/models"
	"github.com/ayo6706/wallet-policy/internal/repository"
)

type ScopeResolver struct {
	directory ScopeDirectory
}

func NewScopeResolver(directory ScopeDirectory) *ScopeResolver {
	return &ScopeResolver{directory: directory}
}

// Resolve returns the customer's scopes most specific first. System is always last.
func (r *ScopeResolver) Resolve(ctx context.Context, customerID string) ([]models.Scope, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: empty customer id", domain.ErrScopeLookup)
	}

	membership, err := r.directory.GetCustomerScope(ctx, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: customer %s not found", domain.ErrScopeLookup, customerID)
	}
	if err != nil {
		// the customer may well exist; the directory could not answer
		return nil, fmt.Errorf("%w: %w", domain.ErrScopeUnavailable, err)
	}

	scopes := []models.Scope{models.SystemScope}
	if membership.GroupID != "" {
		scopes = append(scopes, models.Scope{Tag: domain.ScopeGroup, ID: membership.GroupID})
	}
	if membership.HasIndividualProfile {
		scopes = append(scopes, models.Scope{Tag: domain.ScopeIndividual, ID: membership.CustomerID})
	}
	sort.SliceStable(scopes, func(i, j int) bool {
		return scopes[i].Tag.Precedence() > scopes[j].Tag.Precedence()
	})
	return scopes, nil
}
