package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageStore holds campaign usage counters guarded by a single mutex.
type UsageStore struct {
	mu    sync.Mutex
	usage map[uuid.UUID]decimal.Decimal
}

func NewUsageStore() *UsageStore {
	return &UsageStore{usage: make(map[uuid.UUID]decimal.Decimal)}
}

// Usage returns zero for campaigns that never granted anything.
func (s *UsageStore) Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[campaignID], nil
}

func (s *UsageStore) CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usage[campaignID].Equal(old) {
		return false, nil
	}
	s.usage[campaignID] = next
	return true, nil
}

// SeedUsage raises the counter to usage; a higher live counter is kept.
func (s *UsageStore) SeedUsage(ctx context.Context, campaignID uuid.UUID, usage decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.usage[campaignID]; !ok || usage.GreaterThan(current) {
		s.usage[campaignID] = usage
	}
	return nil
}
