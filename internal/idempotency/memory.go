package idempotency

import (
	"context"
	"sync"
)

// MemoryKeys keeps keys in process memory for single-instance deployments and tests.
type MemoryKeys struct {
	mu   sync.Mutex
	keys map[string]Record
}

func NewMemoryKeys() *MemoryKeys {
	return &MemoryKeys{keys: make(map[string]Record)}
}

func (k *MemoryKeys) Get(ctx context.Context, key string) (*Record, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	rec, ok := k.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Body = append([]byte(nil), rec.Body...)
	rec.ServedBy = "memory"
	return &rec, nil
}

func (k *MemoryKeys) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[key]; ok {
		return false, nil
	}
	k.keys[key] = Record{Key: key, RequestHash: requestHash, InProgress: true}
	return true, nil
}

func (k *MemoryKeys) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	rec, ok := k.keys[key]
	if !ok || rec.RequestHash != requestHash {
		return nil, ErrNotFound
	}
	rec.Status = status
	rec.Body = append([]byte(nil), body...)
	rec.ContentType = contentType
	rec.InProgress = false
	k.keys[key] = rec
	out := rec
	out.ServedBy = "memory"
	return &out, nil
}
