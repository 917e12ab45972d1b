package database

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// MemoryClassificationRepository keeps the most recent results in a bounded
// LRU keyed by result id. Older results are evicted once capacity is reached.
type MemoryClassificationRepository struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entity.ClassificationResult]
}

// NewMemoryClassificationRepository creates a history holding up to capacity results
func NewMemoryClassificationRepository(capacity int) (*MemoryClassificationRepository, error) {
	cache, err := lru.New[string, *entity.ClassificationResult](capacity)
	if err != nil {
		return nil, common.WrapError(err, common.ErrCodeInvalidInput, "invalid history capacity")
	}
	return &MemoryClassificationRepository{cache: cache}, nil
}

// Save records result, copying it so later mutation by the caller is not observed
func (r *MemoryClassificationRepository) Save(ctx context.Context, result *entity.ClassificationResult) error {
	if result == nil || result.ID == "" {
		return common.ErrInvalidInput("id")
	}
	stored := *result
	stored.Recommendations = append([]string(nil), result.Recommendations...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(stored.ID, &stored)
	return nil
}

// Recent returns up to limit results, newest first
func (r *MemoryClassificationRepository) Recent(ctx context.Context, limit int) ([]*entity.ClassificationResult, error) {
	if limit <= 0 {
		return []*entity.ClassificationResult{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Keys are ordered oldest to newest.
	keys := r.cache.Keys()
	results := make([]*entity.ClassificationResult, 0, common.Clamp(limit, 0, len(keys)))
	for i := len(keys) - 1; i >= 0 && len(results) < limit; i-- {
		if result, ok := r.cache.Peek(keys[i]); ok {
			copied := *result
			results = append(results, &copied)
		}
	}
	return results, nil
}

// Len reports how many results are held
func (r *MemoryClassificationRepository) Len() int {
	return r.cache.Len()
}

// Ping always succeeds
func (r *MemoryClassificationRepository) Ping(ctx context.Context) error {
	return nil
}

// Close drops every stored result
func (r *MemoryClassificationRepository) Close() error {
	r.cache.Purge()
	return nil
}
