package cache

import (
	"context"
	"time"

	"inventaris/backend/internal/domain"
)

// LowStockCache holds the computed low-stock report between stock mutations.
// Implementations must treat Invalidate as best-effort: a failed invalidation
// only means a slightly stale report until the TTL expires.
type LowStockCache interface {
	Get(ctx context.Context) (*domain.LowStockReport, bool, error)
	Set(ctx context.Context, report *domain.LowStockReport, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopLowStockCache struct{}

func (NoopLowStockCache) Get(_ context.Context) (*domain.LowStockReport, bool, error) {
	return nil, false, nil
}

func (NoopLowStockCache) Set(_ context.Context, _ *domain.LowStockReport, _ time.Duration) error {
	return nil
}

func (NoopLowStockCache) Invalidate(_ context.Context) error {
	return nil
}
