package cache

import (
	"context"
	"time"

	"opentill/backend/internal/domain"
)

// PromotionCache holds short-lived snapshots of the active promotion
// catalog so cart evaluation does not hit the repository on every request.
// Reads are snapshot-consistent, not serializable against promotion edits.
type PromotionCache interface {
	Get(ctx context.Context, key string) ([]domain.Promotion, bool, error)
	Set(ctx context.Context, key string, catalog []domain.Promotion, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopPromotionCache struct{}

func (NoopPromotionCache) Get(context.Context, string) ([]domain.Promotion, bool, error) {
	return nil, false, nil
}

func (NoopPromotionCache) Set(context.Context, string, []domain.Promotion, time.Duration) error {
	return nil
}

func (NoopPromotionCache) Invalidate(context.Context, string) error {
	return nil
}
