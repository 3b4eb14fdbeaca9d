package cache

import (
	"context"

	"kulakan/internal/domain"
)

// ProductCache holds product lookups keyed by SKU. A miss is (nil, false, nil).
type ProductCache interface {
	Get(ctx context.Context, sku string) (*domain.Product, bool, error)
	Set(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, sku string) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ domain.Product) error {
	return nil
}

func (NoopProductCache) Delete(_ context.Context, _ string) error {
	return nil
}
