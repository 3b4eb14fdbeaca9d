package cache

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"kulakan/internal/domain"
)

func TestRedisProductCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("KULAKAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KULAKAN_TEST_REDIS_ADDR not set")
	}

	c := NewRedisProductCache(redis.NewClient(&redis.Options{Addr: addr}), 30*time.Second)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	sku := "TEST-" + time.Now().Format("150405.000000")
	product := domain.Product{
		SKU:              sku,
		Name:             "Beras Premium",
		BaseUnit:         "Kg",
		PurchaseUnit:     "Karung",
		ConversionToUnit: decimal.NewFromInt(50),
		Price:            decimal.NewFromInt(15000),
	}
	if err := c.Set(ctx, product); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, sku)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if !got.ConversionToUnit.Equal(product.ConversionToUnit) || got.PurchaseUnit != "Karung" {
		t.Fatalf("unexpected cached product %+v", got)
	}

	if err := c.Delete(ctx, sku); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, sku); ok {
		t.Fatalf("expected miss after delete")
	}
}
