package travel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fieldroute/fieldroute/internal/geo"
)

// countingEstimator wraps SpeedEstimator and counts inner calls.
type countingEstimator struct {
	calls atomic.Int64
	inner Estimator
}

func (c *countingEstimator) Minutes(ctx context.Context, from, to geo.Point) (int, error) {
	c.calls.Add(1)
	return c.inner.Minutes(ctx, from, to)
}

func (c *countingEstimator) Name() string { return "counting" }

func TestCache_HitAvoidsInnerCall(t *testing.T) {
	inner := &countingEstimator{inner: SpeedEstimator{}}
	cache := NewCache(CacheConfig{Inner: inner})

	a := geo.Point{Lat: 30.45, Lon: -91.18}
	b := geo.Point{Lat: 30.50, Lon: -91.10}

	first, err := cache.Minutes(context.Background(), a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.Minutes(context.Background(), a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("cached value mismatch: %d vs %d", first, second)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 inner call, got %d", got)
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", hits, misses)
	}
}

func TestCache_SymmetricKey(t *testing.T) {
	inner := &countingEstimator{inner: SpeedEstimator{}}
	cache := NewCache(CacheConfig{Inner: inner})

	a := geo.Point{Lat: 30.45, Lon: -91.18}
	b := geo.Point{Lat: 30.50, Lon: -91.10}

	if _, err := cache.Minutes(context.Background(), a, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Minutes(context.Background(), b, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := inner.calls.Load(); got != 1 {
		t.Errorf("reverse direction should hit the cache, inner calls = %d", got)
	}
}

func TestCache_IdenticalPointsAreZero(t *testing.T) {
	inner := &countingEstimator{inner: SpeedEstimator{}}
	cache := NewCache(CacheConfig{Inner: inner})

	a := geo.Point{Lat: 30.45, Lon: -91.18}
	minutes, err := cache.Minutes(context.Background(), a, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if minutes != 0 {
		t.Errorf("expected 0 for identical points, got %d", minutes)
	}
	if got := inner.calls.Load(); got != 0 {
		t.Errorf("identical points should not consult inner estimator, calls = %d", got)
	}
}

func TestCache_LRUEviction(t *testing.T) {
	inner := &countingEstimator{inner: SpeedEstimator{}}
	// Tiny capacity: one entry per shard.
	cache := NewCache(CacheConfig{Inner: inner, Capacity: cacheShards})

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		a := geo.Point{Lat: float64(i) * 0.01, Lon: 0}
		b := geo.Point{Lat: float64(i) * 0.01, Lon: 1}
		if _, err := cache.Minutes(ctx, a, b); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if cache.Len() > cacheShards {
		t.Errorf("cache exceeded capacity: len=%d max=%d", cache.Len(), cacheShards)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(CacheConfig{Inner: SpeedEstimator{}})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				a := geo.Point{Lat: float64((seed*i)%50) * 0.1, Lon: 0}
				b := geo.Point{Lat: float64(i%50) * 0.1, Lon: 1}
				if _, err := cache.Minutes(ctx, a, b); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestPairKey_Canonical(t *testing.T) {
	a := geo.Point{Lat: 30.45, Lon: -91.18}
	b := geo.Point{Lat: 35.22, Lon: -80.84}
	if PairKey(a, b) != PairKey(b, a) {
		t.Error("pair key must be order independent")
	}
	if PairKey(a, b) == PairKey(a, a) {
		t.Error("distinct pairs must have distinct keys")
	}
}
