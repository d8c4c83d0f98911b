package fares

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTierForStationCount(t *testing.T) {
	cases := []struct {
		count int
		want  string
	}{
		{-1, TierSameStation},
		{0, TierSameStation},
		{1, TierShort},
		{9, TierShort},
		{10, TierMedium},
		{16, TierMedium},
		{17, TierLong},
		{23, TierLong},
		{24, TierExtended},
		{100, TierExtended},
	}
	for _, c := range cases {
		if got := TierForStationCount(c.count); got != c.want {
			t.Errorf("TierForStationCount(%d) = %q, want %q", c.count, got, c.want)
		}
	}
}

func TestTierPricesMonotonic(t *testing.T) {
	prices := StaticPrices{
		TierSameStation: 300,
		TierShort:       500,
		TierMedium:      700,
		TierLong:        1000,
		TierExtended:    1500,
	}
	ctx := context.Background()
	var prev int64 = -1
	for count := 0; count <= 30; count++ {
		price, err := prices.PriceOf(ctx, TierForStationCount(count))
		if err != nil {
			t.Fatalf("price for count %d: %v", count, err)
		}
		if price < prev {
			t.Fatalf("price decreased at count %d: %d < %d", count, price, prev)
		}
		prev = price
	}
}

type countingPrices struct {
	table StaticPrices
	calls int
	fail  bool
}

func (c *countingPrices) PriceOf(ctx context.Context, tier string) (int64, error) {
	c.calls++
	if c.fail {
		return 0, errors.New("datastore down")
	}
	return c.table.PriceOf(ctx, tier)
}

func TestCachedPricesAvoidsRepeatLookups(t *testing.T) {
	src := &countingPrices{table: StaticPrices{TierShort: 500}}
	cache := NewCachedPrices(src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		price, err := cache.PriceOf(ctx, TierShort)
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if price != 500 {
			t.Fatalf("expected 500, got %d", price)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source lookup, got %d", src.calls)
	}
}

func TestCachedPricesServesStaleOnSourceError(t *testing.T) {
	src := &countingPrices{table: StaticPrices{TierShort: 500}}
	cache := NewCachedPrices(src, time.Nanosecond)
	ctx := context.Background()

	if _, err := cache.PriceOf(ctx, TierShort); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	time.Sleep(time.Millisecond)
	src.fail = true

	price, err := cache.PriceOf(ctx, TierShort)
	if err != nil {
		t.Fatalf("expected stale value, got error %v", err)
	}
	if price != 500 {
		t.Fatalf("expected stale 500, got %d", price)
	}
}

func TestCachedPricesUnknownTier(t *testing.T) {
	src := &countingPrices{table: StaticPrices{}}
	cache := NewCachedPrices(src, time.Minute)
	if _, err := cache.PriceOf(context.Background(), "Imaginary"); !errors.Is(err, ErrTierNotFound) {
		t.Fatalf("expected ErrTierNotFound, got %v", err)
	}
}
