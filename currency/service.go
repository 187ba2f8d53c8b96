package currency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// Table is one fetched set of exchange rates anchored to Base. Rates[code] is
// units of code per one Base unit. Tables are replaced wholesale, never
// patched.
type Table struct {
	Base      string
	Rates     map[string]decimal.Decimal
	FetchedAt time.Time
}

func (t *Table) rate(code string) (decimal.Decimal, bool) {
	if code == t.Base {
		return decimal.NewFromInt(1), true
	}
	r, ok := t.Rates[code]
	return r, ok
}

// RateProvider fetches live rates. *Client is the production implementation.
type RateProvider interface {
	Latest(ctx context.Context, base string, currencies []string) (map[string]decimal.Decimal, error)
}

// Service caches one rate table per base currency and converts amounts,
// falling back to the fixed table whenever live rates are not usable.
type Service struct {
	provider RateProvider
	cache    *gocache.Cache
	ttl      time.Duration
}

// NewService builds a Service whose cached tables expire after ttl. The
// original refetched ad hoc with no expiry; an explicit TTL bounds how stale a
// displayed balance can get.
func NewService(provider RateProvider, ttl time.Duration) *Service {
	return &Service{
		provider: provider,
		cache:    gocache.New(ttl, 2*ttl),
		ttl:      ttl,
	}
}

// Rates returns the cached table for base, fetching one if the cache is empty
// or expired. A failed fetch with nothing cached returns a wrapped
// ErrRateFetch; callers are expected to convert via the fallback table then.
func (s *Service) Rates(ctx context.Context, base string) (*Table, error) {
	if cached, ok := s.cache.Get(base); ok {
		return cached.(*Table), nil
	}
	return s.Refresh(ctx, base)
}

// Refresh fetches a fresh table for base and swaps it into the cache. The
// cached table is only ever replaced on success, so a failed or cancelled
// fetch leaves the previous table intact.
func (s *Service) Refresh(ctx context.Context, base string) (*Table, error) {
	rates, err := s.provider.Latest(ctx, base, Supported)
	if err != nil {
		return nil, fmt.Errorf("refreshing rate table: %w", err)
	}

	table := &Table{
		Base:      base,
		Rates:     rates,
		FetchedAt: time.Now().UTC(),
	}
	s.cache.Set(base, table, s.ttl)
	return table, nil
}

// Convert translates amount from one currency to another using the cached
// table when possible. Fetch failures are recovered via the fallback table and
// never surfaced; only ErrUnknownCurrency reaches the caller, with the amount
// returned unchanged.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	table, err := s.Rates(ctx, Storage)
	if err != nil {
		slog.Warn("live rates unavailable, using fallback table", "error", err)
		table = nil
	}
	return Convert(amount, from, to, table)
}

// Convert is the pure conversion: cross rate through the table's base when the
// table covers both currencies, otherwise the fallback cross rate through the
// storage currency, otherwise the amount unchanged plus ErrUnknownCurrency.
func Convert(amount decimal.Decimal, from, to string, table *Table) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	if table != nil {
		fromRate, fromOK := table.rate(from)
		toRate, toOK := table.rate(to)
		if fromOK && toOK && !fromRate.IsZero() {
			// amount/fromRate is in the base currency, toRate takes it on.
			return amount.Div(fromRate).Mul(toRate), nil
		}
	}

	fromRate, fromOK := fallbackRates[from]
	toRate, toOK := fallbackRates[to]
	if fromOK && toOK {
		return amount.Mul(fromRate).Div(toRate), nil
	}

	return amount, fmt.Errorf("%w: cannot convert %s to %s", ErrUnknownCurrency, from, to)
}
