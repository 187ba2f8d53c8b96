package currency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (s *stubProvider) Latest(ctx context.Context, base string, currencies []string) (map[string]decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rates, nil
}

// plnTable mimics a provider response for base PLN: units of each currency per
// one PLN.
func plnTable() *Table {
	return &Table{
		Base: Storage,
		Rates: map[string]decimal.Decimal{
			"USD": decimal.RequireFromString("0.25"),
			"EUR": decimal.RequireFromString("0.23"),
			"GBP": decimal.RequireFromString("0.20"),
			"CZK": decimal.RequireFromString("5.7"),
		},
		FetchedAt: time.Now(),
	}
}

func TestConvertIdentity(t *testing.T) {
	amount := decimal.RequireFromString("123.456")
	for _, code := range append([]string{"XYZ"}, Supported...) {
		got, err := Convert(amount, code, code, nil)
		require.NoError(t, err, code)
		assert.True(t, got.Equal(amount), "identity must hold exactly for %s", code)
	}
}

func TestConvertWithLiveTable(t *testing.T) {
	tests := []struct {
		name         string
		amount, want string
		from, to     string
	}{
		{name: "USD to PLN", amount: "100", from: "USD", to: "PLN", want: "400"},
		{name: "PLN to USD", amount: "400", from: "PLN", to: "USD", want: "100"},
		{name: "USD to EUR through the anchor", amount: "100", from: "USD", to: "EUR", want: "92"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(decimal.RequireFromString(tt.amount), tt.from, tt.to, plnTable())
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestConvertFallback(t *testing.T) {
	tests := []struct {
		name         string
		amount, want string
		from, to     string
	}{
		{name: "USD to PLN", amount: "100", from: "USD", to: "PLN", want: "400"},
		{name: "PLN to USD", amount: "400", from: "PLN", to: "USD", want: "100"},
		{name: "EUR to PLN", amount: "2", from: "EUR", to: "PLN", want: "8.7"},
		{name: "GBP to PLN", amount: "1", from: "GBP", to: "PLN", want: "5"},
		{name: "CZK to PLN", amount: "1000", from: "CZK", to: "PLN", want: "175"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// nil table forces the fallback path
			got, err := Convert(decimal.RequireFromString(tt.amount), tt.from, tt.to, nil)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestConvertRoundTrip(t *testing.T) {
	tolerance := decimal.RequireFromString("0.000001")
	amount := decimal.RequireFromString("123.45")
	table := plnTable()

	for _, from := range Supported {
		for _, to := range Supported {
			there, err := Convert(amount, from, to, table)
			require.NoError(t, err)
			back, err := Convert(there, to, from, table)
			require.NoError(t, err)

			diff := back.Sub(amount).Abs()
			assert.True(t, diff.LessThanOrEqual(tolerance), "%s->%s->%s drifted by %s", from, to, from, diff)
		}
	}
}

func TestConvertUnknownCurrency(t *testing.T) {
	amount := decimal.NewFromInt(42)

	got, err := Convert(amount, "XYZ", "PLN", plnTable())
	assert.ErrorIs(t, err, ErrUnknownCurrency)
	assert.True(t, got.Equal(amount), "amount must come back unchanged")

	got, err = Convert(amount, "PLN", "XYZ", nil)
	assert.ErrorIs(t, err, ErrUnknownCurrency)
	assert.True(t, got.Equal(amount))
}

func TestServiceFallsBackWhenFetchFails(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	service := NewService(provider, time.Minute)

	got, err := service.Convert(context.Background(), decimal.NewFromInt(100), "USD", "PLN")
	require.NoError(t, err, "fetch failure must not surface from Convert")
	assert.True(t, got.Equal(decimal.NewFromInt(400)))
}

func TestServiceCachesTable(t *testing.T) {
	provider := &stubProvider{rates: plnTable().Rates}
	service := NewService(provider, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := service.Convert(ctx, decimal.NewFromInt(10), "USD", "PLN")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, provider.calls, "repeated conversions must reuse the cached table")
}

func TestServiceKeepsCachedTableOnFailedRefresh(t *testing.T) {
	provider := &stubProvider{rates: plnTable().Rates}
	service := NewService(provider, time.Minute)
	ctx := context.Background()

	table, err := service.Rates(ctx, Storage)
	require.NoError(t, err)

	provider.err = fmt.Errorf("%w: gateway timeout", ErrRateFetch)
	_, err = service.Refresh(ctx, Storage)
	require.ErrorIs(t, err, ErrRateFetch)

	cached, err := service.Rates(ctx, Storage)
	require.NoError(t, err)
	assert.Equal(t, table, cached, "failed refresh must not clobber the cached table")
}

func TestServiceConvertIdentitySkipsFetch(t *testing.T) {
	provider := &stubProvider{err: errors.New("unreachable")}
	service := NewService(provider, time.Minute)

	amount := decimal.RequireFromString("9.99")
	got, err := service.Convert(context.Background(), amount, "PLN", "PLN")
	require.NoError(t, err)
	assert.True(t, got.Equal(amount))
	assert.Zero(t, provider.calls)
}
