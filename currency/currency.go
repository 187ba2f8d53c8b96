// Package currency converts amounts between the storage currency and the
// currencies users enter and display amounts in. Live rates come from an
// external provider; a fixed fallback table keeps conversion working when the
// provider is unreachable.
package currency

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Storage is the currency persisted transaction amounts are denominated in.
const Storage = "PLN"

// Supported is the currency set offered to users and requested from the rate
// provider.
var Supported = []string{"PLN", "USD", "EUR", "GBP", "CZK"}

var (
	ErrRateFetch       = errors.New("fetching exchange rates failed")
	ErrUnknownCurrency = errors.New("unknown currency")
)

// fallbackRates maps a currency code to how many storage-currency units one
// unit of it is worth. Approximate, used only when live rates are unavailable.
var fallbackRates = map[string]decimal.Decimal{
	"PLN": decimal.NewFromInt(1),
	"USD": decimal.NewFromInt(4),
	"EUR": decimal.RequireFromString("4.35"),
	"GBP": decimal.NewFromInt(5),
	"CZK": decimal.RequireFromString("0.175"),
}

// IsSupported reports whether code is in the supported currency set.
func IsSupported(code string) bool {
	for _, c := range Supported {
		if c == code {
			return true
		}
	}
	return false
}
