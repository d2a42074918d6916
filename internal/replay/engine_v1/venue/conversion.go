package venue

import "github.com/rxtech-lab/argo-replay/internal/types"

// ConversionStrategy converts a margin amount denominated in an
// instrument's quote currency toward the account currency. The default
// implementation is a coarse category-based approximation, kept pluggable
// so callers needing exact FX conversion can supply their own.
type ConversionStrategy interface {
	RateToAccount(category types.CurrencyCategory) float64
}

// CategoryRates maps quote-currency categories to approximate conversion
// rates. Categories without an entry convert at 1.
type CategoryRates map[types.CurrencyCategory]float64

// RateToAccount implements ConversionStrategy.
func (r CategoryRates) RateToAccount(category types.CurrencyCategory) float64 {
	if rate, ok := r[category]; ok && rate > 0 {
		return rate
	}

	return 1
}

// DefaultCategoryRates returns the stock approximation for a USD-like
// account currency. The rates are order-of-magnitude correct, not market
// rates; margin computed through them is an estimate.
func DefaultCategoryRates() CategoryRates {
	return CategoryRates{
		types.CurrencyCategoryAccount: 1,
		types.CurrencyCategoryMajor:   1.1,
		types.CurrencyCategoryJPY:     0.0095,
		types.CurrencyCategoryExotic:  0.25,
		types.CurrencyCategoryCrypto:  1,
	}
}
