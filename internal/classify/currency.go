package classify

import "strings"

// DefaultBaseCurrency is the reporting currency all amounts normalize to.
const DefaultBaseCurrency = "QAR"

// RateTable maps an uppercase currency code to its rate into the reporting
// currency.
type RateTable map[string]float64

// Rate returns the conversion rate for a currency, defaulting to 1 when the
// currency is unknown or already the base.
func (t RateTable) Rate(currency, base string) float64 {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || strings.EqualFold(currency, base) {
		return 1
	}
	if rate, ok := t[currency]; ok && rate > 0 {
		return rate
	}
	return 1
}

// BaseAmount converts a native amount into the reporting currency. A
// backend-supplied converted amount wins, then a backend approximation, then
// the locally cached rate.
func BaseAmount(amount float64, currency, base string, converted, approx *float64, rates RateTable) float64 {
	if converted != nil {
		return *converted
	}
	if approx != nil {
		return *approx
	}
	return amount * rates.Rate(currency, base)
}
