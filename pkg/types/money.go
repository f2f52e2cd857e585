package types

import "github.com/shopspring/decimal"

// moneyPlaces is the rounding applied to every computed amount.
const moneyPlaces = 2

// SumMoney adds amounts in decimal and rounds to cents.
func SumMoney(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.Round(moneyPlaces).InexactFloat64()
}

// SubMoney returns a - b rounded to cents.
func SubMoney(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(moneyPlaces).InexactFloat64()
}
