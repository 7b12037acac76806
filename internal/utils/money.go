package utils

import "math"

// RoundMoney rounds to whole cents.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// PercentOf returns pct% of amount rounded to cents.
func PercentOf(amount, pct float64) float64 {
	return RoundMoney(amount * pct / 100)
}
