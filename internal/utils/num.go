package utils

import "github.com/shopspring/decimal"

// Trunc floors value to the given number of decimal places. Exchange rates
// and amounts round down, never up: a price target of 0.123456789 must become
// 0.12345678, and a negative adjustment must not shrink toward zero.
func Trunc(value float64, places int32) float64 {
	pow := decimal.New(1, places)
	f, _ := decimal.NewFromFloat(value).Mul(pow).Floor().Div(pow).Float64()
	return f
}
