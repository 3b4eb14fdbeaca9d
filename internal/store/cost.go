package store

import "github.com/shopspring/decimal"

// WeightedCost is the moving weighted average cost after receiving
// incomingQty units at incomingCost on top of oldQty units at oldCost. The
// result is rounded to two decimal places.
func WeightedCost(oldCost, oldQty, incomingCost, incomingQty decimal.Decimal) decimal.Decimal {
	if !incomingQty.IsPositive() || incomingCost.IsNegative() {
		return oldCost
	}
	if !oldQty.IsPositive() || !oldCost.IsPositive() {
		return incomingCost
	}
	totalQty := oldQty.Add(incomingQty)
	totalValue := oldCost.Mul(oldQty).Add(incomingCost.Mul(incomingQty))
	return totalValue.DivRound(totalQty, 2)
}
