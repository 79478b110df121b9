package inventory

import "github.com/shopspring/decimal"

// costScale matches the NUMERIC(18,4) storage of cost columns.
const costScale = 4

// WeightedAverageCost blends an incoming quantity at inCost into the current
// stock at avgCost:
//
//	((onHand * avgCost) + (inQty * inCost)) / (onHand + inQty)
//
// Negative or empty prior stock does not contribute to the average.
func WeightedAverageCost(onHand, avgCost, inQty, inCost decimal.Decimal) decimal.Decimal {
	if onHand.IsNegative() {
		onHand = decimal.Zero
	}
	total := onHand.Add(inQty)
	if total.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	value := onHand.Mul(avgCost).Add(inQty.Mul(inCost))
	return value.DivRound(total, costScale)
}
