// Package prorate redistributes a transaction's non-itemized residue (tax,
// shipping, discounts) across its classified line items in proportion to
// their pre-proration amounts, reconciling exactly to the cent.
//
// Example usage:
//
//	items := []prorate.Item{
//		{Amount: 20.00, Category: "Home"},
//		{Amount: 30.00, Category: "Groceries"},
//	}
//	adjusted := prorate.ComputeSplits(-50.75, items)
//	// adjusted amounts sum to exactly 5075 cents
package prorate

import "math"

// Item is one split leg: an amount attributed to a category.
type Item struct {
	Name     string
	Amount   float64
	Category string
}

// ComputeSplits adjusts item amounts so they sum, in integer cents, to the
// absolute transaction total. When the items already account for the total
// (residue under a cent) each amount is only rounded; otherwise the residue
// is prorated across items by their share of the item sum. Either way a
// final fix-up moves any rounding drift onto the last item, so the invariant
//
//	Σ Cents(result[i].Amount) == Cents(abs(transactionTotal))
//
// holds for every call. Rounding drift is never surfaced to callers.
func ComputeSplits(transactionTotal float64, items []Item) []Item {
	if len(items) == 0 {
		return nil
	}

	target := math.Abs(transactionTotal)
	targetCents := Cents(target)

	var itemSum float64
	for _, item := range items {
		itemSum += item.Amount
	}

	remainder := target - itemSum

	result := make([]Item, len(items))
	copy(result, items)

	if math.Abs(remainder) < 0.01 || itemSum == 0 {
		for i := range result {
			result[i].Amount = roundToCents(result[i].Amount)
		}
	} else {
		for i := range result {
			share := result[i].Amount / itemSum
			result[i].Amount = roundToCents(result[i].Amount + remainder*share)
		}
	}

	sumCents := int64(0)
	for i := range result {
		sumCents += Cents(result[i].Amount)
	}

	if drift := targetCents - sumCents; drift != 0 {
		last := len(result) - 1
		result[last].Amount = float64(Cents(result[last].Amount)+drift) / 100
	}

	return result
}

// Cents converts a currency amount to integer cents, rounding half away
// from zero. Invariants are checked in cents, never by float equality.
func Cents(amount float64) int64 {
	if amount < 0 {
		return -int64(math.Floor(-amount*100 + 0.5))
	}
	return int64(math.Floor(amount*100 + 0.5))
}

// roundToCents rounds to the nearest cent, half away from zero.
func roundToCents(amount float64) float64 {
	return float64(Cents(amount)) / 100
}
