package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Slot selection rules. Apply and adjust-increase take the lowest-numbered unchecked
// slots across the whole card; adjust-decrease releases the highest-numbered slots
// owned by the payment being adjusted. Box order is later used to colour slots by
// payment, so both rules are fixed.

// LowestUnchecked returns the n lowest-numbered unchecked slots in ascending order.
func LowestUnchecked(slots []BoxSlot, n int) ([]BoxSlot, error) {
	sorted := sortedByNumber(slots)
	picked := make([]BoxSlot, 0, n)
	for _, s := range sorted {
		if len(picked) == n {
			break
		}
		if !s.IsChecked {
			picked = append(picked, s)
		}
	}
	if len(picked) < n {
		return nil, remainingConflict(n, len(picked))
	}
	return picked, nil
}

// HighestOwnedBy returns the n highest-numbered checked slots owned by paymentID,
// in descending order.
func HighestOwnedBy(slots []BoxSlot, paymentID, n int) ([]BoxSlot, error) {
	owned := OwnedBy(slots, paymentID)
	if len(owned) < n {
		return nil, conflictf("payment %d owns %d boxes, cannot release %d", paymentID, len(owned), n)
	}
	picked := make([]BoxSlot, 0, n)
	for i := len(owned) - 1; i >= 0 && len(picked) < n; i-- {
		picked = append(picked, owned[i])
	}
	return picked, nil
}

// OwnedBy returns the checked slots stamped with paymentID, ascending.
func OwnedBy(slots []BoxSlot, paymentID int) []BoxSlot {
	var out []BoxSlot
	for _, s := range sortedByNumber(slots) {
		if s.IsChecked && s.PaymentID != nil && *s.PaymentID == paymentID {
			out = append(out, s)
		}
	}
	return out
}

// CountChecked counts checked slots.
func CountChecked(slots []BoxSlot) int {
	n := 0
	for _, s := range slots {
		if s.IsChecked {
			n++
		}
	}
	return n
}

func sortedByNumber(slots []BoxSlot) []BoxSlot {
	out := make([]BoxSlot, len(slots))
	copy(out, slots)
	sort.Slice(out, func(i, j int) bool { return out[i].BoxNumber < out[j].BoxNumber })
	return out
}

func slotIDs(slots []BoxSlot) []int {
	ids := make([]int, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return ids
}

// Resolution is the outcome of turning a payment request into a box count and amount.
type Resolution struct {
	Boxes  int
	Amount decimal.Decimal
}

// ResolveBoxCount decides how many boxes a payment checks and what amount it records.
//
// In amount mode the caller's amount is recorded as given and boxes are
// floor(amount / box_price). In boxes mode the amount is boxes * box_price rounded
// to cents; a payment that checks every remaining box records exactly what is still
// owed, so a completed card never carries a rounding residue.
func ResolveBoxCount(card *CustomerCard, amount *decimal.Decimal, boxes *int) (Resolution, error) {
	if (amount == nil) == (boxes == nil) {
		return Resolution{}, validationf("exactly one of amount_paid or boxes_to_check is required")
	}
	if amount != nil && !amount.IsPositive() {
		return Resolution{}, validationf("amount_paid must be positive")
	}
	if amount != nil && !isCents(*amount) {
		return Resolution{}, validationf("amount_paid %s has more than two decimal places", amount.String())
	}
	if !card.BoxPrice.IsPositive() {
		return Resolution{}, invariantf("card %d has non-positive box price %s", card.ID, card.BoxPrice)
	}

	var res Resolution
	if amount != nil {
		res.Boxes = int(amount.Div(card.BoxPrice).Floor().IntPart())
		res.Amount = *amount
	} else {
		res.Boxes = *boxes
	}

	if res.Boxes <= 0 {
		if amount != nil {
			return Resolution{}, validationf("invalid number of boxes: amount %s is below the box price %s", amount.StringFixed(2), card.BoxPrice.StringFixed(4))
		}
		return Resolution{}, validationf("invalid number of boxes: boxes_to_check must be positive")
	}
	remaining := card.BoxesRemaining()
	if res.Boxes > remaining {
		return Resolution{}, remainingConflict(res.Boxes, remaining)
	}

	if boxes != nil {
		if res.Boxes == remaining {
			res.Amount = card.AmountRemaining
		} else {
			res.Amount = decimal.Min(
				card.BoxPrice.Mul(decimal.NewFromInt(int64(res.Boxes))).Round(2),
				card.AmountRemaining,
			)
		}
		if !res.Amount.IsPositive() {
			return Resolution{}, conflictf("card %d has nothing left to pay", card.ID)
		}
	}
	if res.Amount.GreaterThan(card.AmountRemaining) {
		return Resolution{}, conflictf("amount %s exceeds amount remaining %s", res.Amount, card.AmountRemaining)
	}
	return res, nil
}

// Adjustment is the signed outcome of amending a payment's amount.
type Adjustment struct {
	Diff     decimal.Decimal
	BoxDiff  int
	Increase bool
}

// ResolveAdjustment computes the amount and box shift for changing a payment to newAmount.
func ResolveAdjustment(card *CustomerCard, p *Payment, newAmount decimal.Decimal) (Adjustment, error) {
	if !newAmount.IsPositive() {
		return Adjustment{}, validationf("new_amount must be positive")
	}
	if !isCents(newAmount) {
		return Adjustment{}, validationf("new_amount %s has more than two decimal places", newAmount)
	}
	if !card.BoxPrice.IsPositive() {
		return Adjustment{}, invariantf("card %d has non-positive box price %s", card.ID, card.BoxPrice)
	}
	diff := newAmount.Sub(p.AmountPaid)
	if diff.IsZero() {
		return Adjustment{}, invariantf("adjustment to payment %d does not change the amount", p.ID)
	}

	adj := Adjustment{
		Diff:     diff,
		BoxDiff:  int(diff.Abs().Div(card.BoxPrice).Floor().IntPart()),
		Increase: diff.IsPositive(),
	}
	if adj.Increase {
		if remaining := card.BoxesRemaining(); adj.BoxDiff > remaining {
			return Adjustment{}, remainingConflict(adj.BoxDiff, remaining)
		}
		if diff.GreaterThan(card.AmountRemaining) {
			return Adjustment{}, conflictf("increase %s exceeds amount remaining %s", diff, card.AmountRemaining)
		}
	} else if adj.BoxDiff > p.BoxesChecked {
		return Adjustment{}, conflictf("payment %d checked %d boxes, cannot release %d", p.ID, p.BoxesChecked, adj.BoxDiff)
	}
	return adj, nil
}

// isCents reports whether d fits the two-decimal money columns without rounding.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
