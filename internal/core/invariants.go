package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// InvariantBreach describes one way a card's stored state disagrees with its slots
// or payments.
type InvariantBreach struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

const (
	RuleBoxCount      = "boxes_checked"
	RuleAmountPaid    = "amount_paid"
	RuleBounds        = "bounds"
	RuleStatus        = "status"
	RuleSlotReference = "slot_reference"
)

// VerifyCard reads the card, its slots and live payments and reports every mismatch.
// Cards rebuilt from legacy progress carry checked slots without a payment; for those
// the payment-sum checks only cover the slots that do have one.
func (s *ledgerService) VerifyCard(ctx context.Context, cardID int) ([]InvariantBreach, error) {
	card, err := getCard(ctx, s.pool, cardID)
	if err != nil {
		return nil, err
	}
	slots, err := loadSlots(ctx, s.pool, cardID)
	if err != nil {
		return nil, err
	}
	payments, err := listPayments(ctx, s.pool, cardID)
	if err != nil {
		return nil, err
	}
	return checkCard(card, slots, payments), nil
}

func checkCard(card *CustomerCard, slots []BoxSlot, payments []Payment) []InvariantBreach {
	var out []InvariantBreach
	add := func(rule, format string, args ...any) {
		out = append(out, InvariantBreach{Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	live := make(map[int]bool, len(payments))
	paidBoxes := 0
	paidAmount := decimal.Zero
	for _, p := range payments {
		live[p.ID] = true
		paidBoxes += p.BoxesChecked
		paidAmount = paidAmount.Add(p.AmountPaid)
	}

	checked, legacy := 0, 0
	owned := make(map[int]int)
	for _, s := range slots {
		if !s.IsChecked {
			if s.PaymentID != nil {
				add(RuleSlotReference, "unchecked box %d references payment %d", s.BoxNumber, *s.PaymentID)
			}
			continue
		}
		checked++
		switch {
		case s.PaymentID == nil:
			legacy++
		case !live[*s.PaymentID]:
			add(RuleSlotReference, "box %d references missing payment %d", s.BoxNumber, *s.PaymentID)
		default:
			owned[*s.PaymentID]++
		}
	}

	if len(slots) != card.TotalBoxes {
		add(RuleBounds, "card has %d slots for %d boxes", len(slots), card.TotalBoxes)
	}
	if card.BoxesChecked != checked {
		add(RuleBoxCount, "boxes_checked %d but %d slots checked", card.BoxesChecked, checked)
	}
	if card.BoxesChecked != paidBoxes+legacy {
		add(RuleBoxCount, "boxes_checked %d but payments account for %d", card.BoxesChecked, paidBoxes+legacy)
	}
	for _, p := range payments {
		if owned[p.ID] != p.BoxesChecked {
			add(RuleBoxCount, "payment %d records %d boxes but owns %d slots", p.ID, p.BoxesChecked, owned[p.ID])
		}
	}

	if legacy == 0 && !card.AmountPaid.Equal(paidAmount) {
		add(RuleAmountPaid, "amount_paid %s but payments sum to %s", card.AmountPaid, paidAmount)
	}
	if !card.AmountRemaining.Equal(card.TotalAmount.Sub(card.AmountPaid)) {
		add(RuleAmountPaid, "amount_remaining %s is not %s - %s", card.AmountRemaining, card.TotalAmount, card.AmountPaid)
	}
	if card.AmountRemaining.IsNegative() {
		add(RuleAmountPaid, "amount_remaining %s is negative", card.AmountRemaining)
	}

	if card.BoxesChecked > card.TotalBoxes {
		add(RuleBounds, "boxes_checked %d exceeds total %d", card.BoxesChecked, card.TotalBoxes)
	}
	if want := statusFor(card.BoxesChecked, card.TotalBoxes); card.Status != want {
		add(RuleStatus, "status %s with %d of %d boxes checked", card.Status, card.BoxesChecked, card.TotalBoxes)
	}
	return out
}
