package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func ownedSlot(n int, pid *int) BoxSlot {
	return BoxSlot{ID: n, BoxNumber: n, IsChecked: true, PaymentID: pid}
}

func TestCheckCard(t *testing.T) {
	p1 := 11
	consistent := func() (*CustomerCard, []BoxSlot, []Payment) {
		card := &CustomerCard{
			TotalBoxes:      4,
			TotalAmount:     decimal.NewFromInt(40),
			BoxesChecked:    2,
			AmountPaid:      decimal.NewFromInt(25),
			AmountRemaining: decimal.NewFromInt(15),
			Status:          CardStatusActive,
		}
		slots := []BoxSlot{ownedSlot(1, &p1), ownedSlot(2, &p1), {ID: 3, BoxNumber: 3}, {ID: 4, BoxNumber: 4}}
		payments := []Payment{{ID: p1, AmountPaid: decimal.NewFromInt(25), BoxesChecked: 2}}
		return card, slots, payments
	}

	t.Run("consistent card", func(t *testing.T) {
		card, slots, payments := consistent()
		if got := checkCard(card, slots, payments); len(got) != 0 {
			t.Errorf("expected no breaches, got %+v", got)
		}
	})

	tests := []struct {
		name   string
		mutate func(c *CustomerCard, s []BoxSlot, p []Payment) ([]BoxSlot, []Payment)
		rule   string
	}{
		{"counter drift", func(c *CustomerCard, s []BoxSlot, p []Payment) ([]BoxSlot, []Payment) {
			c.BoxesChecked = 3
			return s, p
		}, RuleBoxCount},
		{"amount drift", func(c *CustomerCard, s []BoxSlot, p []Payment) ([]BoxSlot, []Payment) {
			c.AmountPaid = decimal.NewFromInt(30)
			c.AmountRemaining = decimal.NewFromInt(10)
			return s, p
		}, RuleAmountPaid},
		{"dangling slot reference", func(c *CustomerCard, s []BoxSlot, p []Payment) ([]BoxSlot, []Payment) {
			return s, nil
		}, RuleSlotReference},
		{"status mismatch", func(c *CustomerCard, s []BoxSlot, p []Payment) ([]BoxSlot, []Payment) {
			c.Status = CardStatusCompleted
			return s, p
		}, RuleStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card, slots, payments := consistent()
			slots, payments = tt.mutate(card, slots, payments)
			found := false
			for _, b := range checkCard(card, slots, payments) {
				if b.Rule == tt.rule {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a %s breach", tt.rule)
			}
		})
	}

	t.Run("legacy slots skip the payment sum", func(t *testing.T) {
		card := &CustomerCard{
			TotalBoxes:      2,
			TotalAmount:     decimal.NewFromInt(20),
			BoxesChecked:    1,
			AmountPaid:      decimal.NewFromInt(10),
			AmountRemaining: decimal.NewFromInt(10),
			Status:          CardStatusActive,
		}
		slots := []BoxSlot{ownedSlot(1, nil), {ID: 2, BoxNumber: 2}}
		if got := checkCard(card, slots, nil); len(got) != 0 {
			t.Errorf("expected no breaches for reconstructed card, got %+v", got)
		}
	})
}
