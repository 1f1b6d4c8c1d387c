package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"boxcard-ledger/internal/app"
	"boxcard-ledger/internal/core"

	"github.com/shopspring/decimal"
)

type fakeService struct {
	app.ApplicationService // unimplemented methods panic

	applyReq  app.ApplyPaymentRequest
	adjustReq app.AdjustPaymentRequest
	totalsFor string
	breaches  []core.InvariantBreach
}

func card(id int) *core.CustomerCard {
	return &core.CustomerCard{
		ID: id, CustomerID: 1, CardProductID: 1, TotalBoxes: 10, BoxesChecked: 3,
		BoxPrice: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(100),
		AmountPaid: decimal.NewFromInt(30), AmountRemaining: decimal.NewFromInt(70),
		Status: core.CardStatusActive,
	}
}

func (f *fakeService) ApplyPayment(_ context.Context, req app.ApplyPaymentRequest) (*app.PaymentResult, error) {
	f.applyReq = req
	return &app.PaymentResult{
		Payment: &core.Payment{ID: 5, AmountPaid: decimal.NewFromInt(30), BoxesChecked: 3, ReceiptNumber: "RC-B1-2026-00005"},
		Card:    card(req.CardID),
	}, nil
}

func (f *fakeService) AdjustPayment(_ context.Context, req app.AdjustPaymentRequest) (*app.PaymentResult, error) {
	f.adjustReq = req
	return &app.PaymentResult{Payment: &core.Payment{ID: req.PaymentID, AmountPaid: req.NewAmount}, Card: card(1)}, nil
}

func (f *fakeService) VerifyCard(_ context.Context, cardID int) (*app.VerifyResult, error) {
	return &app.VerifyResult{CardID: cardID, Consistent: len(f.breaches) == 0, Breaches: f.breaches}, nil
}

func (f *fakeService) GetBranchTotals(_ context.Context, companyID int, date string) (*app.BranchTotalsResult, error) {
	f.totalsFor = date
	return &app.BranchTotalsResult{CompanyID: companyID, Date: date}, nil
}

func TestPay_FlagsAfterPositional(t *testing.T) {
	svc := &fakeService{}
	var out bytes.Buffer

	err := Run(context.Background(), svc, []string{"pay", "3", "--amount", "30", "--actor", "2", "--date", "2026-03-14"}, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := svc.applyReq
	if req.CardID != 3 || req.ActorID != 2 || req.PaymentDate != "2026-03-14" {
		t.Errorf("request = %+v", req)
	}
	if req.AmountPaid == nil || !req.AmountPaid.Equal(decimal.NewFromInt(30)) || req.BoxesToCheck != nil {
		t.Errorf("expected amount mode, got amount=%v boxes=%v", req.AmountPaid, req.BoxesToCheck)
	}
	if !strings.Contains(out.String(), "RC-B1-2026-00005") {
		t.Errorf("output missing receipt:\n%s", out.String())
	}
}

func TestPay_BoxesModeAndEnvActor(t *testing.T) {
	t.Setenv("LEDGER_ACTOR_ID", "7")
	svc := &fakeService{}

	if err := Run(context.Background(), svc, []string{"pay", "--boxes", "2", "3"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if svc.applyReq.ActorID != 7 {
		t.Errorf("actor = %d, want 7", svc.applyReq.ActorID)
	}
	if svc.applyReq.BoxesToCheck == nil || *svc.applyReq.BoxesToCheck != 2 || svc.applyReq.AmountPaid != nil {
		t.Errorf("expected boxes mode, got %+v", svc.applyReq)
	}
}

func TestAdjust(t *testing.T) {
	svc := &fakeService{}
	if err := Run(context.Background(), svc, []string{"adjust", "12", "40.50", "--notes", "recount", "--actor", "1"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if svc.adjustReq.PaymentID != 12 || !svc.adjustReq.NewAmount.Equal(decimal.RequireFromString("40.50")) || svc.adjustReq.Notes != "recount" {
		t.Errorf("request = %+v", svc.adjustReq)
	}
}

func TestVerify_ReportsBreaches(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), &fakeService{}, []string{"verify", "3"}, &out); err != nil {
		t.Fatalf("consistent card: %v", err)
	}

	out.Reset()
	svc := &fakeService{breaches: []core.InvariantBreach{{Rule: core.RuleBoxCount, Detail: "boxes_checked=4 but 3 checked slots"}}}
	err := Run(context.Background(), svc, []string{"verify", "3"}, &out)
	if !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
	if !strings.Contains(out.String(), "boxes_checked=4") {
		t.Errorf("breach detail not printed:\n%s", out.String())
	}
}

func TestTotals(t *testing.T) {
	svc := &fakeService{}
	var out bytes.Buffer
	if err := Run(context.Background(), svc, []string{"totals", "branches", "1", "--date", "2026-03-14"}, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if svc.totalsFor != "2026-03-14" || !strings.Contains(out.String(), `"company_id": 1`) {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestUsageErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"frobnicate"},
		{"pay"},
		{"pay", "abc"},
		{"adjust", "1"},
		{"pay", "1", "--amount", "ten"},
		{"totals", "planets", "1"},
		{"boxes", "1", "--unknown"},
	}
	for _, args := range cases {
		if err := Run(context.Background(), &fakeService{}, args, &bytes.Buffer{}); !errors.Is(err, ErrUsage) {
			t.Errorf("%v: expected ErrUsage, got %v", args, err)
		}
	}
}
