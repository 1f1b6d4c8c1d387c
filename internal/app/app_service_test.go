package app

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"boxcard-ledger/internal/core"
	"boxcard-ledger/internal/logger"
	"boxcard-ledger/internal/metrics"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type fakeLedger struct {
	core.LedgerService // unimplemented methods panic

	applyIn   core.ApplyPaymentInput
	applyErr  error
	assignIn  core.AssignCardInput
	salesDate time.Time
	cards     map[int]*core.CustomerCard
}

func (f *fakeLedger) ApplyPayment(_ context.Context, in core.ApplyPaymentInput) (*core.Payment, error) {
	f.applyIn = in
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return &core.Payment{ID: 7, CustomerCardID: in.CardID, AmountPaid: *in.AmountPaid, BoxesChecked: 2}, nil
}

func (f *fakeLedger) AssignCard(_ context.Context, in core.AssignCardInput) (*core.CustomerCard, error) {
	f.assignIn = in
	return &core.CustomerCard{ID: 1, CustomerID: in.CustomerID}, nil
}

func (f *fakeLedger) GetCard(_ context.Context, cardID int) (*core.CustomerCard, error) {
	if c, ok := f.cards[cardID]; ok {
		return c, nil
	}
	return nil, core.NewError(core.KindNotFound, "card %d not found", cardID)
}

func (f *fakeLedger) GetDailySales(_ context.Context, _ int, date time.Time) (decimal.Decimal, error) {
	f.salesDate = date
	return decimal.NewFromInt(20), nil
}

type fakeWorkers struct {
	byName map[string]*core.Worker
}

func (f *fakeWorkers) GetByUsername(_ context.Context, username string) (*core.Worker, error) {
	if w, ok := f.byName[username]; ok {
		return w, nil
	}
	return nil, core.NewError(core.KindNotFound, "worker %q not found", username)
}

func (f *fakeWorkers) GetByID(_ context.Context, id int) (*core.Worker, error) {
	for _, w := range f.byName {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, core.NewError(core.KindNotFound, "worker id=%d not found", id)
}

func newTestService(l *fakeLedger, w *fakeWorkers) (*appService, *metrics.Ledger) {
	m := metrics.NewLedger()
	svc := NewAppService(nil, l, nil, w, m, logger.Nop(), time.UTC).(*appService)
	return svc, m
}

func assertCounter(t *testing.T, m *metrics.Ledger, op, outcome string, want int) {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	line := fmt.Sprintf(`boxcard_ledger_operations_total{operation=%q,outcome=%q} %d`, op, outcome, want)
	if !strings.Contains(rec.Body.String(), line) {
		t.Errorf("metrics missing %s", line)
	}
}

func TestApplyPayment_RejectsInvalidRequestBeforeLedger(t *testing.T) {
	l := &fakeLedger{}
	svc, m := newTestService(l, nil)
	amount := decimal.NewFromInt(25)

	_, err := svc.ApplyPayment(context.Background(), ApplyPaymentRequest{CardID: 0, AmountPaid: &amount, ActorID: 1})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if l.applyIn.CardID != 0 || l.applyIn.ActorID != 0 {
		t.Error("ledger should not be called for an invalid request")
	}

	_, err = svc.ApplyPayment(context.Background(), ApplyPaymentRequest{CardID: 3, AmountPaid: &amount, ActorID: 1, PaymentDate: "14/03/2026"})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error for bad date, got %v", err)
	}

	assertCounter(t, m, "apply_payment", metrics.OutcomeRejected, 2)
}

func TestApplyPayment_PassesThroughAndReloadsCard(t *testing.T) {
	l := &fakeLedger{cards: map[int]*core.CustomerCard{3: {ID: 3, BoxesChecked: 2}}}
	svc, m := newTestService(l, nil)
	amount := decimal.NewFromInt(25)

	res, err := svc.ApplyPayment(context.Background(), ApplyPaymentRequest{
		CardID: 3, AmountPaid: &amount, ActorID: 4, Method: "transfer", PaymentDate: "2026-03-14",
	})
	if err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}
	if res.Payment.ID != 7 || res.Card.ID != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	if l.applyIn.ActorID != 4 || l.applyIn.Method != "transfer" {
		t.Errorf("ledger input = %+v", l.applyIn)
	}
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if l.applyIn.PaymentDate == nil || !l.applyIn.PaymentDate.Equal(want) {
		t.Errorf("payment date = %v, want %v", l.applyIn.PaymentDate, want)
	}
	assertCounter(t, m, "apply_payment", metrics.OutcomeOK, 1)
}

func TestApplyPayment_CountsInfrastructureErrors(t *testing.T) {
	l := &fakeLedger{applyErr: errors.New("failed to begin transaction: connection refused")}
	svc, m := newTestService(l, nil)
	amount := decimal.NewFromInt(25)

	if _, err := svc.ApplyPayment(context.Background(), ApplyPaymentRequest{CardID: 3, AmountPaid: &amount, ActorID: 1}); err == nil {
		t.Fatal("expected error")
	}
	assertCounter(t, m, "apply_payment", metrics.OutcomeError, 1)
}

func TestAssignCard_DefaultsDateToLedger(t *testing.T) {
	l := &fakeLedger{}
	svc, _ := newTestService(l, nil)

	if _, err := svc.AssignCard(context.Background(), AssignCardRequest{CustomerID: 5, CardProductID: 2}); err != nil {
		t.Fatalf("AssignCard: %v", err)
	}
	if l.assignIn.AssignedDate != nil {
		t.Errorf("expected nil assigned date, got %v", l.assignIn.AssignedDate)
	}

	if _, err := svc.AssignCard(context.Background(), AssignCardRequest{CustomerID: 5}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("missing card product: expected validation error, got %v", err)
	}
}

func TestGetDailySales_ParsesDate(t *testing.T) {
	l := &fakeLedger{}
	svc, _ := newTestService(l, nil)

	res, err := svc.GetDailySales(context.Background(), 3, "2026-03-14")
	if err != nil {
		t.Fatalf("GetDailySales: %v", err)
	}
	if res.Date != "2026-03-14" || !res.Total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := svc.GetDailySales(context.Background(), 3, "yesterday"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAuthenticateWorker(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	w := &fakeWorkers{byName: map[string]*core.Worker{
		"ana":    {ID: 1, BranchID: 2, CompanyID: 3, Username: "ana", PasswordHash: string(hash), Role: "collector"},
		"nopass": {ID: 2, Username: "nopass"},
	}}
	svc, _ := newTestService(&fakeLedger{}, w)
	ctx := context.Background()

	session, err := svc.AuthenticateWorker(ctx, "ana", "s3cret")
	if err != nil {
		t.Fatalf("AuthenticateWorker: %v", err)
	}
	if session.WorkerID != 1 || session.BranchID != 2 || session.CompanyID != 3 {
		t.Errorf("unexpected session %+v", session)
	}

	for _, tc := range []struct{ user, pass string }{
		{"ana", "wrong"},
		{"ghost", "s3cret"},
		{"nopass", ""},
	} {
		if _, err := svc.AuthenticateWorker(ctx, tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s/%s: expected invalid credentials, got %v", tc.user, tc.pass, err)
		}
	}
}
