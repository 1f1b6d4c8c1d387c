package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"boxcard-ledger/internal/app"
	"boxcard-ledger/internal/core"
	"boxcard-ledger/internal/logger"
	"boxcard-ledger/internal/metrics"

	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

type fakeService struct {
	app.ApplicationService // unimplemented methods panic

	pingErr    error
	cardErr    error
	applyReq   app.ApplyPaymentRequest
	adjustReq  app.AdjustPaymentRequest
	reverseReq app.ReversePaymentRequest
	salesDate  string
}

func (f *fakeService) Ping(context.Context) error { return f.pingErr }

func (f *fakeService) AuthenticateWorker(_ context.Context, username, password string) (*app.WorkerSession, error) {
	if username == "ana" && password == "s3cret" {
		return &app.WorkerSession{WorkerID: 4, BranchID: 1, CompanyID: 1, Username: "ana", Role: "collector"}, nil
	}
	return nil, app.ErrInvalidCredentials
}

func (f *fakeService) GetWorker(_ context.Context, workerID int) (*app.WorkerResult, error) {
	return &app.WorkerResult{WorkerID: workerID, BranchID: 1, Username: "ana", Role: "collector"}, nil
}

func (f *fakeService) GetCard(_ context.Context, cardID int) (*app.CardResult, error) {
	if f.cardErr != nil {
		return nil, f.cardErr
	}
	return &app.CardResult{Card: &core.CustomerCard{ID: cardID}}, nil
}

func (f *fakeService) ApplyPayment(_ context.Context, req app.ApplyPaymentRequest) (*app.PaymentResult, error) {
	f.applyReq = req
	return &app.PaymentResult{
		Payment: &core.Payment{ID: 9, CustomerCardID: req.CardID},
		Card:    &core.CustomerCard{ID: req.CardID},
	}, nil
}

func (f *fakeService) AdjustPayment(_ context.Context, req app.AdjustPaymentRequest) (*app.PaymentResult, error) {
	f.adjustReq = req
	return &app.PaymentResult{Payment: &core.Payment{ID: req.PaymentID}, Card: &core.CustomerCard{ID: 3}}, nil
}

func (f *fakeService) ReversePayment(_ context.Context, req app.ReversePaymentRequest) (*app.CardResult, error) {
	f.reverseReq = req
	return &app.CardResult{Card: &core.CustomerCard{ID: 3}}, nil
}

func (f *fakeService) GetDailySales(_ context.Context, cardID int, date string) (*app.DailySalesResult, error) {
	f.salesDate = date
	return &app.DailySalesResult{CardID: cardID, Date: date, Total: decimal.NewFromInt(20)}, nil
}

func newTestHandler(svc app.ApplicationService) http.Handler {
	return NewHandler(svc, logger.Nop(), metrics.NewLedger(), Options{
		JWTSecret:          testSecret,
		TokenTTL:           time.Hour,
		RateLimitPerMinute: 1000,
		AllowedOrigins:     "http://localhost:5173",
	})
}

func testToken(t *testing.T, workerID int) string {
	t.Helper()
	h := &Handler{jwtSecret: testSecret, tokenTTL: time.Hour}
	tok, err := h.signToken(AuthClaims{WorkerID: workerID, BranchID: 1, CompanyID: 1, Role: "collector"}, time.Now())
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	return tok
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc)

	if rec := do(t, h, http.MethodGet, "/api/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthy: status = %d, want 200", rec.Code)
	}

	svc.pingErr = errors.New("connection refused")
	if rec := do(t, h, http.MethodGet, "/api/health", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestHandler(&fakeService{}), http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected runtime collectors in metrics output")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestHandler(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "bad id; drop table")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == "" || got == "bad id; drop table" {
		t.Errorf("unsafe request id should be replaced, got %q", got)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := newTestHandler(&fakeService{})

	rec := do(t, h, http.MethodGet, "/api/cards/1", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "UNAUTHORIZED" || resp.RequestID == "" {
		t.Errorf("unexpected error body %+v", resp)
	}

	other := &Handler{jwtSecret: "another-secret", tokenTTL: time.Hour}
	forged, err := other.signToken(AuthClaims{WorkerID: 1}, time.Now())
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if rec := do(t, h, http.MethodGet, "/api/cards/1", "", forged); rec.Code != http.StatusUnauthorized {
		t.Errorf("forged token: status = %d, want 401", rec.Code)
	}

	expired, err := (&Handler{jwtSecret: testSecret, tokenTTL: time.Minute}).signToken(AuthClaims{WorkerID: 1}, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if rec := do(t, h, http.MethodGet, "/api/cards/1", "", expired); rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d, want 401", rec.Code)
	}
}

func TestLoginThenMe(t *testing.T) {
	h := newTestHandler(&fakeService{})

	rec := do(t, h, http.MethodPost, "/api/auth/login", `{"username":"ana","password":"wrong"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status = %d, want 401", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/auth/login", `{"username":"ana","password":"s3cret"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil || login.Token == "" {
		t.Fatalf("login response missing token: %v", err)
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == authCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly auth cookie, got %+v", cookie)
	}

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	h.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("me: status = %d", me.Code)
	}
	var worker app.WorkerResult
	if err := json.NewDecoder(me.Body).Decode(&worker); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if worker.WorkerID != 4 {
		t.Errorf("me worker_id = %d, want 4", worker.WorkerID)
	}
}

func TestApplyPayment_ActorFromToken(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc)
	token := testToken(t, 4)

	rec := do(t, h, http.MethodPost, "/api/cards/3/payments", `{"amount_paid":"25.00","payment_method":"cash"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.applyReq.CardID != 3 || svc.applyReq.ActorID != 4 {
		t.Errorf("request = %+v, want card 3 actor 4", svc.applyReq)
	}
	if svc.applyReq.AmountPaid == nil || !svc.applyReq.AmountPaid.Equal(decimal.NewFromInt(25)) {
		t.Errorf("amount = %v, want 25", svc.applyReq.AmountPaid)
	}

	// A body cannot name the actor.
	rec = do(t, h, http.MethodPost, "/api/cards/3/payments", `{"amount_paid":"25","actor_id":99}`, token)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("actor in body: status = %d, want 400", rec.Code)
	}
}

func TestReverseAndAdjust_UsePathAndToken(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc)
	token := testToken(t, 2)

	if rec := do(t, h, http.MethodPost, "/api/payments/11/reverse", "", token); rec.Code != http.StatusOK {
		t.Fatalf("reverse: status = %d", rec.Code)
	}
	if svc.reverseReq.PaymentID != 11 || svc.reverseReq.ActorID != 2 {
		t.Errorf("reverse request = %+v", svc.reverseReq)
	}

	rec := do(t, h, http.MethodPost, "/api/payments/12/adjust", `{"new_amount":"40","notes":"miscounted"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.adjustReq.PaymentID != 12 || svc.adjustReq.ActorID != 2 || !svc.adjustReq.NewAmount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("adjust request = %+v", svc.adjustReq)
	}
}

func TestDailySales_PassesDateQuery(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodGet, "/api/cards/3/sales?date=2026-03-14", "", testToken(t, 1))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.salesDate != "2026-03-14" {
		t.Errorf("date = %q", svc.salesDate)
	}
}

func TestInvalidPathID(t *testing.T) {
	h := newTestHandler(&fakeService{})
	for _, path := range []string{"/api/cards/abc", "/api/cards/0", "/api/cards/-2"} {
		if rec := do(t, h, http.MethodGet, path, "", testToken(t, 1)); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestServiceErrorMapping(t *testing.T) {
	three := 3
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantRemaining *int
	}{
		{"validation", core.NewError(core.KindValidation, "invalid amount"), http.StatusBadRequest, "VALIDATION_ERROR", nil},
		{"not found", core.NewError(core.KindNotFound, "card 9 not found"), http.StatusNotFound, "NOT_FOUND", nil},
		{"invariant", core.NewError(core.KindInvariant, "box price is zero"), http.StatusUnprocessableEntity, "INVARIANT_VIOLATION", nil},
		{"conflict with remaining", &core.Error{Kind: core.KindConflict, Msg: "too many boxes", Remaining: &three}, http.StatusConflict, "CONFLICT", &three},
		{"infrastructure", errors.New("failed to begin transaction: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeService{cardErr: tt.err})
			rec := do(t, h, http.MethodGet, "/api/cards/9", "", testToken(t, 1))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeError(t, rec)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			switch {
			case tt.wantRemaining == nil && resp.Remaining != nil:
				t.Errorf("unexpected remaining %d", *resp.Remaining)
			case tt.wantRemaining != nil && (resp.Remaining == nil || *resp.Remaining != *tt.wantRemaining):
				t.Errorf("remaining = %v, want %d", resp.Remaining, *tt.wantRemaining)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(resp.Error, "connection reset") {
				t.Error("infrastructure error details leaked to client")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(&fakeService{})

	req := httptest.NewRequest(http.MethodOptions, "/api/cards/3/payments", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}
}
