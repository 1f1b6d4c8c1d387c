package web

import (
	"net/http"

	"boxcard-ledger/internal/app"
)

// ── Cards ─────────────────────────────────────────────────────────────────────

// apiAssignCard handles POST /api/customers/{customerID}/card.
func (h *Handler) apiAssignCard(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(w, r, "customerID")
	if !ok {
		return
	}
	var req app.AssignCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CustomerID = customerID

	res, err := h.svc.AssignCard(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, res)
}

// apiGetActiveCard handles GET /api/customers/{customerID}/card.
func (h *Handler) apiGetActiveCard(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(w, r, "customerID")
	if !ok {
		return
	}
	res, err := h.svc.GetActiveCard(r.Context(), customerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiGetCard handles GET /api/cards/{cardID}.
func (h *Handler) apiGetCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	res, err := h.svc.GetCard(r.Context(), cardID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) apiGetBoxStates(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	res, err := h.svc.GetBoxStates(r.Context(), cardID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) apiGetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	res, err := h.svc.GetPaymentHistory(r.Context(), cardID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiGetDailySales handles GET /api/cards/{cardID}/sales?date=YYYY-MM-DD.
func (h *Handler) apiGetDailySales(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	res, err := h.svc.GetDailySales(r.Context(), cardID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) apiVerifyCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	res, err := h.svc.VerifyCard(r.Context(), cardID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// ── Payments ──────────────────────────────────────────────────────────────────

// apiApplyPayment handles POST /api/cards/{cardID}/payments. The actor is always
// the authenticated worker.
func (h *Handler) apiApplyPayment(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	var req app.ApplyPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CardID = cardID
	req.ActorID = authFromContext(r.Context()).WorkerID

	res, err := h.svc.ApplyPayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, res)
}

// apiReversePayment handles POST /api/payments/{paymentID}/reverse.
func (h *Handler) apiReversePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	res, err := h.svc.ReversePayment(r.Context(), app.ReversePaymentRequest{
		PaymentID: paymentID,
		ActorID:   authFromContext(r.Context()).WorkerID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiAdjustPayment handles POST /api/payments/{paymentID}/adjust.
func (h *Handler) apiAdjustPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	var req app.AdjustPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.PaymentID = paymentID
	req.ActorID = authFromContext(r.Context()).WorkerID

	res, err := h.svc.AdjustPayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
