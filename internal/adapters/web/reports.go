package web

import "net/http"

// apiWorkerTotals handles GET /api/branches/{branchID}/worker-totals?date=YYYY-MM-DD.
func (h *Handler) apiWorkerTotals(w http.ResponseWriter, r *http.Request) {
	branchID, ok := pathID(w, r, "branchID")
	if !ok {
		return
	}
	res, err := h.svc.GetWorkerTotals(r.Context(), branchID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiBranchTotals handles GET /api/companies/{companyID}/branch-totals?date=YYYY-MM-DD.
func (h *Handler) apiBranchTotals(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r, "companyID")
	if !ok {
		return
	}
	res, err := h.svc.GetBranchTotals(r.Context(), companyID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiCompanyTotals handles GET /api/companies/{companyID}/totals?date=YYYY-MM-DD.
func (h *Handler) apiCompanyTotals(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r, "companyID")
	if !ok {
		return
	}
	res, err := h.svc.GetCompanyTotals(r.Context(), companyID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
