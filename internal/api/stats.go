package api

import (
	"net/http"

	"github.com/go-faster/jx"
)

// getStats returns the dashboard aggregates. Manager only.
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	s, err := h.stats.Compute(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("todayOrders")
	e.Int(s.TodayOrders)
	e.FieldStart("pendingOrders")
	e.Int(s.PendingOrders)
	e.FieldStart("totalRevenue")
	encMoney(&e, s.TotalRevenue)
	e.FieldStart("outOfStock")
	e.Int(s.OutOfStock)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
