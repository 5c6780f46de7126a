package api

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/campuskitchen/canteen-api/internal/domain/order"
)

// Estimated pickup time in minutes: a fixed kitchen baseline plus a per-order
// allowance for everything already in the queue, capped so the number stays
// believable during rush hour.
const (
	baseEstimateMinutes     = 10
	perOrderEstimateMinutes = 2
	maxEstimateMinutes      = 20
)

func estimateMinutes(queueAhead int) int {
	est := baseEstimateMinutes + perOrderEstimateMinutes*queueAhead
	if est > maxEstimateMinutes {
		return maxEstimateMinutes
	}
	return est
}

func decodeSelections(data []byte) (map[string]int, error) {
	selections := make(map[string]int)
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, itemID string) error {
			qty, err := d.Int()
			if err != nil {
				return err
			}
			selections[itemID] = qty
			return nil
		})
	})
	if err != nil {
		return nil, badRequest("invalid order body")
	}
	return selections, nil
}

// placeOrder prices the selections against the current menu and places the
// resulting draft on the ledger. The response carries the pickup token and a
// queue-based pickup estimate. Open to both roles.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, badRequest("unreadable body"))
		return
	}
	selections, err := decodeSelections(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	draft, err := h.checkout.BuildOrder(r.Context(), selections)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Queue length before this order joins it.
	queueAhead := h.ledger.PendingCount()

	o, err := h.ledger.Place(r.Context(), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("token")
	e.Str(o.Token)
	e.FieldStart("totalAmount")
	encMoney(&e, o.Total)
	e.FieldStart("estimatedTime")
	e.Int(estimateMinutes(queueAhead))
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, &e)
}

// listOrders returns all live orders, oldest first. Manager only.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	live := h.ledger.LiveOrders()

	var e jx.Encoder
	e.ArrStart()
	for i := range live {
		encOrder(&e, &live[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// advanceOrder moves an order one step along pending, preparing, ready,
// collected. An optional {"to": "..."} body pins the expected target so a
// retried request cannot advance the order twice. Manager only.
func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, badRequest("unreadable body"))
		return
	}

	var target order.Status
	if len(data) > 0 {
		d := jx.DecodeBytes(data)
		err := d.Obj(func(d *jx.Decoder, key string) error {
			if key != "to" {
				return d.Skip()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			target = order.Status(v)
			return nil
		})
		if err != nil {
			writeError(w, r, badRequest("invalid advance body"))
			return
		}
		if target != "" && !target.Valid() {
			writeError(w, r, badRequest("unknown status "+string(target)))
			return
		}
	}

	o, err := h.ledger.AdvanceTo(r.Context(), r.PathValue("id"), target)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

// orderHistory returns recently collected orders, most recent first.
// Manager only.
func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	limit := queryLimit(r, defaultHistoryLimit, maxHistoryLimit)

	recs, err := h.ledger.History(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range recs {
		encCompletedOrder(&e, &recs[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}
