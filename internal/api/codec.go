package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/campuskitchen/canteen-api/internal/domain/order"
)

// maxBodySize caps request bodies; order and feedback payloads are tiny.
const maxBodySize = 1 << 20

// readBody drains the request body up to maxBodySize.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
}

// writeJSON sends the encoder's buffer with the given status.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// encMoney writes a decimal as a bare JSON number.
func encMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func encTime(e *jx.Encoder, t time.Time) {
	e.Str(t.Format(time.RFC3339))
}

func encOrderLines(e *jx.Encoder, lines []order.Line) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("itemId")
		e.Str(l.ItemID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		encMoney(e, l.UnitPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("token")
	e.Str(o.Token)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("items")
	encOrderLines(e, o.Lines)
	e.FieldStart("totalAmount")
	encMoney(e, o.Total)
	e.FieldStart("createdAt")
	encTime(e, o.CreatedAt)
	e.ObjEnd()
}

func encCompletedOrder(e *jx.Encoder, rec *order.CompletedOrder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(rec.ID)
	e.FieldStart("token")
	e.Str(rec.Token)
	e.FieldStart("items")
	encOrderLines(e, rec.Lines)
	e.FieldStart("totalAmount")
	encMoney(e, rec.Total)
	e.FieldStart("completedAt")
	encTime(e, rec.CompletedAt)
	e.ObjEnd()
}

// queryLimit parses the "limit" query parameter, clamped to [1, max].
func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
