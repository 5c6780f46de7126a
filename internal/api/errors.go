package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/campuskitchen/canteen-api/internal/domain/checkout"
	"github.com/campuskitchen/canteen-api/internal/domain/feedback"
	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/domain/order"
)

// writeError maps a domain error to an HTTP status and a {code, message}
// body. Unknown errors become a 500 with a generic message; the detail goes
// to the log, not the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		msg = "internal error"
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func mapError(err error) (int, string) {
	var (
		menuInvalid *menu.InvalidInputError
		fbInvalid   *feedback.InvalidInputError
		badQuantity *checkout.InvalidQuantityError
		missingItem *checkout.ItemNotFoundError
		offMenu     *checkout.ItemUnavailableError
		malformed   *malformedRequestError
	)

	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, malformed.Error()
	case errors.As(err, &menuInvalid):
		return http.StatusBadRequest, menuInvalid.Error()
	case errors.As(err, &fbInvalid):
		return http.StatusBadRequest, fbInvalid.Error()
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, order.ErrEmptyDraft):
		return http.StatusBadRequest, "order must contain at least one item"
	case errors.As(err, &badQuantity):
		return http.StatusUnprocessableEntity, badQuantity.Error()
	case errors.As(err, &missingItem):
		return http.StatusUnprocessableEntity, missingItem.Error()
	case errors.As(err, &offMenu):
		return http.StatusUnprocessableEntity, offMenu.Error()
	case errors.Is(err, menu.ErrNotFound):
		return http.StatusNotFound, "menu item not found"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, order.ErrIllegalTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, order.ErrTokenConflict):
		return http.StatusServiceUnavailable, "no pickup token available, try again"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// malformedRequestError marks a request body that could not be decoded.
type malformedRequestError struct {
	reason string
}

func (e *malformedRequestError) Error() string {
	return "malformed request: " + e.reason
}

func badRequest(reason string) error {
	return &malformedRequestError{reason: reason}
}
