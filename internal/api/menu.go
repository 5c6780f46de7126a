package api

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/campuskitchen/canteen-api/internal/domain/menu"
)

func encMenuItem(e *jx.Encoder, it *menu.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("description")
	e.Str(it.Description)
	e.FieldStart("price")
	encMoney(e, it.Price)
	e.FieldStart("category")
	e.Str(it.Category)
	e.FieldStart("available")
	e.Bool(it.Available)
	e.ObjEnd()
}

// listMenu returns the whole catalog in insertion order, including items
// currently out of stock. Open to both roles.
func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range items {
		encMenuItem(&e, &items[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// menuItemReq carries the decoded fields of an add or edit request. Pointers
// distinguish absent fields from zero values for partial updates.
type menuItemReq struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Category    *string
}

func decodeMenuItemReq(data []byte) (*menuItemReq, error) {
	var req menuItemReq
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.Name = &v
		case "description":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.Description = &v
		case "price":
			n, err := d.Num()
			if err != nil {
				return err
			}
			v, err := decimal.NewFromString(n.String())
			if err != nil {
				return err
			}
			req.Price = &v
		case "category":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.Category = &v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, badRequest("invalid menu item body")
	}
	return &req, nil
}

func (h *Handler) addMenuItem(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, badRequest("unreadable body"))
		return
	}
	req, err := decodeMenuItemReq(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == nil || req.Price == nil {
		writeError(w, r, badRequest("name and price are required"))
		return
	}

	var description, category string
	if req.Description != nil {
		description = *req.Description
	}
	if req.Category != nil {
		category = *req.Category
	}

	item, err := h.catalog.Add(r.Context(), *req.Name, description, *req.Price, category)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encMenuItem(&e, item)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) editMenuItem(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, badRequest("unreadable body"))
		return
	}
	req, err := decodeMenuItemReq(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.catalog.Edit(r.Context(), r.PathValue("id"), menu.Fields{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encMenuItem(&e, item)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) toggleMenuItem(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	item, err := h.catalog.ToggleAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encMenuItem(&e, item)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
