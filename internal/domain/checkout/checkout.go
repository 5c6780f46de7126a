// Package checkout turns a set of menu selections into a priced order
// draft. The draft snapshots catalog prices at calculation time and is not
// persisted; placing it on the ledger is a separate step.
package checkout

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/domain/order"
)

// ErrEmptyCart is returned when no selections were made.
var ErrEmptyCart = errors.New("cart is empty")

// ItemNotFoundError indicates a selection referenced an unknown menu item.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %s not found", e.ItemID)
}

// ItemUnavailableError indicates a selection referenced an item that is
// currently marked out of stock.
type ItemUnavailableError struct {
	ItemID string
	Name   string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("menu item %s (%s) is currently unavailable", e.ItemID, e.Name)
}

// InvalidQuantityError indicates a selection with a non-positive quantity.
type InvalidQuantityError struct {
	ItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for item %s", e.ItemID)
}

// Calculator prices selections against the current menu catalog.
type Calculator struct {
	catalog menu.Repository
}

// NewCalculator creates a Calculator reading from the given catalog.
func NewCalculator(catalog menu.Repository) *Calculator {
	return &Calculator{catalog: catalog}
}

// BuildOrder validates the selections and prices them with a single batch
// catalog read. The returned draft carries one line per selected item with
// the unit price captured at this moment; the total is Σ price × quantity.
// BuildOrder never mutates anything.
func (c *Calculator) BuildOrder(ctx context.Context, selections map[string]int) (*order.Draft, error) {
	if len(selections) == 0 {
		return nil, ErrEmptyCart
	}

	// Deterministic line ordering regardless of map iteration.
	ids := make([]string, 0, len(selections))
	for id, qty := range selections {
		if qty <= 0 {
			return nil, &InvalidQuantityError{ItemID: id}
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fetched, err := c.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get menu items")
	}
	byID := make(map[string]menu.Item, len(fetched))
	for _, it := range fetched {
		byID[it.ID] = it
	}

	lines := make([]order.Line, 0, len(ids))
	total := decimal.Zero
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			return nil, &ItemNotFoundError{ItemID: id}
		}
		if !it.Available {
			return nil, &ItemUnavailableError{ItemID: id, Name: it.Name}
		}

		qty := selections[id]
		lines = append(lines, order.Line{
			ItemID:    it.ID,
			Name:      it.Name,
			Quantity:  qty,
			UnitPrice: it.Price,
		})
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(qty))))
	}

	return &order.Draft{Lines: lines, Total: total}, nil
}
