package menu

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// InvalidInputError indicates a malformed add or edit request.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid menu input: %s", e.Reason)
}

// Item represents a dish or beverage on the canteen menu. Price is a whole
// number of currency units; orders snapshot it at checkout time, so editing
// or deleting an item never changes already-placed orders.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Available   bool
}

// Fields holds a partial update for an item. Nil pointers leave the
// corresponding field untouched.
type Fields struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Category    *string
}

// Repository defines persistence operations for the menu catalog.
// List returns items in insertion order, including unavailable ones.
// ToggleAvailability flips the flag atomically in storage so readers never
// observe a half-written item.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
	Insert(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	ToggleAvailability(ctx context.Context, id string) (*Item, error)
	Delete(ctx context.Context, id string) error
}

// validatePrice enforces the catalog price invariant: a positive whole
// number of currency units.
func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return &InvalidInputError{Reason: "price must be greater than 0"}
	}
	if !price.IsInteger() {
		return &InvalidInputError{Reason: "price must be a whole number of currency units"}
	}
	return nil
}
