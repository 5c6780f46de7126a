// Package order implements the order ledger: order identity, the status
// state machine, pickup token issuance, and the append-only history of
// collected orders.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for ledger operations.
var (
	// ErrNotFound is returned when an order ID is neither live nor in history.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyDraft is returned when a draft without line items is placed.
	ErrEmptyDraft = errors.New("order draft has no line items")
	// ErrTokenConflict is returned when a unique pickup token could not be
	// issued even after retrying.
	ErrTokenConflict = errors.New("pickup token conflict")
)

// Line is a single ordered position. UnitPrice is the catalog price captured
// at checkout time; it never changes afterwards, even if the menu item is
// edited or deleted.
type Line struct {
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Draft is a priced but unpersisted cart produced by the checkout
// calculator. Placing it on the ledger is a separate, explicit step so a
// draft can be re-priced or abandoned without side effects.
type Draft struct {
	Lines []Line
	Total decimal.Decimal
}

// Order is a live order. Token is assigned once at creation and is unique
// among all concurrently live orders.
type Order struct {
	ID        string
	Token     string
	Lines     []Line
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
}

// CompletedOrder is the immutable history record copied from an order at the
// moment it is collected.
type CompletedOrder struct {
	ID          string
	Token       string
	Lines       []Line
	Total       decimal.Decimal
	CompletedAt time.Time
}

// HistoryStats summarizes the history table for the aggregation view.
type HistoryStats struct {
	// CompletedSince counts records completed at or after the requested cutoff.
	CompletedSince int
	// Revenue is the all-time sum of completed order totals.
	Revenue decimal.Decimal
}

// Store is the persistence boundary of the ledger. All writes happen inside
// the ledger's serialization point; MoveToHistory must delete the live row
// and append the history record in a single transaction.
type Store interface {
	InsertLive(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	MoveToHistory(ctx context.Context, rec *CompletedOrder) error
	ListLive(ctx context.Context) ([]Order, error)
	InHistory(ctx context.Context, id string) (bool, error)
	History(ctx context.Context, limit int) ([]CompletedOrder, error)
	HistoryStats(ctx context.Context, since time.Time) (*HistoryStats, error)
}
