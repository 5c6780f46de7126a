// Package stats derives live aggregate statistics by folding over a
// consistent ledger snapshot and the menu catalog. Stats are a view: they
// are recomputed on every call and never stored.
package stats

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/domain/order"
)

// Stats is the aggregate view shown on the manager dashboard.
type Stats struct {
	// TodayOrders counts live orders plus history records completed today.
	TodayOrders int
	// PendingOrders counts live orders still awaiting the kitchen
	// (pending or preparing).
	PendingOrders int
	// TotalRevenue is the all-time sum of collected order totals. Only
	// history records contribute: an order is collected exactly when it
	// enters history, so nothing can be counted twice.
	TotalRevenue decimal.Decimal
	// OutOfStock counts menu items currently marked unavailable.
	OutOfStock int
}

// Snapshotter is the slice of the ledger the aggregator needs.
type Snapshotter interface {
	SnapshotSince(ctx context.Context, since time.Time) (*order.Snapshot, error)
}

// Catalog is the slice of the menu repository the aggregator needs.
type Catalog interface {
	List(ctx context.Context) ([]menu.Item, error)
}

// Aggregator computes Stats on demand.
type Aggregator struct {
	ledger  Snapshotter
	catalog Catalog
	now     func() time.Time
}

// NewAggregator creates an Aggregator over the given ledger and catalog.
func NewAggregator(ledger Snapshotter, catalog Catalog) *Aggregator {
	return &Aggregator{ledger: ledger, catalog: catalog, now: time.Now}
}

// Compute folds the current ledger snapshot and catalog into Stats. "Today"
// starts at local midnight of the aggregator's clock.
func (a *Aggregator) Compute(ctx context.Context) (Stats, error) {
	now := a.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	snap, err := a.ledger.SnapshotSince(ctx, midnight)
	if err != nil {
		return Stats{}, errors.Wrap(err, "snapshot ledger")
	}

	items, err := a.catalog.List(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "list menu items")
	}

	s := Stats{
		TodayOrders:  len(snap.Live) + snap.CompletedSince,
		TotalRevenue: snap.Revenue,
	}
	for _, o := range snap.Live {
		if o.Status.Pending() {
			s.PendingOrders++
		}
	}
	for _, it := range items {
		if !it.Available {
			s.OutOfStock++
		}
	}
	return s, nil
}
