package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/campuskitchen/canteen-api/internal/domain/order"
)

const (
	insertLiveOrderSQL = `INSERT INTO orders (id, token, items, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	deleteLiveOrderSQL = `DELETE FROM orders WHERE id = $1`

	insertCompletedOrderSQL = `INSERT INTO completed_orders (id, token, items, total, completed_at)
		VALUES ($1, $2, $3, $4, $5)`

	listLiveOrdersSQL = `SELECT id, token, items, total, status, created_at
		FROM orders ORDER BY created_at`

	inHistorySQL = `SELECT EXISTS (SELECT 1 FROM completed_orders WHERE id = $1)`

	listHistorySQL = `SELECT id, token, items, total, completed_at
		FROM completed_orders ORDER BY completed_at DESC LIMIT $1`

	scanHistorySQL = `SELECT id, token, items, total, completed_at
		FROM completed_orders
		WHERE completed_at >= $1 AND completed_at < $2
		ORDER BY completed_at`

	historyStatsSQL = `SELECT
			COUNT(*) FILTER (WHERE completed_at >= $1),
			COALESCE(SUM(total), 0)
		FROM completed_orders`
)

// uniqueViolation is the PostgreSQL error code raised by the token index.
const uniqueViolation = "23505"

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. Line items are
// stored as JSONB on both the live and the history table.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// lineJSON is the JSONB representation of an order line.
type lineJSON struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func marshalLines(lines []order.Line) ([]byte, error) {
	out := make([]lineJSON, len(lines))
	for i, l := range lines {
		out[i] = lineJSON{ItemID: l.ItemID, Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return json.Marshal(out)
}

func unmarshalLines(raw []byte) ([]order.Line, error) {
	var in []lineJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make([]order.Line, len(in))
	for i, l := range in {
		out[i] = order.Line{ItemID: l.ItemID, Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return out, nil
}

// InsertLive persists a freshly placed order. A collision on the unique
// token index surfaces as order.ErrTokenConflict so the ledger can retry
// with a fresh token.
func (s *OrderStore) InsertLive(ctx context.Context, o *order.Order) error {
	items, err := marshalLines(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertLiveOrderSQL,
		o.ID, o.Token, items, o.Total, string(o.Status), o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return order.ErrTokenConflict
		}
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus rewrites the status of a live order.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := s.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MoveToHistory deletes the live row and appends the history record in one
// transaction, so the order is never visible in both tables or in neither.
func (s *OrderStore) MoveToHistory(ctx context.Context, rec *order.CompletedOrder) error {
	items, err := marshalLines(rec.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning history move: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, deleteLiveOrderSQL, rec.ID)
	if err != nil {
		return fmt.Errorf("deleting live order %q: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	_, err = tx.Exec(ctx, insertCompletedOrderSQL,
		rec.ID, rec.Token, items, rec.Total, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting completed order %q: %w", rec.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing history move for %q: %w", rec.ID, err)
	}
	return nil
}

// ListLive returns all live orders, oldest first.
func (s *OrderStore) ListLive(ctx context.Context) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listLiveOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing live orders: %w", err)
	}
	return pgx.CollectRows(rows, scanLiveOrder)
}

// InHistory reports whether the given order ID has been collected.
func (s *OrderStore) InHistory(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, inHistorySQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking history for %q: %w", id, err)
	}
	return exists, nil
}

// History returns up to limit completed orders, most recent first.
func (s *OrderStore) History(ctx context.Context, limit int) ([]order.CompletedOrder, error) {
	rows, err := s.pool.Query(ctx, listHistorySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return pgx.CollectRows(rows, scanCompletedOrder)
}

// ScanHistory streams completed orders in [from, to), oldest first, calling
// fn for each record. Rows are decoded one at a time so an export of a large
// history does not load it all into memory.
func (s *OrderStore) ScanHistory(ctx context.Context, from, to time.Time, fn func(*order.CompletedOrder) error) error {
	rows, err := s.pool.Query(ctx, scanHistorySQL, from, to)
	if err != nil {
		return fmt.Errorf("scanning history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanCompletedOrder(rows)
		if err != nil {
			return fmt.Errorf("scanning history row: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// HistoryStats returns the count of records completed since the cutoff and
// the all-time revenue in a single scan.
func (s *OrderStore) HistoryStats(ctx context.Context, since time.Time) (*order.HistoryStats, error) {
	var (
		completed int
		revenue   decimal.Decimal
	)
	if err := s.pool.QueryRow(ctx, historyStatsSQL, since).Scan(&completed, &revenue); err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	return &order.HistoryStats{CompletedSince: completed, Revenue: revenue}, nil
}

func scanLiveOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		items  []byte
		status string
	)
	if err := row.Scan(&o.ID, &o.Token, &items, &o.Total, &status, &o.CreatedAt); err != nil {
		return order.Order{}, err
	}
	lines, err := unmarshalLines(items)
	if err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order %q items: %w", o.ID, err)
	}
	o.Lines = lines
	o.Status = order.Status(status)
	return o, nil
}

func scanCompletedOrder(row pgx.CollectableRow) (order.CompletedOrder, error) {
	var (
		rec   order.CompletedOrder
		items []byte
	)
	if err := row.Scan(&rec.ID, &rec.Token, &items, &rec.Total, &rec.CompletedAt); err != nil {
		return order.CompletedOrder{}, err
	}
	lines, err := unmarshalLines(items)
	if err != nil {
		return order.CompletedOrder{}, fmt.Errorf("unmarshaling order %q items: %w", rec.ID, err)
	}
	rec.Lines = lines
	return rec, nil
}
