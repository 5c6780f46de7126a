package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskitchen/canteen-api/internal/domain/menu"
)

const (
	listMenuItemsSQL = `SELECT id, name, description, price, category, available
		FROM menu_items ORDER BY position`

	getMenuItemSQL = `SELECT id, name, description, price, category, available
		FROM menu_items WHERE id = $1`

	getMenuItemsSQL = `SELECT id, name, description, price, category, available
		FROM menu_items WHERE id = ANY($1)`

	insertMenuItemSQL = `INSERT INTO menu_items (id, name, description, price, category, available)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateMenuItemSQL = `UPDATE menu_items
		SET name = $2, description = $3, price = $4, category = $5
		WHERE id = $1`

	toggleMenuItemSQL = `UPDATE menu_items SET available = NOT available
		WHERE id = $1
		RETURNING id, name, description, price, category, available`

	deleteMenuItemSQL = `DELETE FROM menu_items WHERE id = $1`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, name, description, price, category, available)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			available = EXCLUDED.available`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// List returns the whole catalog in insertion order.
func (r *MenuRepository) List(ctx context.Context) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// GetByID returns a single item by its identifier.
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}
	return &it, nil
}

// GetByIDs returns items matching any of the given IDs.
func (r *MenuRepository) GetByIDs(ctx context.Context, ids []string) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting menu items by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// Insert persists a new item.
func (r *MenuRepository) Insert(ctx context.Context, it *menu.Item) error {
	_, err := r.pool.Exec(ctx, insertMenuItemSQL,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Available)
	if err != nil {
		return fmt.Errorf("inserting menu item %q: %w", it.ID, err)
	}
	return nil
}

// Upsert inserts or refreshes an item row. Used by the seed tool.
func (r *MenuRepository) Upsert(ctx context.Context, it *menu.Item) error {
	_, err := r.pool.Exec(ctx, upsertMenuItemSQL,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Available)
	if err != nil {
		return fmt.Errorf("upserting menu item %q: %w", it.ID, err)
	}
	return nil
}

// Update rewrites the mutable fields of an item. The availability flag is
// only changed through ToggleAvailability.
func (r *MenuRepository) Update(ctx context.Context, it *menu.Item) error {
	tag, err := r.pool.Exec(ctx, updateMenuItemSQL,
		it.ID, it.Name, it.Description, it.Price, it.Category)
	if err != nil {
		return fmt.Errorf("updating menu item %q: %w", it.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return menu.ErrNotFound
	}
	return nil
}

// ToggleAvailability flips the flag in a single statement so concurrent
// readers see either the old or the new row, never a torn one.
func (r *MenuRepository) ToggleAvailability(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := r.pool.Query(ctx, toggleMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("toggling menu item %q: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("toggling menu item %q: %w", id, err)
	}
	return &it, nil
}

// Delete removes an item.
func (r *MenuRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteMenuItemSQL, id)
	if err != nil {
		return fmt.Errorf("deleting menu item %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return menu.ErrNotFound
	}
	return nil
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var it menu.Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.Category, &it.Available)
	return it, err
}
