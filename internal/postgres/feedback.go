package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskitchen/canteen-api/internal/domain/feedback"
)

const (
	insertFeedbackSQL = `INSERT INTO feedback (id, student_name, message, rating, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	listFeedbackSQL = `SELECT id, student_name, message, rating, created_at
		FROM feedback ORDER BY created_at DESC LIMIT $1`

	averageRatingSQL = `SELECT COALESCE(AVG(rating), 0) FROM feedback`
)

var _ feedback.Repository = (*FeedbackRepository)(nil)

// FeedbackRepository implements feedback.Repository backed by PostgreSQL.
type FeedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository returns a FeedbackRepository that uses the given pool.
func NewFeedbackRepository(pool *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{pool: pool}
}

// Insert persists a feedback entry.
func (r *FeedbackRepository) Insert(ctx context.Context, e *feedback.Entry) error {
	_, err := r.pool.Exec(ctx, insertFeedbackSQL,
		e.ID, e.StudentName, e.Message, e.Rating, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting feedback %q: %w", e.ID, err)
	}
	return nil
}

// List returns up to limit entries, most recent first.
func (r *FeedbackRepository) List(ctx context.Context, limit int) ([]feedback.Entry, error) {
	rows, err := r.pool.Query(ctx, listFeedbackSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (feedback.Entry, error) {
		var e feedback.Entry
		err := row.Scan(&e.ID, &e.StudentName, &e.Message, &e.Rating, &e.CreatedAt)
		return e, err
	})
}

// AverageRating returns the mean rating over all entries, 0 when empty.
func (r *FeedbackRepository) AverageRating(ctx context.Context) (float64, error) {
	var avg float64
	if err := r.pool.QueryRow(ctx, averageRatingSQL).Scan(&avg); err != nil {
		return 0, fmt.Errorf("averaging feedback rating: %w", err)
	}
	return avg, nil
}
