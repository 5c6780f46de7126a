// Package feedback collects student feedback shown on the manager
// dashboard. Feedback is independent of the order engine.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// InvalidInputError indicates a malformed feedback submission.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid feedback: %s", e.Reason)
}

// Entry is a single piece of student feedback with a 1–5 rating.
type Entry struct {
	ID          string
	StudentName string
	Message     string
	Rating      int
	CreatedAt   time.Time
}

// Repository defines persistence operations for feedback entries.
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	AverageRating(ctx context.Context) (float64, error)
}

// Service validates and records feedback.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a feedback Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Add validates and stores a feedback entry.
func (s *Service) Add(ctx context.Context, studentName, message string, rating int) (*Entry, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &InvalidInputError{Reason: "message must not be empty"}
	}
	if rating < 1 || rating > 5 {
		return nil, &InvalidInputError{Reason: "rating must be between 1 and 5"}
	}

	e := &Entry{
		ID:          uuid.New().String(),
		StudentName: studentName,
		Message:     message,
		Rating:      rating,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, errors.Wrap(err, "insert feedback")
	}
	return e, nil
}

// List returns up to limit entries, most recent first.
func (s *Service) List(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list feedback")
	}
	return entries, nil
}

// AverageRating returns the mean rating over all entries, or 0 when there
// are none.
func (s *Service) AverageRating(ctx context.Context) (float64, error) {
	avg, err := s.repo.AverageRating(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "average rating")
	}
	return avg, nil
}
