package menu

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service encapsulates catalog business rules on top of a Repository.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the full catalog in insertion order, available or not.
// Callers filter as needed.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list menu items")
	}
	return items, nil
}

// Add creates a new menu item. New items start available.
func (s *Service) Add(ctx context.Context, name, description string, price decimal.Decimal, category string) (*Item, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &InvalidInputError{Reason: "name must not be empty"}
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	item := &Item{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Price:       price,
		Category:    category,
		Available:   true,
	}
	if err := s.repo.Insert(ctx, item); err != nil {
		return nil, errors.Wrap(err, "insert menu item")
	}
	return item, nil
}

// Edit applies a partial update to an existing item. Absent fields keep
// their current value; the item ID never changes.
func (s *Service) Edit(ctx context.Context, id string, fields Fields) (*Item, error) {
	if fields.Name != nil && strings.TrimSpace(*fields.Name) == "" {
		return nil, &InvalidInputError{Reason: "name must not be empty"}
	}
	if fields.Price != nil {
		if err := validatePrice(*fields.Price); err != nil {
			return nil, err
		}
	}

	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get menu item %s", id)
	}

	if fields.Name != nil {
		item.Name = *fields.Name
	}
	if fields.Description != nil {
		item.Description = *fields.Description
	}
	if fields.Price != nil {
		item.Price = *fields.Price
	}
	if fields.Category != nil {
		item.Category = *fields.Category
	}

	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "update menu item %s", id)
	}
	return item, nil
}

// ToggleAvailability flips the availability flag. While an item is
// unavailable, checkout rejects selections that reference it.
func (s *Service) ToggleAvailability(ctx context.Context, id string) (*Item, error) {
	item, err := s.repo.ToggleAvailability(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "toggle menu item %s", id)
	}
	return item, nil
}

// Delete removes an item from the catalog. Orders placed before deletion
// keep their price snapshot.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "delete menu item %s", id)
	}
	return nil
}
