// Package auth holds the identity collaborator boundary. The engine trusts
// the role resolved here and performs no role logic of its own.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no API key matches the presented hash.
var ErrKeyNotFound = errors.New("api key not found")

// Role is the capability attached to an authenticated caller.
type Role string

const (
	// RoleStudent may browse the menu, place orders, and leave feedback.
	RoleStudent Role = "student"
	// RoleManager may additionally mutate the catalog, advance orders, and
	// read live orders and stats.
	RoleManager Role = "manager"
)

// CanManage reports whether the role grants catalog and order management.
func (r Role) CanManage() bool {
	return r == RoleManager
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleManager
}

// APIKeyInfo holds the identity and capability data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Role    Role
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
