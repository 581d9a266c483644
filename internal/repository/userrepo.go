// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides CRUD access for registry users.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List returns a page of users.
	List(ctx context.Context, q model.ListQuery) (model.Page[model.User], error)
	// Update applies a profile patch and returns the updated user.
	Update(ctx context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error)
	// SetRole changes the user's role.
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) error
	// SetPassword replaces the password hash and salt.
	SetPassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error
	// SetDeactivated toggles the soft-delete flag.
	SetDeactivated(ctx context.Context, id uuid.UUID, deactivated bool) error
	// Delete removes the user; fails with ErrConflict while the user holds files.
	Delete(ctx context.Context, id uuid.UUID) error
	// HeldFiles lists the files currently checked out to the user.
	HeldFiles(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}
