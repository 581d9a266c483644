package repository

import (
	"context"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DepartmentRepository provides CRUD access for departments.
type DepartmentRepository interface {
	Create(ctx context.Context, d *model.Department) error
	Get(ctx context.Context, id uuid.UUID) (*model.Department, error)
	List(ctx context.Context, q model.ListQuery) (model.Page[model.Department], error)
	Update(ctx context.Context, d *model.Department) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MDARepository provides CRUD access for MDAs and their embedded departments.
type MDARepository interface {
	Create(ctx context.Context, m *model.MDA) error
	Get(ctx context.Context, id uuid.UUID) (*model.MDA, error)
	List(ctx context.Context, q model.ListQuery) (model.Page[model.MDA], error)
	// Update replaces name and short name; departments are changed with Add/RemoveDepartment.
	Update(ctx context.Context, m *model.MDA) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddDepartment(ctx context.Context, id uuid.UUID, d model.MDADepartment) (*model.MDA, error)
	RemoveDepartment(ctx context.Context, id uuid.UUID, shortName string) (*model.MDA, error)
}
