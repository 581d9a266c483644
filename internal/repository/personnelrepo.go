package repository

import (
	"context"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PersonnelRepository provides CRUD access for staff records.
type PersonnelRepository interface {
	Create(ctx context.Context, p *model.Personnel) error
	Get(ctx context.Context, id uuid.UUID) (*model.Personnel, error)
	List(ctx context.Context, q model.ListQuery) (model.Page[model.Personnel], error)
	// Update replaces every field except ID and timestamps.
	Update(ctx context.Context, p *model.Personnel) error
	Delete(ctx context.Context, id uuid.UUID) error
	// AppendHistory appends one JSON-encoded entry to the named history.
	AppendHistory(ctx context.Context, id uuid.UUID, h model.PersonnelHistory, entry []byte) (*model.Personnel, error)
}
