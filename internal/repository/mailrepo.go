package repository

import (
	"context"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MailRepository provides CRUD access for correspondence.
type MailRepository interface {
	Create(ctx context.Context, m *model.Mail) error
	// Get loads a mail with its charge comments.
	Get(ctx context.Context, id uuid.UUID) (*model.Mail, error)
	// List returns a page of mails; dir filters by direction when non-empty.
	List(ctx context.Context, dir model.Direction, q model.ListQuery) (model.Page[model.Mail], error)
	Update(ctx context.Context, id uuid.UUID, p model.MailPatch) (*model.Mail, error)
	SetTrashed(ctx context.Context, id uuid.UUID, trashed bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}
