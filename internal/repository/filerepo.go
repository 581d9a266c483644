package repository

import (
	"context"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FileRepository provides metadata access to registry files and their linked mails.
// It deliberately has no way to change location or holder; see MovementRepository.
type FileRepository interface {
	// Create inserts a new file in the available state.
	Create(ctx context.Context, f *model.File) error
	// Get loads a file with its incoming and outgoing document lists.
	Get(ctx context.Context, id uuid.UUID) (*model.File, error)
	// List returns a page of files of the given kind.
	List(ctx context.Context, kind model.FileKind, q model.ListQuery) (model.Page[model.File], error)
	// Update applies a metadata patch.
	Update(ctx context.Context, id uuid.UUID, p model.FilePatch) (*model.File, error)
	// SetTrashed toggles the soft-delete flag.
	SetTrashed(ctx context.Context, id uuid.UUID, trashed bool) error
	// Delete removes the file permanently; fails with ErrConflict while checked out.
	Delete(ctx context.Context, id uuid.UUID) error
	// Counts reports totals for the registry dashboard.
	Counts(ctx context.Context, kind model.FileKind) (model.FileCounts, error)

	// AttachMail adds mailID to the file's document list for dir; attaching twice is a no-op.
	AttachMail(ctx context.Context, fileID, mailID uuid.UUID, dir model.Direction) error
	// DetachMail removes mailID from both document lists.
	DetachMail(ctx context.Context, fileID, mailID uuid.UUID) error
}
