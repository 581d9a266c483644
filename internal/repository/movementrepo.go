package repository

import (
	"context"
	"time"

	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MovementRepository is the only writer of files.location, files.current_holder
// and held-file membership. Every method keeps the three consistent.
type MovementRepository interface {
	// CheckOut moves an available, live file to userID in a single conditional update.
	// Returns ErrConflict when the file is not available, ErrNotFound when it does not exist.
	CheckOut(ctx context.Context, fileID, userID uuid.UUID, at time.Time) (*model.File, error)

	// Transfer moves custody of a checked-out file from c.FromUserID to c.ToUserID,
	// appends the charge entry and, when c.DocumentID is set, the mirrored mail comment.
	// Returns ErrAlreadyCharged without writing when the destination already holds the file.
	Transfer(ctx context.Context, c model.Charge) (*model.File, error)

	// CheckIn returns a checked-out file to the registry. With requireHolder the
	// returning user must be the current holder.
	CheckIn(ctx context.Context, fileID, userID uuid.UUID, at time.Time, requireHolder bool) (*model.File, error)

	// ClearLog truncates one movement log of the file.
	ClearLog(ctx context.Context, fileID uuid.UUID, log model.MovementLog) error

	// LastRequest returns the most recent request entry; ErrNotFound when the log is empty.
	LastRequest(ctx context.Context, fileID uuid.UUID) (*model.RequestEntry, error)

	// History returns all three movement logs in append order.
	History(ctx context.Context, fileID uuid.UUID) (*model.Movements, error)

	// Reconcile re-derives held-file membership from files.current_holder and
	// returns the rows it had to add or remove.
	Reconcile(ctx context.Context) ([]model.Drift, error)
}
