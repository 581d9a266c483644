package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MovementRepo implements MovementRepository using PostgreSQL.
//
// Every transition runs in one transaction, so files.location,
// files.current_holder and held_files change together or not at all.
// A failed COMMIT leaves the outcome unknown and is reported as
// errs.ErrPartialFailure; Reconcile repairs membership afterwards.
type MovementRepo struct{ db *DB }

// NewMovementRepo constructs a movement repository.
func NewMovementRepo(db *DB) *MovementRepo { return &MovementRepo{db: db} }

// errNotAvailable marks a conditional checkout that matched no row.
var errNotAvailable = errors.New("file not available")

var logTables = map[model.MovementLog]string{
	model.LogRequests: "file_requests",
	model.LogCharges:  "file_charges",
	model.LogReturns:  "file_returns",
}

func (r *MovementRepo) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("%w: commit: %v", errs.ErrPartialFailure, e)
		}
	}()
	return fn(tx)
}

// lockFile reads the movement state of a file under a row lock.
func lockFile(ctx context.Context, tx pgx.Tx, fileID uuid.UUID) (model.Location, uuid.NullUUID, error) {
	const q = `SELECT location, current_holder FROM files WHERE id=$1 FOR UPDATE`
	var (
		location string
		holder   uuid.NullUUID
	)
	if err := tx.QueryRow(ctx, q, fileID).Scan(&location, &holder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", holder, errs.ErrNotFound
		}
		return "", holder, err
	}
	return model.Location(location), holder, nil
}

// CheckOut claims an available file with a conditional update. Concurrent
// callers serialise on the row; all but the first match zero rows.
func (r *MovementRepo) CheckOut(ctx context.Context, fileID, userID uuid.UUID, at time.Time) (*model.File, error) {
	const upd = `
UPDATE files SET location='checked_out', current_holder=$2, updated_at=now()
WHERE id=$1 AND location='available' AND NOT trashed
RETURNING ` + fileCols
	const logReq = `INSERT INTO file_requests (file_id, user_id, at) VALUES ($1, $2, $3)`
	const hold = `
INSERT INTO held_files (file_id, user_id, since) VALUES ($1, $2, $3)
ON CONFLICT (file_id) DO UPDATE SET user_id=EXCLUDED.user_id, since=EXCLUDED.since`

	var out *model.File
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		f, err := scanFile(tx.QueryRow(ctx, upd, fileID, userID))
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return errNotAvailable
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: user", errs.ErrNotFound)
		case err != nil:
			return err
		}
		if _, err := tx.Exec(ctx, logReq, fileID, userID, at); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, hold, fileID, userID, at); err != nil {
			return err
		}
		out = f
		return nil
	})
	if errors.Is(err, errNotAvailable) {
		return nil, r.explainCheckOut(ctx, fileID)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// explainCheckOut tells apart a missing file, a trashed one and a held one
// after the conditional update matched nothing.
func (r *MovementRepo) explainCheckOut(ctx context.Context, fileID uuid.UUID) error {
	var (
		location string
		trashed  bool
	)
	err := r.db.Pool.QueryRow(ctx, `SELECT location, trashed FROM files WHERE id=$1`, fileID).Scan(&location, &trashed)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errs.ErrNotFound
	case err != nil:
		return err
	case trashed:
		return fmt.Errorf("%w: file is in the trash", errs.ErrValidation)
	default:
		return errs.ErrConflict
	}
}

// Transfer charges a checked-out file to another user.
func (r *MovementRepo) Transfer(ctx context.Context, c model.Charge) (*model.File, error) {
	const held = `SELECT EXISTS (SELECT 1 FROM held_files WHERE file_id=$1 AND user_id=$2)`
	const mailDir = `SELECT direction FROM mails WHERE id=$1`
	const comment = `
INSERT INTO mail_charge_comments (mail_id, from_label, to_label, comment, at)
VALUES ($1, $2, $3, $4, $5)`
	const logCharge = `
INSERT INTO file_charges (file_id, from_user_id, to_user_id, from_label, to_label, remark, page_index, document_id, document_type, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	const move = `
INSERT INTO held_files (file_id, user_id, since) VALUES ($1, $2, $3)
ON CONFLICT (file_id) DO UPDATE SET user_id=EXCLUDED.user_id, since=EXCLUDED.since`
	const setHolder = `UPDATE files SET current_holder=$2, updated_at=now() WHERE id=$1 RETURNING ` + fileCols

	var out *model.File
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		location, holder, err := lockFile(ctx, tx, c.FileID)
		if err != nil {
			return err
		}
		if location != model.LocationCheckedOut {
			return fmt.Errorf("%w: file is not checked out", errs.ErrConflict)
		}
		var already bool
		if err := tx.QueryRow(ctx, held, c.FileID, c.ToUserID).Scan(&already); err != nil {
			return err
		}
		if already {
			return errs.ErrAlreadyCharged
		}
		if !holder.Valid || holder.UUID != c.FromUserID {
			return fmt.Errorf("%w: file is not held by the charging user", errs.ErrConflict)
		}

		var docID uuid.NullUUID
		if c.DocumentID != nil {
			var dir string
			if err := tx.QueryRow(ctx, mailDir, *c.DocumentID).Scan(&dir); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("%w: document", errs.ErrNotFound)
				}
				return err
			}
			if c.DocumentType != "" && model.Direction(dir) != c.DocumentType {
				return fmt.Errorf("%w: document is %s mail", errs.ErrValidation, dir)
			}
			c.DocumentType = model.Direction(dir)
			docID = uuid.NullUUID{UUID: *c.DocumentID, Valid: true}
		}

		if _, err := tx.Exec(ctx, logCharge, c.FileID, c.FromUserID, c.ToUserID, c.FromLabel, c.ToLabel,
			c.Remark, c.PageIndex, docID, string(c.DocumentType), c.At); err != nil {
			return err
		}
		if docID.Valid {
			if _, err := tx.Exec(ctx, comment, docID.UUID, c.FromLabel, c.ToLabel, c.Remark, c.At); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, move, c.FileID, c.ToUserID, c.At); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: user", errs.ErrNotFound)
			}
			return err
		}
		f, err := scanFile(tx.QueryRow(ctx, setHolder, c.FileID, c.ToUserID))
		if err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckIn returns a checked-out file to the registry.
func (r *MovementRepo) CheckIn(ctx context.Context, fileID, userID uuid.UUID, at time.Time, requireHolder bool) (*model.File, error) {
	const logRet = `INSERT INTO file_returns (file_id, user_id, at) VALUES ($1, $2, $3)`
	const release = `DELETE FROM held_files WHERE file_id=$1`
	const upd = `
UPDATE files SET location='available', current_holder=NULL, updated_at=now()
WHERE id=$1
RETURNING ` + fileCols

	var out *model.File
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		location, holder, err := lockFile(ctx, tx, fileID)
		if err != nil {
			return err
		}
		if location != model.LocationCheckedOut {
			return fmt.Errorf("%w: file is already in the registry", errs.ErrConflict)
		}
		if requireHolder && (!holder.Valid || holder.UUID != userID) {
			return fmt.Errorf("%w: file is held by another user", errs.ErrConflict)
		}
		if _, err := tx.Exec(ctx, logRet, fileID, userID, at); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, release, fileID); err != nil {
			return err
		}
		f, err := scanFile(tx.QueryRow(ctx, upd, fileID))
		if err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearLog truncates one movement log; file state is untouched.
func (r *MovementRepo) ClearLog(ctx context.Context, fileID uuid.UUID, log model.MovementLog) error {
	table, ok := logTables[log]
	if !ok {
		return fmt.Errorf("%w: unknown log %q", errs.ErrValidation, log)
	}
	if err := r.fileExists(ctx, fileID); err != nil {
		return err
	}
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM `+table+` WHERE file_id=$1`, fileID)
	return err
}

func (r *MovementRepo) fileExists(ctx context.Context, fileID uuid.UUID) error {
	var one int
	if err := r.db.Pool.QueryRow(ctx, `SELECT 1 FROM files WHERE id=$1`, fileID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	return nil
}

// LastRequest returns the newest request entry of a file.
func (r *MovementRepo) LastRequest(ctx context.Context, fileID uuid.UUID) (*model.RequestEntry, error) {
	const q = `SELECT id, file_id, user_id, at FROM file_requests WHERE file_id=$1 ORDER BY id DESC LIMIT 1`
	var e model.RequestEntry
	if err := r.db.Pool.QueryRow(ctx, q, fileID).Scan(&e.ID, &e.FileID, &e.UserID, &e.At); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// History loads the three movement logs of a file.
func (r *MovementRepo) History(ctx context.Context, fileID uuid.UUID) (*model.Movements, error) {
	if err := r.fileExists(ctx, fileID); err != nil {
		return nil, err
	}
	h := &model.Movements{
		Requests: []model.RequestEntry{},
		Charges:  []model.ChargeEntry{},
		Returns:  []model.ReturnEntry{},
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT id, file_id, user_id, at FROM file_requests WHERE file_id=$1 ORDER BY id ASC`, fileID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var e model.RequestEntry
		if err := rows.Scan(&e.ID, &e.FileID, &e.UserID, &e.At); err != nil {
			rows.Close()
			return nil, err
		}
		h.Requests = append(h.Requests, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const charges = `
SELECT id, file_id, from_user_id, to_user_id, from_label, to_label, remark, page_index, document_id, document_type, at
FROM file_charges WHERE file_id=$1 ORDER BY id ASC`
	rows, err = r.db.Pool.Query(ctx, charges, fileID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			e       model.ChargeEntry
			doc     uuid.NullUUID
			docType string
		)
		if err := rows.Scan(&e.ID, &e.FileID, &e.FromUserID, &e.ToUserID, &e.FromLabel, &e.ToLabel,
			&e.Remark, &e.PageIndex, &doc, &docType, &e.At); err != nil {
			rows.Close()
			return nil, err
		}
		if doc.Valid {
			id := doc.UUID
			e.DocumentID = &id
		}
		e.DocumentType = model.Direction(docType)
		h.Charges = append(h.Charges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Pool.Query(ctx, `SELECT id, file_id, user_id, at FROM file_returns WHERE file_id=$1 ORDER BY id ASC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e model.ReturnEntry
		if err := rows.Scan(&e.ID, &e.FileID, &e.UserID, &e.At); err != nil {
			return nil, err
		}
		h.Returns = append(h.Returns, e)
	}
	return h, rows.Err()
}

// Reconcile makes held_files match files.current_holder.
func (r *MovementRepo) Reconcile(ctx context.Context) ([]model.Drift, error) {
	const stale = `
DELETE FROM held_files h USING files f
WHERE h.file_id = f.id AND (f.current_holder IS NULL OR f.current_holder <> h.user_id)
RETURNING h.file_id, h.user_id`
	const missing = `
INSERT INTO held_files (file_id, user_id, since)
SELECT f.id, f.current_holder, now() FROM files f
WHERE f.current_holder IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM held_files h WHERE h.file_id = f.id)
RETURNING file_id, user_id`

	drift := []model.Drift{}
	collect := func(rows pgx.Rows, action string) error {
		defer rows.Close()
		for rows.Next() {
			d := model.Drift{Action: action}
			if err := rows.Scan(&d.FileID, &d.UserID); err != nil {
				return err
			}
			drift = append(drift, d)
		}
		return rows.Err()
	}
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, stale)
		if err != nil {
			return err
		}
		if err := collect(rows, "removed"); err != nil {
			return err
		}
		rows, err = tx.Query(ctx, missing)
		if err != nil {
			return err
		}
		return collect(rows, "added")
	})
	if err != nil {
		return nil, err
	}
	return drift, nil
}
