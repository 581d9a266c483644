package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// FileRepo implements FileRepository using PostgreSQL.
type FileRepo struct{ db *DB }

// NewFileRepo constructs a file repository.
func NewFileRepo(db *DB) *FileRepo { return &FileRepo{db: db} }

const fileCols = `id, kind, title, file_number, paper_file_number, owning_unit, location, current_holder, trashed, created_at, updated_at`

var fileSort = map[string]string{
	"title":       "title",
	"file_number": "file_number",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
}

func scanFile(row pgx.Row) (*model.File, error) {
	var (
		f              model.File
		kind, location string
		holder         uuid.NullUUID
	)
	err := row.Scan(&f.ID, &kind, &f.Title, &f.FileNumber, &f.PaperFileNumber, &f.OwningUnit,
		&location, &holder, &f.Trashed, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	f.Kind = model.FileKind(kind)
	f.Location = model.Location(location)
	if holder.Valid {
		id := holder.UUID
		f.CurrentHolder = &id
	}
	return &f, nil
}

// Create inserts a new file; location starts as available.
func (r *FileRepo) Create(ctx context.Context, f *model.File) error {
	const q = `
INSERT INTO files (id, kind, title, file_number, paper_file_number, owning_unit)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, f.ID, string(f.Kind), f.Title, f.FileNumber, f.PaperFileNumber, f.OwningUnit)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: file number %s", errs.ErrAlreadyExists, f.FileNumber)
	}
	return err
}

// Get selects a file and its linked documents in filing order.
func (r *FileRepo) Get(ctx context.Context, id uuid.UUID) (*model.File, error) {
	f, err := scanFile(r.db.Pool.QueryRow(ctx, `SELECT `+fileCols+` FROM files WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT mail_id, direction FROM file_documents WHERE file_id=$1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	f.Incoming, f.Outgoing = []uuid.UUID{}, []uuid.UUID{}
	for rows.Next() {
		var (
			mid uuid.UUID
			dir string
		)
		if err := rows.Scan(&mid, &dir); err != nil {
			return nil, err
		}
		if model.Direction(dir) == model.Outgoing {
			f.Outgoing = append(f.Outgoing, mid)
		} else {
			f.Incoming = append(f.Incoming, mid)
		}
	}
	return f, rows.Err()
}

// List returns files of one kind matching the query.
func (r *FileRepo) List(ctx context.Context, kind model.FileKind, lq model.ListQuery) (model.Page[model.File], error) {
	const where = `
WHERE kind = $1 AND trashed = $2
  AND ($3 = '' OR title ILIKE $3 OR file_number ILIKE $3 OR paper_file_number ILIKE $3 OR owning_unit ILIKE $3)`
	limit, offset := pageBounds(lq)
	pat := likePattern(lq.Search)

	page := model.Page[model.File]{Items: []model.File{}}
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM files`+where, string(kind), lq.Trashed, pat).Scan(&page.Total); err != nil {
		return page, err
	}
	q := `SELECT ` + fileCols + ` FROM files` + where + orderBy(lq.Sort, fileSort, "created_at DESC, id ASC") + ` LIMIT $4 OFFSET $5`
	rows, err := r.db.Pool.Query(ctx, q, string(kind), lq.Trashed, pat, limit, offset)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, *f)
	}
	return page, rows.Err()
}

// Update applies a metadata patch. Location and holder are not reachable from here.
func (r *FileRepo) Update(ctx context.Context, id uuid.UUID, p model.FilePatch) (*model.File, error) {
	const q = `
UPDATE files SET
  title = COALESCE($2, title),
  file_number = COALESCE($3, file_number),
  paper_file_number = COALESCE($4, paper_file_number),
  owning_unit = COALESCE($5, owning_unit),
  updated_at = now()
WHERE id = $1
RETURNING ` + fileCols
	f, err := scanFile(r.db.Pool.QueryRow(ctx, q, id, p.Title, p.FileNumber, p.PaperFileNumber, p.OwningUnit))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: file number", errs.ErrAlreadyExists)
	}
	return f, err
}

// SetTrashed toggles files.trashed.
func (r *FileRepo) SetTrashed(ctx context.Context, id uuid.UUID, trashed bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE files SET trashed=$2, updated_at=now() WHERE id=$1`, id, trashed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes an available file; logs, documents and membership cascade.
func (r *FileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM files WHERE id=$1 AND location='available'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var location string
	if err := r.db.Pool.QueryRow(ctx, `SELECT location FROM files WHERE id=$1`, id).Scan(&location); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	return fmt.Errorf("%w: file is checked out", errs.ErrConflict)
}

// Counts reports registry totals for one kind.
func (r *FileRepo) Counts(ctx context.Context, kind model.FileKind) (model.FileCounts, error) {
	const q = `
SELECT count(*),
       count(*) FILTER (WHERE location = 'available' AND NOT trashed),
       count(*) FILTER (WHERE location = 'checked_out'),
       count(*) FILTER (WHERE trashed)
FROM files WHERE kind = $1`
	var c model.FileCounts
	err := r.db.Pool.QueryRow(ctx, q, string(kind)).Scan(&c.Total, &c.Available, &c.CheckedOut, &c.Trashed)
	return c, err
}

// AttachMail files a mail; the primary key makes a repeated attach a no-op.
func (r *FileRepo) AttachMail(ctx context.Context, fileID, mailID uuid.UUID, dir model.Direction) error {
	const q = `
INSERT INTO file_documents (file_id, mail_id, direction)
VALUES ($1, $2, $3)
ON CONFLICT (file_id, mail_id, direction) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, fileID, mailID, string(dir))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: file or mail", errs.ErrNotFound)
	}
	return err
}

// DetachMail removes the mail from both document lists of the file.
func (r *FileRepo) DetachMail(ctx context.Context, fileID, mailID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM file_documents WHERE file_id=$1 AND mail_id=$2`, fileID, mailID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var one int
	if err := r.db.Pool.QueryRow(ctx, `SELECT 1 FROM files WHERE id=$1`, fileID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	return nil
}
