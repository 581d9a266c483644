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

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, email, pwd_hash, salt_auth, surname, firstname, post, mda, department, role, deactivated, created_at, updated_at`

var userSort = map[string]string{
	"surname":    "surname",
	"email":      "email",
	"role":       "role",
	"created_at": "created_at",
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PwdHash, &u.SaltAuth, &u.Surname, &u.Firstname,
		&u.Post, &u.MDA, &u.Department, &role, &u.Deactivated, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, pwd_hash, salt_auth, surname, firstname, post, mda, department, role)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Email, u.PwdHash, u.SaltAuth, u.Surname, u.Firstname,
		u.Post, u.MDA, u.Department, string(u.Role))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email %s", errs.ErrAlreadyExists, u.Email)
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

// List returns users matching the query; Trashed selects deactivated accounts.
func (r *UserRepo) List(ctx context.Context, lq model.ListQuery) (model.Page[model.User], error) {
	const where = `
WHERE deactivated = $1
  AND ($2 = '' OR surname ILIKE $2 OR firstname ILIKE $2 OR email ILIKE $2 OR post ILIKE $2 OR department ILIKE $2)`
	limit, offset := pageBounds(lq)
	pat := likePattern(lq.Search)

	page := model.Page[model.User]{Items: []model.User{}}
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM users`+where, lq.Trashed, pat).Scan(&page.Total); err != nil {
		return page, err
	}
	q := `SELECT ` + userCols + ` FROM users` + where + orderBy(lq.Sort, userSort, "surname ASC, id ASC") + ` LIMIT $3 OFFSET $4`
	rows, err := r.db.Pool.Query(ctx, q, lq.Trashed, pat, limit, offset)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, *u)
	}
	return page, rows.Err()
}

// Update applies a profile patch; nil fields keep their value.
func (r *UserRepo) Update(ctx context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error) {
	const q = `
UPDATE users SET
  surname = COALESCE($2, surname),
  firstname = COALESCE($3, firstname),
  post = COALESCE($4, post),
  mda = COALESCE($5, mda),
  department = COALESCE($6, department),
  updated_at = now()
WHERE id = $1
RETURNING ` + userCols
	return scanUser(r.db.Pool.QueryRow(ctx, q, id, p.Surname, p.Firstname, p.Post, p.MDA, p.Department))
}

// SetRole changes users.role.
func (r *UserRepo) SetRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET role=$2, updated_at=now() WHERE id=$1`, id, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetDeactivated toggles users.deactivated.
// SetPassword replaces the password hash and salt.
func (r *UserRepo) SetPassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET pwd_hash=$2, salt_auth=$3, updated_at=now() WHERE id=$1`, id, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *UserRepo) SetDeactivated(ctx context.Context, id uuid.UUID, deactivated bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET deactivated=$2, updated_at=now() WHERE id=$1`, id, deactivated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the user row. Held files keep a foreign key on the user,
// so deleting a holder fails with ErrConflict.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: user still holds files", errs.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// HeldFiles lists file ids in the user's membership rows, oldest first.
func (r *UserRepo) HeldFiles(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT file_id FROM held_files WHERE user_id=$1 ORDER BY since ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []uuid.UUID{}
	for rows.Next() {
		var fid uuid.UUID
		if err := rows.Scan(&fid); err != nil {
			return nil, err
		}
		out = append(out, fid)
	}
	return out, rows.Err()
}
