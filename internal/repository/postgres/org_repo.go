package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// DepartmentRepo implements DepartmentRepository using PostgreSQL.
type DepartmentRepo struct{ db *DB }

// NewDepartmentRepo constructs a department repository.
func NewDepartmentRepo(db *DB) *DepartmentRepo { return &DepartmentRepo{db: db} }

const deptCols = `id, name, short_name, created_at, updated_at`

var orgSort = map[string]string{
	"name":       "name",
	"short_name": "short_name",
	"created_at": "created_at",
}

func scanDepartment(row pgx.Row) (*model.Department, error) {
	var d model.Department
	if err := row.Scan(&d.ID, &d.Name, &d.ShortName, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DepartmentRepo) Create(ctx context.Context, d *model.Department) error {
	_, err := r.db.Pool.Exec(ctx, `INSERT INTO departments (id, name, short_name) VALUES ($1, $2, $3)`, d.ID, d.Name, d.ShortName)
	return err
}

func (r *DepartmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	return scanDepartment(r.db.Pool.QueryRow(ctx, `SELECT `+deptCols+` FROM departments WHERE id=$1`, id))
}

func (r *DepartmentRepo) List(ctx context.Context, q model.ListQuery) (model.Page[model.Department], error) {
	const where = ` WHERE ($1 = '' OR name ILIKE $1 OR short_name ILIKE $1)`
	limit, offset := pageBounds(q)
	pattern := likePattern(q.Search)

	page := model.Page[model.Department]{Items: []model.Department{}}
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM departments`+where, pattern).Scan(&page.Total); err != nil {
		return page, err
	}
	sql := `SELECT ` + deptCols + ` FROM departments` + where + orderBy(q.Sort, orgSort, "name ASC, id ASC") + ` LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, sql, pattern, limit, offset)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, *d)
	}
	return page, rows.Err()
}

func (r *DepartmentRepo) Update(ctx context.Context, d *model.Department) error {
	const q = `UPDATE departments SET name=$2, short_name=$3, updated_at=now() WHERE id=$1 RETURNING ` + deptCols
	got, err := scanDepartment(r.db.Pool.QueryRow(ctx, q, d.ID, d.Name, d.ShortName))
	if err != nil {
		return err
	}
	*d = *got
	return nil
}

func (r *DepartmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM departments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MDARepo implements MDARepository using PostgreSQL.
// Embedded departments live in a jsonb array.
type MDARepo struct{ db *DB }

// NewMDARepo constructs an MDA repository.
func NewMDARepo(db *DB) *MDARepo { return &MDARepo{db: db} }

const mdaCols = `id, name, short_name, departments, created_at, updated_at`

func scanMDA(row pgx.Row) (*model.MDA, error) {
	var (
		m     model.MDA
		depts []byte
	)
	if err := row.Scan(&m.ID, &m.Name, &m.ShortName, &depts, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	m.Departments = []model.MDADepartment{}
	if len(depts) > 0 {
		if err := json.Unmarshal(depts, &m.Departments); err != nil {
			return nil, fmt.Errorf("decode departments: %w", err)
		}
	}
	return &m, nil
}

func (r *MDARepo) Create(ctx context.Context, m *model.MDA) error {
	depts := m.Departments
	if depts == nil {
		depts = []model.MDADepartment{}
	}
	raw, err := json.Marshal(depts)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, `INSERT INTO mdas (id, name, short_name, departments) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Name, m.ShortName, raw)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: mda %s", errs.ErrAlreadyExists, m.ShortName)
	}
	return err
}

func (r *MDARepo) Get(ctx context.Context, id uuid.UUID) (*model.MDA, error) {
	return scanMDA(r.db.Pool.QueryRow(ctx, `SELECT `+mdaCols+` FROM mdas WHERE id=$1`, id))
}

func (r *MDARepo) List(ctx context.Context, q model.ListQuery) (model.Page[model.MDA], error) {
	const where = ` WHERE ($1 = '' OR name ILIKE $1 OR short_name ILIKE $1)`
	limit, offset := pageBounds(q)
	pattern := likePattern(q.Search)

	page := model.Page[model.MDA]{Items: []model.MDA{}}
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM mdas`+where, pattern).Scan(&page.Total); err != nil {
		return page, err
	}
	sql := `SELECT ` + mdaCols + ` FROM mdas` + where + orderBy(q.Sort, orgSort, "name ASC, id ASC") + ` LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, sql, pattern, limit, offset)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMDA(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, *m)
	}
	return page, rows.Err()
}

func (r *MDARepo) Update(ctx context.Context, m *model.MDA) error {
	const q = `UPDATE mdas SET name=$2, short_name=$3, updated_at=now() WHERE id=$1 RETURNING ` + mdaCols
	got, err := scanMDA(r.db.Pool.QueryRow(ctx, q, m.ID, m.Name, m.ShortName))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: mda %s", errs.ErrAlreadyExists, m.ShortName)
	}
	if err != nil {
		return err
	}
	*m = *got
	return nil
}

func (r *MDARepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM mdas WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AddDepartment appends a department unless one with the same short name exists.
func (r *MDARepo) AddDepartment(ctx context.Context, id uuid.UUID, d model.MDADepartment) (*model.MDA, error) {
	const q = `
UPDATE mdas SET departments = departments || $2::jsonb, updated_at=now()
WHERE id=$1 AND NOT departments @> $3::jsonb
RETURNING ` + mdaCols
	entry, err := json.Marshal([]model.MDADepartment{d})
	if err != nil {
		return nil, err
	}
	match, err := json.Marshal([]map[string]string{{"short_name": d.ShortName}})
	if err != nil {
		return nil, err
	}
	m, err := scanMDA(r.db.Pool.QueryRow(ctx, q, id, entry, match))
	if errors.Is(err, errs.ErrNotFound) {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("%w: department %s", errs.ErrAlreadyExists, d.ShortName)
	}
	return m, err
}

// RemoveDepartment drops every embedded department with the given short name.
func (r *MDARepo) RemoveDepartment(ctx context.Context, id uuid.UUID, shortName string) (*model.MDA, error) {
	const q = `
UPDATE mdas SET departments = COALESCE(
    (SELECT jsonb_agg(d) FROM jsonb_array_elements(departments) d WHERE d->>'short_name' <> $2),
    '[]'::jsonb), updated_at=now()
WHERE id=$1
RETURNING ` + mdaCols
	return scanMDA(r.db.Pool.QueryRow(ctx, q, id, shortName))
}
