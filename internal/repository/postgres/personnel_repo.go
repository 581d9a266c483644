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

// PersonnelRepo implements PersonnelRepository using PostgreSQL.
type PersonnelRepo struct{ db *DB }

// NewPersonnelRepo constructs a personnel repository.
func NewPersonnelRepo(db *DB) *PersonnelRepo { return &PersonnelRepo{db: db} }

const personnelCols = `id, emp_no, surname, firstname, personal_info, nok_info, emp_info, qualifications, leaves, promotions, queries, created_at, updated_at`

var personnelSort = map[string]string{
	"emp_no":     "emp_no",
	"surname":    "surname",
	"firstname":  "firstname",
	"created_at": "created_at",
}

var historyColumns = map[model.PersonnelHistory]string{
	model.HistoryQualifications: "qualifications",
	model.HistoryLeaves:         "leaves",
	model.HistoryPromotions:     "promotions",
	model.HistoryQueries:        "queries",
}

func scanPersonnel(row pgx.Row) (*model.Personnel, error) {
	var (
		p   model.Personnel
		raw [7][]byte
	)
	err := row.Scan(&p.ID, &p.EmpNo, &p.Surname, &p.Firstname,
		&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6],
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	p.Qualifications = []model.Qualification{}
	p.Leaves = []model.Leave{}
	p.Promotions = []model.Promotion{}
	p.Queries = []model.Query{}
	targets := []any{&p.PersonalInfo, &p.NextOfKin, &p.Employment, &p.Qualifications, &p.Leaves, &p.Promotions, &p.Queries}
	for i, b := range raw {
		if len(b) == 0 {
			continue
		}
		if err := json.Unmarshal(b, targets[i]); err != nil {
			return nil, fmt.Errorf("decode personnel: %w", err)
		}
	}
	return &p, nil
}

// personnelDocs encodes the JSON columns in column order.
func personnelDocs(p *model.Personnel) ([][]byte, error) {
	parts := []any{p.PersonalInfo, p.NextOfKin, p.Employment,
		nonNil(p.Qualifications), nonNil(p.Leaves), nonNil(p.Promotions), nonNil(p.Queries)}
	out := make([][]byte, len(parts))
	for i, v := range parts {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r *PersonnelRepo) Create(ctx context.Context, p *model.Personnel) error {
	const q = `
INSERT INTO personnels (id, emp_no, surname, firstname, personal_info, nok_info, emp_info, qualifications, leaves, promotions, queries)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	docs, err := personnelDocs(p)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, q, p.ID, p.EmpNo, p.Surname, p.Firstname,
		docs[0], docs[1], docs[2], docs[3], docs[4], docs[5], docs[6])
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: employee number %s", errs.ErrAlreadyExists, p.EmpNo)
	}
	return err
}

func (r *PersonnelRepo) Get(ctx context.Context, id uuid.UUID) (*model.Personnel, error) {
	return scanPersonnel(r.db.Pool.QueryRow(ctx, `SELECT `+personnelCols+` FROM personnels WHERE id=$1`, id))
}

func (r *PersonnelRepo) List(ctx context.Context, q model.ListQuery) (model.Page[model.Personnel], error) {
	const where = ` WHERE ($1 = '' OR emp_no ILIKE $1 OR surname ILIKE $1 OR firstname ILIKE $1)`
	limit, offset := pageBounds(q)
	pattern := likePattern(q.Search)

	page := model.Page[model.Personnel]{Items: []model.Personnel{}}
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM personnels`+where, pattern).Scan(&page.Total); err != nil {
		return page, err
	}
	sql := `SELECT ` + personnelCols + ` FROM personnels` + where +
		orderBy(q.Sort, personnelSort, "surname ASC, id ASC") + ` LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, sql, pattern, limit, offset)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPersonnel(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, *p)
	}
	return page, rows.Err()
}

func (r *PersonnelRepo) Update(ctx context.Context, p *model.Personnel) error {
	const q = `
UPDATE personnels SET emp_no=$2, surname=$3, firstname=$4, personal_info=$5, nok_info=$6, emp_info=$7,
  qualifications=$8, leaves=$9, promotions=$10, queries=$11, updated_at=now()
WHERE id=$1
RETURNING ` + personnelCols
	docs, err := personnelDocs(p)
	if err != nil {
		return err
	}
	got, err := scanPersonnel(r.db.Pool.QueryRow(ctx, q, p.ID, p.EmpNo, p.Surname, p.Firstname,
		docs[0], docs[1], docs[2], docs[3], docs[4], docs[5], docs[6]))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: employee number %s", errs.ErrAlreadyExists, p.EmpNo)
	}
	if err != nil {
		return err
	}
	*p = *got
	return nil
}

func (r *PersonnelRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM personnels WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AppendHistory appends entry to one history array in a single statement.
func (r *PersonnelRepo) AppendHistory(ctx context.Context, id uuid.UUID, h model.PersonnelHistory, entry []byte) (*model.Personnel, error) {
	col, ok := historyColumns[h]
	if !ok {
		return nil, fmt.Errorf("%w: unknown history %q", errs.ErrValidation, h)
	}
	q := `UPDATE personnels SET ` + col + ` = ` + col + ` || jsonb_build_array($2::jsonb), updated_at=now()
WHERE id=$1
RETURNING ` + personnelCols
	return scanPersonnel(r.db.Pool.QueryRow(ctx, q, id, entry))
}
