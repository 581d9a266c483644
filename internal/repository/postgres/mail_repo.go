package postgres

import (
	"context"
	"errors"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MailRepo implements MailRepository using PostgreSQL.
type MailRepo struct{ db *DB }

// NewMailRepo constructs a mail repository.
func NewMailRepo(db *DB) *MailRepo { return &MailRepo{db: db} }

const mailCols = `id, direction, mail_type, ref_no, subject, sender, sender_address, receiver, receiver_address, cc, body_text, file_no, date_received, trashed, created_at, updated_at`

var mailSort = map[string]string{
	"subject":       "subject",
	"ref_no":        "ref_no",
	"date_received": "date_received",
	"created_at":    "created_at",
}

func scanMail(row pgx.Row) (*model.Mail, error) {
	var (
		m         model.Mail
		dir, kind string
	)
	err := row.Scan(&m.ID, &dir, &kind, &m.RefNo, &m.Subject, &m.Sender, &m.SenderAddress,
		&m.Receiver, &m.ReceiverAddress, &m.CC, &m.BodyText, &m.FileNo, &m.DateReceived,
		&m.Trashed, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	m.Direction = model.Direction(dir)
	m.Type = model.MailType(kind)
	if m.CC == nil {
		m.CC = []string{}
	}
	return &m, nil
}

// Create inserts a new mail.
func (r *MailRepo) Create(ctx context.Context, m *model.Mail) error {
	const q = `
INSERT INTO mails (id, direction, mail_type, ref_no, subject, sender, sender_address, receiver, receiver_address, cc, body_text, file_no, date_received)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	cc := m.CC
	if cc == nil {
		cc = []string{}
	}
	_, err := r.db.Pool.Exec(ctx, q, m.ID, string(m.Direction), string(m.Type), m.RefNo, m.Subject,
		m.Sender, m.SenderAddress, m.Receiver, m.ReceiverAddress, cc, m.BodyText, m.FileNo, m.DateReceived)
	return err
}

// Get selects a mail and its charge comments, oldest first.
func (r *MailRepo) Get(ctx context.Context, id uuid.UUID) (*model.Mail, error) {
	m, err := scanMail(r.db.Pool.QueryRow(ctx, `SELECT `+mailCols+` FROM mails WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	const q = `SELECT id, mail_id, from_label, to_label, comment, at FROM mail_charge_comments WHERE mail_id=$1 ORDER BY id ASC`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m.ChargeComments = []model.ChargeComment{}
	for rows.Next() {
		var c model.ChargeComment
		if err := rows.Scan(&c.ID, &c.MailID, &c.FromLabel, &c.ToLabel, &c.Comment, &c.At); err != nil {
			return nil, err
		}
		m.ChargeComments = append(m.ChargeComments, c)
	}
	return m, rows.Err()
}

// List returns a page of mails matching subject, reference or sender.
func (r *MailRepo) List(ctx context.Context, dir model.Direction, q model.ListQuery) (model.Page[model.Mail], error) {
	const where = ` WHERE ($1 = '' OR direction = $1) AND trashed = $2
  AND ($3 = '' OR subject ILIKE $3 OR ref_no ILIKE $3 OR sender ILIKE $3)`
	limit, offset := pageBounds(q)
	pattern := likePattern(q.Search)

	page := model.Page[model.Mail]{Items: []model.Mail{}}
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM mails`+where, string(dir), q.Trashed, pattern).Scan(&page.Total); err != nil {
		return page, err
	}
	sql := `SELECT ` + mailCols + ` FROM mails` + where +
		orderBy(q.Sort, mailSort, "created_at DESC, id ASC") + ` LIMIT $4 OFFSET $5`
	rows, err := r.db.Pool.Query(ctx, sql, string(dir), q.Trashed, pattern, limit, offset)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMail(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, *m)
	}
	return page, rows.Err()
}

// Update applies a partial edit. Direction is fixed at creation.
func (r *MailRepo) Update(ctx context.Context, id uuid.UUID, p model.MailPatch) (*model.Mail, error) {
	const q = `
UPDATE mails SET
  mail_type        = COALESCE($2, mail_type),
  ref_no           = COALESCE($3, ref_no),
  subject          = COALESCE($4, subject),
  sender           = COALESCE($5, sender),
  sender_address   = COALESCE($6, sender_address),
  receiver         = COALESCE($7, receiver),
  receiver_address = COALESCE($8, receiver_address),
  cc               = COALESCE($9, cc),
  body_text        = COALESCE($10, body_text),
  file_no          = COALESCE($11, file_no),
  date_received    = COALESCE($12, date_received),
  updated_at       = now()
WHERE id=$1
RETURNING ` + mailCols
	var kind *string
	if p.Type != nil {
		s := string(*p.Type)
		kind = &s
	}
	return scanMail(r.db.Pool.QueryRow(ctx, q, id, kind, p.RefNo, p.Subject, p.Sender, p.SenderAddress,
		p.Receiver, p.ReceiverAddress, p.CC, p.BodyText, p.FileNo, p.DateReceived))
}

// SetTrashed moves a mail in or out of the trash.
func (r *MailRepo) SetTrashed(ctx context.Context, id uuid.UUID, trashed bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE mails SET trashed=$2, updated_at=now() WHERE id=$1`, id, trashed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a mail together with its file links and comments.
func (r *MailRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM mails WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
