package memory

import (
	"context"
	"strings"
	"time"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MailRepo implements repository.MailRepository.
type MailRepo struct{ s *Store }

var mailKeys = map[string]func(model.Mail) string{
	"subject": func(m model.Mail) string { return strings.ToLower(m.Subject) },
	"ref_no":  func(m model.Mail) string { return m.RefNo },
	"date_received": func(m model.Mail) string {
		if m.DateReceived == nil {
			return ""
		}
		return m.DateReceived.Format(sortTime)
	},
	"created_at": func(m model.Mail) string { return m.CreatedAt.Format(sortTime) },
}

func copyMail(m *model.Mail) *model.Mail {
	c := *m
	c.CC = append([]string{}, m.CC...)
	if m.DateReceived != nil {
		d := *m.DateReceived
		c.DateReceived = &d
	}
	c.ChargeComments = nil
	return &c
}

func (r *MailRepo) Create(_ context.Context, m *model.Mail) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c := copyMail(m)
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.mails[m.ID] = c
	m.CreatedAt, m.UpdatedAt = c.CreatedAt, c.UpdatedAt
	return nil
}

func (r *MailRepo) Get(_ context.Context, id uuid.UUID) (*model.Mail, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mails[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := copyMail(m)
	c.ChargeComments = append([]model.ChargeComment{}, s.comments[id]...)
	return c, nil
}

func (r *MailRepo) List(_ context.Context, dir model.Direction, q model.ListQuery) (model.Page[model.Mail], error) {
	s := r.s
	s.mu.Lock()
	all := byCreation(s.mails, func(m *model.Mail) time.Time { return m.CreatedAt }, func(m *model.Mail) uuid.UUID { return m.ID })
	s.mu.Unlock()

	sel := make([]model.Mail, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if (dir == "" || m.Direction == dir) && m.Trashed == q.Trashed {
			sel = append(sel, *copyMail(&m))
		}
	}
	return paginate(sel, q, func(m model.Mail, n string) bool {
		return containsFold(n, m.Subject, m.RefNo, m.Sender)
	}, mailKeys), nil
}

func (r *MailRepo) Update(_ context.Context, id uuid.UUID, p model.MailPatch) (*model.Mail, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mails[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if p.Type != nil {
		m.Type = *p.Type
	}
	set(&m.RefNo, p.RefNo)
	set(&m.Subject, p.Subject)
	set(&m.Sender, p.Sender)
	set(&m.SenderAddress, p.SenderAddress)
	set(&m.Receiver, p.Receiver)
	set(&m.ReceiverAddress, p.ReceiverAddress)
	set(&m.BodyText, p.BodyText)
	set(&m.FileNo, p.FileNo)
	if p.CC != nil {
		m.CC = append([]string{}, p.CC...)
	}
	if p.DateReceived != nil {
		d := *p.DateReceived
		m.DateReceived = &d
	}
	m.UpdatedAt = s.now()
	return copyMail(m), nil
}

func (r *MailRepo) SetTrashed(_ context.Context, id uuid.UUID, trashed bool) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mails[id]
	if !ok {
		return errs.ErrNotFound
	}
	m.Trashed, m.UpdatedAt = trashed, s.now()
	return nil
}

func (r *MailRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mails[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.mails, id)
	delete(s.comments, id)
	for fid, docs := range s.docs {
		kept := docs[:0]
		for _, d := range docs {
			if d.mailID != id {
				kept = append(kept, d)
			}
		}
		s.docs[fid] = kept
	}
	return nil
}
