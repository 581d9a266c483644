package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/repository"
)

// MailService manages correspondence records.
type MailService interface {
	Create(ctx context.Context, m model.Mail) (*model.Mail, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Mail, error)
	List(ctx context.Context, dir model.Direction, q model.ListQuery) (model.Page[model.Mail], error)
	Update(ctx context.Context, id uuid.UUID, p model.MailPatch) (*model.Mail, error)
	Trash(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type MailServiceImpl struct {
	mails  repository.MailRepository
	policy *policy.Policy
}

// NewMailService constructs MailService.
func NewMailService(mails repository.MailRepository, p *policy.Policy) *MailServiceImpl {
	return &MailServiceImpl{mails: mails, policy: p}
}

func (s *MailServiceImpl) Create(ctx context.Context, m model.Mail) (*model.Mail, error) {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return nil, err
	}
	if !m.Direction.Valid() {
		return nil, fmt.Errorf("%w: direction must be incoming or outgoing", errs.ErrValidation)
	}
	if m.Type == "" {
		m.Type = model.MailLetter
	}
	if !m.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown mail type %q", errs.ErrValidation, m.Type)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	m.ID, m.Trashed, m.ChargeComments = id, false, nil
	if err := s.mails.Create(ctx, &m); err != nil {
		return nil, err
	}
	return s.mails.Get(ctx, id)
}

func (s *MailServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Mail, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return nil, err
	}
	return s.mails.Get(ctx, id)
}

func (s *MailServiceImpl) List(ctx context.Context, dir model.Direction, q model.ListQuery) (model.Page[model.Mail], error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.Page[model.Mail]{}, err
	}
	if dir != "" && !dir.Valid() {
		return model.Page[model.Mail]{}, fmt.Errorf("%w: unknown direction %q", errs.ErrValidation, dir)
	}
	return s.mails.List(ctx, dir, q)
}

func (s *MailServiceImpl) Update(ctx context.Context, id uuid.UUID, p model.MailPatch) (*model.Mail, error) {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return nil, err
	}
	if p.Type != nil && !p.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown mail type %q", errs.ErrValidation, *p.Type)
	}
	if p.Subject != nil && strings.TrimSpace(*p.Subject) == "" {
		return nil, fmt.Errorf("%w: subject cannot be blank", errs.ErrValidation)
	}
	return s.mails.Update(ctx, id, p)
}

func (s *MailServiceImpl) Trash(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return err
	}
	return s.mails.SetTrashed(ctx, id, true)
}

func (s *MailServiceImpl) Restore(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return err
	}
	return s.mails.SetTrashed(ctx, id, false)
}

func (s *MailServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return err
	}
	return s.mails.Delete(ctx, id)
}
