package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/repository"
)

// PersonnelService manages staff records.
type PersonnelService interface {
	Create(ctx context.Context, p model.Personnel) (*model.Personnel, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Personnel, error)
	List(ctx context.Context, q model.ListQuery) (model.Page[model.Personnel], error)
	Update(ctx context.Context, p model.Personnel) (*model.Personnel, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// AppendHistory decodes entry as the record type of h and appends it.
	AppendHistory(ctx context.Context, id uuid.UUID, h model.PersonnelHistory, entry json.RawMessage) (*model.Personnel, error)
}

type PersonnelServiceImpl struct {
	personnel repository.PersonnelRepository
	policy    *policy.Policy
}

// NewPersonnelService constructs PersonnelService.
func NewPersonnelService(personnel repository.PersonnelRepository, p *policy.Policy) *PersonnelServiceImpl {
	return &PersonnelServiceImpl{personnel: personnel, policy: p}
}

func validatePersonnel(p *model.Personnel) error {
	p.EmpNo, p.Surname = strings.TrimSpace(p.EmpNo), strings.TrimSpace(p.Surname)
	if p.EmpNo == "" || p.Surname == "" {
		return fmt.Errorf("%w: employee number and surname are required", errs.ErrValidation)
	}
	return nil
}

func (s *PersonnelServiceImpl) Create(ctx context.Context, p model.Personnel) (*model.Personnel, error) {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return nil, err
	}
	if err := validatePersonnel(&p); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p.ID = id
	if err := s.personnel.Create(ctx, &p); err != nil {
		return nil, err
	}
	return s.personnel.Get(ctx, id)
}

func (s *PersonnelServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Personnel, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return nil, err
	}
	return s.personnel.Get(ctx, id)
}

func (s *PersonnelServiceImpl) List(ctx context.Context, q model.ListQuery) (model.Page[model.Personnel], error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.Page[model.Personnel]{}, err
	}
	return s.personnel.List(ctx, q)
}

func (s *PersonnelServiceImpl) Update(ctx context.Context, p model.Personnel) (*model.Personnel, error) {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return nil, err
	}
	if err := validatePersonnel(&p); err != nil {
		return nil, err
	}
	if err := s.personnel.Update(ctx, &p); err != nil {
		return nil, err
	}
	return s.personnel.Get(ctx, p.ID)
}

func (s *PersonnelServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return err
	}
	return s.personnel.Delete(ctx, id)
}

func (s *PersonnelServiceImpl) AppendHistory(ctx context.Context, id uuid.UUID, h model.PersonnelHistory, entry json.RawMessage) (*model.Personnel, error) {
	if _, err := s.policy.Require(ctx, policy.Registry); err != nil {
		return nil, err
	}
	var rec any
	switch h {
	case model.HistoryQualifications:
		rec = &model.Qualification{}
	case model.HistoryLeaves:
		rec = &model.Leave{}
	case model.HistoryPromotions:
		rec = &model.Promotion{}
	case model.HistoryQueries:
		rec = &model.Query{}
	default:
		return nil, fmt.Errorf("%w: unknown history %q", errs.ErrValidation, h)
	}
	dec := json.NewDecoder(bytes.NewReader(entry))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, fmt.Errorf("%w: %s entry: %v", errs.ErrValidation, h, err)
	}
	if q, ok := rec.(*model.Qualification); ok && strings.TrimSpace(q.Title) == "" {
		return nil, fmt.Errorf("%w: qualification title is required", errs.ErrValidation)
	}
	normalized, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return s.personnel.AppendHistory(ctx, id, h, normalized)
}
