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

// OrgService manages departments and MDAs.
type OrgService interface {
	CreateDepartment(ctx context.Context, d model.Department) (*model.Department, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error)
	ListDepartments(ctx context.Context, q model.ListQuery) (model.Page[model.Department], error)
	UpdateDepartment(ctx context.Context, d model.Department) (*model.Department, error)
	DeleteDepartment(ctx context.Context, id uuid.UUID) error

	CreateMDA(ctx context.Context, m model.MDA) (*model.MDA, error)
	GetMDA(ctx context.Context, id uuid.UUID) (*model.MDA, error)
	ListMDAs(ctx context.Context, q model.ListQuery) (model.Page[model.MDA], error)
	UpdateMDA(ctx context.Context, m model.MDA) (*model.MDA, error)
	DeleteMDA(ctx context.Context, id uuid.UUID) error
	AddMDADepartment(ctx context.Context, id uuid.UUID, d model.MDADepartment) (*model.MDA, error)
	RemoveMDADepartment(ctx context.Context, id uuid.UUID, shortName string) (*model.MDA, error)
}

type OrgServiceImpl struct {
	departments repository.DepartmentRepository
	mdas        repository.MDARepository
	policy      *policy.Policy
}

// NewOrgService constructs OrgService.
func NewOrgService(departments repository.DepartmentRepository, mdas repository.MDARepository, p *policy.Policy) *OrgServiceImpl {
	return &OrgServiceImpl{departments: departments, mdas: mdas, policy: p}
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", errs.ErrValidation)
	}
	return nil
}

func (s *OrgServiceImpl) CreateDepartment(ctx context.Context, d model.Department) (*model.Department, error) {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return nil, err
	}
	if err := requireName(d.Name); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	d.ID = id
	if err := s.departments.Create(ctx, &d); err != nil {
		return nil, err
	}
	return s.departments.Get(ctx, id)
}

func (s *OrgServiceImpl) GetDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return nil, err
	}
	return s.departments.Get(ctx, id)
}

func (s *OrgServiceImpl) ListDepartments(ctx context.Context, q model.ListQuery) (model.Page[model.Department], error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.Page[model.Department]{}, err
	}
	return s.departments.List(ctx, q)
}

func (s *OrgServiceImpl) UpdateDepartment(ctx context.Context, d model.Department) (*model.Department, error) {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return nil, err
	}
	if err := requireName(d.Name); err != nil {
		return nil, err
	}
	if err := s.departments.Update(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *OrgServiceImpl) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return err
	}
	return s.departments.Delete(ctx, id)
}

func (s *OrgServiceImpl) CreateMDA(ctx context.Context, m model.MDA) (*model.MDA, error) {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return nil, err
	}
	if err := requireName(m.Name); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, d := range m.Departments {
		if err := requireName(d.Name); err != nil {
			return nil, err
		}
		if seen[d.ShortName] {
			return nil, fmt.Errorf("%w: duplicate department %q", errs.ErrValidation, d.ShortName)
		}
		seen[d.ShortName] = true
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	m.ID = id
	if err := s.mdas.Create(ctx, &m); err != nil {
		return nil, err
	}
	return s.mdas.Get(ctx, id)
}

func (s *OrgServiceImpl) GetMDA(ctx context.Context, id uuid.UUID) (*model.MDA, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return nil, err
	}
	return s.mdas.Get(ctx, id)
}

func (s *OrgServiceImpl) ListMDAs(ctx context.Context, q model.ListQuery) (model.Page[model.MDA], error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.Page[model.MDA]{}, err
	}
	return s.mdas.List(ctx, q)
}

func (s *OrgServiceImpl) UpdateMDA(ctx context.Context, m model.MDA) (*model.MDA, error) {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return nil, err
	}
	if err := requireName(m.Name); err != nil {
		return nil, err
	}
	if err := s.mdas.Update(ctx, &m); err != nil {
		return nil, err
	}
	return s.mdas.Get(ctx, m.ID)
}

func (s *OrgServiceImpl) DeleteMDA(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return err
	}
	return s.mdas.Delete(ctx, id)
}

func (s *OrgServiceImpl) AddMDADepartment(ctx context.Context, id uuid.UUID, d model.MDADepartment) (*model.MDA, error) {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return nil, err
	}
	if err := requireName(d.Name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.ShortName) == "" {
		return nil, fmt.Errorf("%w: short name is required", errs.ErrValidation)
	}
	return s.mdas.AddDepartment(ctx, id, d)
}

func (s *OrgServiceImpl) RemoveMDADepartment(ctx context.Context, id uuid.UUID, shortName string) (*model.MDA, error) {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return nil, err
	}
	return s.mdas.RemoveDepartment(ctx, id, shortName)
}
