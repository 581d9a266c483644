package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DepartmentRepo implements repository.DepartmentRepository.
type DepartmentRepo struct{ s *Store }

func (r *DepartmentRepo) Create(_ context.Context, d *model.Department) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *d
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.departments[d.ID] = &c
	*d = c
	return nil
}

func (r *DepartmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Department, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departments[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (r *DepartmentRepo) List(_ context.Context, q model.ListQuery) (model.Page[model.Department], error) {
	s := r.s
	s.mu.Lock()
	all := byCreation(s.departments, func(d *model.Department) time.Time { return d.CreatedAt }, func(d *model.Department) uuid.UUID { return d.ID })
	s.mu.Unlock()
	if q.Sort == "" {
		q.Sort = "name"
	}
	return paginate(all, q, func(d model.Department, n string) bool {
		return containsFold(n, d.Name, d.ShortName)
	}, map[string]func(model.Department) string{
		"name":       func(d model.Department) string { return strings.ToLower(d.Name) },
		"short_name": func(d model.Department) string { return d.ShortName },
		"created_at": func(d model.Department) string { return d.CreatedAt.Format(sortTime) },
	}), nil
}

func (r *DepartmentRepo) Update(_ context.Context, d *model.Department) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.departments[d.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Name, cur.ShortName, cur.UpdatedAt = d.Name, d.ShortName, s.now()
	*d = *cur
	return nil
}

func (r *DepartmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.departments, id)
	return nil
}

// MDARepo implements repository.MDARepository.
type MDARepo struct{ s *Store }

func copyMDA(m *model.MDA) *model.MDA {
	c := *m
	c.Departments = append([]model.MDADepartment{}, m.Departments...)
	return &c
}

func (r *MDARepo) Create(_ context.Context, m *model.MDA) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.mdas {
		if o.ShortName == m.ShortName {
			return fmt.Errorf("%w: mda %s", errs.ErrAlreadyExists, m.ShortName)
		}
	}
	c := copyMDA(m)
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.mdas[m.ID] = c
	m.CreatedAt, m.UpdatedAt, m.Departments = c.CreatedAt, c.UpdatedAt, copyMDA(c).Departments
	return nil
}

func (r *MDARepo) Get(_ context.Context, id uuid.UUID) (*model.MDA, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mdas[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return copyMDA(m), nil
}

func (r *MDARepo) List(_ context.Context, q model.ListQuery) (model.Page[model.MDA], error) {
	s := r.s
	s.mu.Lock()
	all := byCreation(s.mdas, func(m *model.MDA) time.Time { return m.CreatedAt }, func(m *model.MDA) uuid.UUID { return m.ID })
	s.mu.Unlock()
	for i := range all {
		all[i] = *copyMDA(&all[i])
	}
	if q.Sort == "" {
		q.Sort = "name"
	}
	return paginate(all, q, func(m model.MDA, n string) bool {
		return containsFold(n, m.Name, m.ShortName)
	}, map[string]func(model.MDA) string{
		"name":       func(m model.MDA) string { return strings.ToLower(m.Name) },
		"short_name": func(m model.MDA) string { return m.ShortName },
		"created_at": func(m model.MDA) string { return m.CreatedAt.Format(sortTime) },
	}), nil
}

func (r *MDARepo) Update(_ context.Context, m *model.MDA) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.mdas[m.ID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, o := range s.mdas {
		if o.ID != m.ID && o.ShortName == m.ShortName {
			return fmt.Errorf("%w: mda %s", errs.ErrAlreadyExists, m.ShortName)
		}
	}
	cur.Name, cur.ShortName, cur.UpdatedAt = m.Name, m.ShortName, s.now()
	*m = *copyMDA(cur)
	return nil
}

func (r *MDARepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mdas[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.mdas, id)
	return nil
}

func (r *MDARepo) AddDepartment(_ context.Context, id uuid.UUID, d model.MDADepartment) (*model.MDA, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mdas[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	for _, o := range m.Departments {
		if o.ShortName == d.ShortName {
			return nil, fmt.Errorf("%w: department %s", errs.ErrAlreadyExists, d.ShortName)
		}
	}
	m.Departments = append(m.Departments, d)
	m.UpdatedAt = s.now()
	return copyMDA(m), nil
}

func (r *MDARepo) RemoveDepartment(_ context.Context, id uuid.UUID, shortName string) (*model.MDA, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mdas[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	kept := []model.MDADepartment{}
	for _, o := range m.Departments {
		if o.ShortName != shortName {
			kept = append(kept, o)
		}
	}
	m.Departments, m.UpdatedAt = kept, s.now()
	return copyMDA(m), nil
}

// PersonnelRepo implements repository.PersonnelRepository.
// Records are stored as JSON so reads never alias stored slices.
type PersonnelRepo struct{ s *Store }

func clonePersonnel(p *model.Personnel) (*model.Personnel, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var c model.Personnel
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PersonnelRepo) Create(_ context.Context, p *model.Personnel) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.personnel {
		if o.EmpNo == p.EmpNo {
			return fmt.Errorf("%w: employee number %s", errs.ErrAlreadyExists, p.EmpNo)
		}
	}
	p.CreatedAt, p.UpdatedAt = s.now(), s.now()
	c, err := clonePersonnel(p)
	if err != nil {
		return err
	}
	s.personnel[p.ID] = c
	return nil
}

func (r *PersonnelRepo) Get(_ context.Context, id uuid.UUID) (*model.Personnel, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.personnel[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clonePersonnel(p)
}

func (r *PersonnelRepo) List(_ context.Context, q model.ListQuery) (model.Page[model.Personnel], error) {
	s := r.s
	s.mu.Lock()
	all := byCreation(s.personnel, func(p *model.Personnel) time.Time { return p.CreatedAt }, func(p *model.Personnel) uuid.UUID { return p.ID })
	s.mu.Unlock()
	if q.Sort == "" {
		q.Sort = "surname"
	}
	return paginate(all, q, func(p model.Personnel, n string) bool {
		return containsFold(n, p.EmpNo, p.Surname, p.Firstname)
	}, map[string]func(model.Personnel) string{
		"emp_no":     func(p model.Personnel) string { return p.EmpNo },
		"surname":    func(p model.Personnel) string { return strings.ToLower(p.Surname) },
		"firstname":  func(p model.Personnel) string { return strings.ToLower(p.Firstname) },
		"created_at": func(p model.Personnel) string { return p.CreatedAt.Format(sortTime) },
	}), nil
}

func (r *PersonnelRepo) Update(_ context.Context, p *model.Personnel) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.personnel[p.ID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, o := range s.personnel {
		if o.ID != p.ID && o.EmpNo == p.EmpNo {
			return fmt.Errorf("%w: employee number %s", errs.ErrAlreadyExists, p.EmpNo)
		}
	}
	p.CreatedAt, p.UpdatedAt = cur.CreatedAt, s.now()
	c, err := clonePersonnel(p)
	if err != nil {
		return err
	}
	s.personnel[p.ID] = c
	return nil
}

func (r *PersonnelRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.personnel[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.personnel, id)
	return nil
}

func (r *PersonnelRepo) AppendHistory(_ context.Context, id uuid.UUID, h model.PersonnelHistory, entry []byte) (*model.Personnel, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("%w: unknown history %q", errs.ErrValidation, h)
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.personnel[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	var err error
	switch h {
	case model.HistoryQualifications:
		p.Qualifications, err = appendJSON(p.Qualifications, entry)
	case model.HistoryLeaves:
		p.Leaves, err = appendJSON(p.Leaves, entry)
	case model.HistoryPromotions:
		p.Promotions, err = appendJSON(p.Promotions, entry)
	case model.HistoryQueries:
		p.Queries, err = appendJSON(p.Queries, entry)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	p.UpdatedAt = s.now()
	return clonePersonnel(p)
}

func appendJSON[T any](list []T, entry []byte) ([]T, error) {
	var v T
	if err := json.Unmarshal(entry, &v); err != nil {
		return list, err
	}
	return append(list, v), nil
}
