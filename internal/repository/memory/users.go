package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements repository.UserRepository.
type UserRepo struct{ s *Store }

var userKeys = map[string]func(model.User) string{
	"surname":    func(u model.User) string { return strings.ToLower(u.Surname) },
	"email":      func(u model.User) string { return u.Email },
	"role":       func(u model.User) string { return string(u.Role) },
	"created_at": func(u model.User) string { return u.CreatedAt.Format(sortTime) },
}

const sortTime = "2006-01-02T15:04:05.000000000"

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.users {
		if strings.EqualFold(o.Email, u.Email) {
			return fmt.Errorf("%w: email %s", errs.ErrAlreadyExists, u.Email)
		}
	}
	c := *u
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.users[u.ID] = &c
	u.CreatedAt, u.UpdatedAt = c.CreatedAt, c.UpdatedAt
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *UserRepo) List(_ context.Context, q model.ListQuery) (model.Page[model.User], error) {
	s := r.s
	s.mu.Lock()
	all := byCreation(s.users, func(u *model.User) time.Time { return u.CreatedAt }, func(u *model.User) uuid.UUID { return u.ID })
	s.mu.Unlock()

	live := all[:0]
	for _, u := range all {
		if u.Deactivated == q.Trashed {
			live = append(live, u)
		}
	}
	if q.Sort == "" {
		q.Sort = "surname"
	}
	return paginate(live, q, func(u model.User, n string) bool {
		return containsFold(n, u.Surname, u.Firstname, u.Email, u.Post, u.Department)
	}, userKeys), nil
}

func (r *UserRepo) Update(_ context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.Surname, p.Surname)
	set(&u.Firstname, p.Firstname)
	set(&u.Post, p.Post)
	set(&u.MDA, p.MDA)
	set(&u.Department, p.Department)
	u.UpdatedAt = s.now()
	c := *u
	return &c, nil
}

func (r *UserRepo) SetRole(_ context.Context, id uuid.UUID, role model.Role) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Role, u.UpdatedAt = role, s.now()
	return nil
}

func (r *UserRepo) SetPassword(_ context.Context, id uuid.UUID, hash, salt []byte) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.PwdHash = append([]byte(nil), hash...)
	u.SaltAuth = append([]byte(nil), salt...)
	u.UpdatedAt = s.now()
	return nil
}

func (r *UserRepo) SetDeactivated(_ context.Context, id uuid.UUID, deactivated bool) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Deactivated, u.UpdatedAt = deactivated, s.now()
	return nil
}

func (r *UserRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return errs.ErrNotFound
	}
	for _, uid := range s.held {
		if uid == id {
			return fmt.Errorf("%w: user still holds files", errs.ErrConflict)
		}
	}
	for _, f := range s.files {
		if f.CurrentHolder != nil && *f.CurrentHolder == id {
			return fmt.Errorf("%w: user still holds files", errs.ErrConflict)
		}
	}
	delete(s.users, id)
	return nil
}

func (r *UserRepo) HeldFiles(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []uuid.UUID{}
	for fid, uid := range s.held {
		if uid == id {
			out = append(out, fid)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := s.since[out[i]], s.since[out[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].String() < out[j].String()
	})
	return out, nil
}
