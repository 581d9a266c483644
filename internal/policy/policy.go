// Package policy decides who may do what.
package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/repository"
)

// Set names a group of roles allowed to perform a class of operations.
type Set int

const (
	// Any allows every authenticated actor.
	Any Set = iota
	// Movement covers Request, Charge, Return and attach/detach.
	Movement
	// Admin covers user and organisation management, log clearing and reconcile.
	Admin
	// Registry covers file, mail and personnel writes.
	Registry
)

func (s Set) String() string {
	switch s {
	case Movement:
		return "movement"
	case Admin:
		return "admin"
	case Registry:
		return "registry"
	}
	return "any"
}

// Roles lists the roles in each set.
type Roles struct {
	Movement []model.Role
	Admin    []model.Role
	Registry []model.Role
}

// DefaultRoles returns the stock role sets.
func DefaultRoles() Roles {
	return Roles{
		Movement: []model.Role{model.RoleSuperAdmin, model.RoleAdmin, model.RolePermSec, model.RoleRegistry},
		Admin:    []model.Role{model.RoleSuperAdmin, model.RoleAdmin},
		Registry: []model.Role{model.RoleSuperAdmin, model.RoleAdmin, model.RoleRegistry},
	}
}

// ParseRoles converts configured role names.
func ParseRoles(names []string) ([]model.Role, error) {
	out := make([]model.Role, 0, len(names))
	for _, n := range names {
		r, ok := model.ParseRole(n)
		if !ok {
			return nil, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, n)
		}
		out = append(out, r)
	}
	return out, nil
}

// Policy resolves actors and checks roles.
type Policy struct {
	users repository.UserRepository
	roles Roles
	cache *expirable.LRU[uuid.UUID, model.User]
}

// New constructs a Policy. Users are cached for cacheTTL; zero disables caching.
func New(users repository.UserRepository, roles Roles, cacheTTL time.Duration) *Policy {
	p := &Policy{users: users, roles: roles}
	if cacheTTL > 0 {
		p.cache = expirable.NewLRU[uuid.UUID, model.User](1024, nil, cacheTTL)
	}
	return p
}

// Resolve loads the user behind a verified token and builds the actor.
// Unknown and deactivated users are unauthorized.
func (p *Policy) Resolve(ctx context.Context, userID uuid.UUID, tokenID string, exp time.Time) (model.Actor, error) {
	u, err := p.user(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Actor{}, errs.ErrUnauthorized
		}
		return model.Actor{}, err
	}
	if u.Deactivated {
		return model.Actor{}, fmt.Errorf("%w: account deactivated", errs.ErrUnauthorized)
	}
	return model.Actor{
		UserID:    u.ID,
		Role:      u.Role,
		Name:      u.DisplayName(),
		TokenID:   tokenID,
		ExpiresAt: exp,
	}, nil
}

func (p *Policy) user(ctx context.Context, id uuid.UUID) (model.User, error) {
	if p.cache != nil {
		if u, ok := p.cache.Get(id); ok {
			return u, nil
		}
	}
	u, err := p.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if p.cache != nil {
		p.cache.Add(id, *u)
	}
	return *u, nil
}

// Forget drops a cached user after its role or status changed.
func (p *Policy) Forget(id uuid.UUID) {
	if p.cache != nil {
		p.cache.Remove(id)
	}
}

// Authorize returns the actor of the request or ErrUnauthorized.
func (p *Policy) Authorize(ctx context.Context) (model.Actor, error) {
	a, ok := ActorFromCtx(ctx)
	if !ok || a.UserID == uuid.Nil {
		return model.Actor{}, errs.ErrUnauthorized
	}
	return a, nil
}

// RequireRole fails with ErrForbidden unless a's role is in roles.
func (p *Policy) RequireRole(a model.Actor, roles []model.Role) error {
	if slices.Contains(roles, a.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %q may not perform this operation", errs.ErrForbidden, a.Role)
}

// Require combines Authorize and RequireRole for a role set.
func (p *Policy) Require(ctx context.Context, s Set) (model.Actor, error) {
	a, err := p.Authorize(ctx)
	if err != nil {
		return model.Actor{}, err
	}
	var roles []model.Role
	switch s {
	case Any:
		return a, nil
	case Movement:
		roles = p.roles.Movement
	case Admin:
		roles = p.roles.Admin
	case Registry:
		roles = p.roles.Registry
	}
	if err := p.RequireRole(a, roles); err != nil {
		return model.Actor{}, err
	}
	return a, nil
}
