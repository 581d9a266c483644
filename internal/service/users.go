package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/repository"
)

// UserService is the administrator's view of accounts.
type UserService interface {
	Create(ctx context.Context, in NewUser) (*model.User, error)
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	List(ctx context.Context, q model.ListQuery) (model.Page[model.User], error)
	Update(ctx context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error)
	UpdateSelf(ctx context.Context, p model.UserPatch) (*model.User, error)
	Counts(ctx context.Context) (model.UserCounts, error)
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Activate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	HeldFiles(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	ResetPassword(ctx context.Context, id uuid.UUID, password string) error
}

type UserServiceImpl struct {
	users  repository.UserRepository
	auth   AuthService
	policy *policy.Policy
	log    *zap.Logger
}

// NewUserService constructs UserService. Account creation and password
// changes are delegated to auth.
func NewUserService(users repository.UserRepository, auth AuthService, p *policy.Policy, log *zap.Logger) *UserServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserServiceImpl{users: users, auth: auth, policy: p, log: log.Named("users")}
}

// Create registers an account. Only a SuperAdmin may create another SuperAdmin.
func (s *UserServiceImpl) Create(ctx context.Context, in NewUser) (*model.User, error) {
	actor, err := s.policy.Require(ctx, policy.Admin)
	if err != nil {
		return nil, err
	}
	if err := canGrant(actor, in.Role); err != nil {
		return nil, err
	}
	return s.auth.Register(ctx, in)
}

func canGrant(actor model.Actor, role model.Role) error {
	if role == model.RoleSuperAdmin && actor.Role != model.RoleSuperAdmin {
		return fmt.Errorf("%w: only a SuperAdmin may grant SuperAdmin", errs.ErrForbidden)
	}
	return nil
}

// Get returns any user to an administrator and the caller's own record to anyone.
func (s *UserServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	actor, err := s.policy.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	if actor.UserID != id {
		if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
			return nil, err
		}
	}
	return s.users.GetByID(ctx, id)
}

// List is open to every authenticated actor; charging needs a directory of recipients.
func (s *UserServiceImpl) List(ctx context.Context, q model.ListQuery) (model.Page[model.User], error) {
	if q.Trashed {
		if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
			return model.Page[model.User]{}, err
		}
	} else if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.Page[model.User]{}, err
	}
	return s.users.List(ctx, q)
}

func (s *UserServiceImpl) Update(ctx context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error) {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return nil, err
	}
	u, err := s.users.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.policy.Forget(id)
	return u, nil
}

// UpdateSelf edits the caller's own profile. Role and status are not part
// of a patch, so an account cannot raise its own privileges here.
func (s *UserServiceImpl) UpdateSelf(ctx context.Context, p model.UserPatch) (*model.User, error) {
	actor, err := s.policy.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Update(ctx, actor.UserID, p)
	if err != nil {
		return nil, err
	}
	s.policy.Forget(actor.UserID)
	return u, nil
}

func (s *UserServiceImpl) Counts(ctx context.Context) (model.UserCounts, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return model.UserCounts{}, err
	}
	active, deactivated, err := countUsers(ctx, s.users)
	if err != nil {
		return model.UserCounts{}, err
	}
	return model.UserCounts{Total: active + deactivated, Active: active, Deactivated: deactivated}, nil
}

func (s *UserServiceImpl) SetRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	actor, err := s.policy.Require(ctx, policy.Admin)
	if err != nil {
		return err
	}
	r, ok := model.ParseRole(string(role))
	if !ok {
		return fmt.Errorf("%w: unknown role %q", errs.ErrValidation, role)
	}
	if err := canGrant(actor, r); err != nil {
		return err
	}
	if err := s.users.SetRole(ctx, id, r); err != nil {
		return err
	}
	s.policy.Forget(id)
	s.log.Info("role changed", zap.Stringer("user_id", id), zap.String("role", string(r)), zap.Stringer("by", actor.UserID))
	return nil
}

func (s *UserServiceImpl) Deactivate(ctx context.Context, id uuid.UUID) error {
	actor, err := s.policy.Require(ctx, policy.Admin)
	if err != nil {
		return err
	}
	if actor.UserID == id {
		return fmt.Errorf("%w: cannot deactivate yourself", errs.ErrConflict)
	}
	if err := s.users.SetDeactivated(ctx, id, true); err != nil {
		return err
	}
	s.policy.Forget(id)
	return nil
}

func (s *UserServiceImpl) Activate(ctx context.Context, id uuid.UUID) error {
	if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
		return err
	}
	if err := s.users.SetDeactivated(ctx, id, false); err != nil {
		return err
	}
	s.policy.Forget(id)
	return nil
}

// Delete removes an account that holds no files.
func (s *UserServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	actor, err := s.policy.Require(ctx, policy.Admin)
	if err != nil {
		return err
	}
	if actor.UserID == id {
		return fmt.Errorf("%w: cannot delete yourself", errs.ErrConflict)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.policy.Forget(id)
	return nil
}

func (s *UserServiceImpl) HeldFiles(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.policy.Require(ctx, policy.Any); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.users.HeldFiles(ctx, id)
}

// ResetPassword lets an administrator, or the user themselves, set a new password.
func (s *UserServiceImpl) ResetPassword(ctx context.Context, id uuid.UUID, password string) error {
	actor, err := s.policy.Authorize(ctx)
	if err != nil {
		return err
	}
	if actor.UserID != id {
		if _, err := s.policy.Require(ctx, policy.Admin); err != nil {
			return err
		}
	}
	return s.auth.SetPassword(ctx, id, password)
}
