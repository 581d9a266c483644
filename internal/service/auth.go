// Package service contains the application services of the registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/efiling/internal/crypto"
	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/limiter"
	"github.com/and161185/efiling/internal/metrics"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/repository"
	"github.com/and161185/efiling/internal/revocation"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
	minPassword  = 8
)

// NewUser carries the fields of a new account.
type NewUser struct {
	Email      string
	Password   string
	Surname    string
	Firstname  string
	Post       string
	MDA        string
	Department string
	Role       model.Role
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID    uuid.UUID
	TokenID   string
	ExpiresAt time.Time
}

// AuthService defines authentication and bootstrap operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, in NewUser) (*model.User, error)
	// Login applies rate limiting by (email, ip) and issues a token pair.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Refresh exchanges a refresh token for a new pair; the old refresh token is revoked.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Logout revokes the actor's access token and, if given, the refresh token.
	Logout(ctx context.Context, a model.Actor, refreshToken string) error
	// ParseAccess verifies an access token and checks the revocation list.
	ParseAccess(ctx context.Context, token string) (AccessClaims, error)
	// SetPassword replaces a user's password.
	SetPassword(ctx context.Context, userID uuid.UUID, password string) error
	// Bootstrap registers in as SuperAdmin if no account exists yet.
	Bootstrap(ctx context.Context, in NewUser) (*model.User, error)
}

// AuthConfig holds token settings.
type AuthConfig struct {
	SignKey    []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthServiceImpl struct {
	users   repository.UserRepository
	lim     limiter.Limiter
	revoked revocation.List
	cfg     AuthConfig
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, cfg AuthConfig, lim limiter.Limiter, revoked revocation.List, log *zap.Logger, m *metrics.Metrics) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, lim: lim, revoked: revoked, cfg: cfg, log: log, metrics: m, now: time.Now}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func passwordOK(u *model.User, password string) bool {
	return pkgcrypto.Credential{Hash: u.PwdHash, Salt: u.SaltAuth}.Matches(password)
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, in NewUser) (*model.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", errs.ErrValidation)
	}
	if len(in.Password) < minPassword {
		return nil, fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, minPassword)
	}
	if strings.TrimSpace(in.Surname) == "" {
		return nil, fmt.Errorf("%w: surname is required", errs.ErrValidation)
	}
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if _, ok := model.ParseRole(string(role)); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, role)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	cred, err := pkgcrypto.NewCredential(in.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:         uid,
		Email:      email,
		PwdHash:    cred.Hash,
		SaltAuth:   cred.Salt,
		Surname:    strings.TrimSpace(in.Surname),
		Firstname:  strings.TrimSpace(in.Firstname),
		Post:       in.Post,
		MDA:        in.MDA,
		Department: in.Department,
		Role:       role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Stringer("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// Bootstrap registers the first account of an empty store as SuperAdmin.
// It returns nil and no error when any user, active or deactivated, exists.
func (s *AuthServiceImpl) Bootstrap(ctx context.Context, in NewUser) (*model.User, error) {
	active, deactivated, err := countUsers(ctx, s.users)
	if err != nil {
		return nil, err
	}
	if active+deactivated > 0 {
		return nil, nil
	}
	if in.Surname == "" {
		in.Surname = "Administrator"
	}
	if in.Post == "" {
		in.Post = "System Administrator"
	}
	in.Role = model.RoleSuperAdmin
	u, err := s.Register(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	return u, nil
}

func countUsers(ctx context.Context, users repository.UserRepository) (active, deactivated int, err error) {
	live, err := users.List(ctx, model.ListQuery{Limit: 1})
	if err != nil {
		return 0, 0, err
	}
	trashed, err := users.List(ctx, model.ListQuery{Limit: 1, Trashed: true})
	if err != nil {
		return 0, 0, err
	}
	return live.Total, trashed.Total, nil
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || u.Deactivated || !passwordOK(u, password) {
		if err != nil {
			if !errors.Is(err, errs.ErrNotFound) {
				return model.Tokens{}, model.User{}, err
			}
			pkgcrypto.Decoy(password)
		}
		if s.metrics != nil {
			s.metrics.LoginFailures.Inc()
		}
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			s.log.Warn("login blocked", zap.String("email", email))
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// Unknown email, deactivated account and wrong password look the same.
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	tokens, err := s.issuePair(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tokens, *u, nil
}

// Refresh validates the refresh token, claims it and issues a new pair.
// A refresh token is spent by the first call that claims it.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	claims, err := s.parse(ctx, refreshToken, tokenRefresh)
	if err != nil {
		return model.Tokens{}, err
	}
	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	if u.Deactivated {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	ttl := max(claims.ExpiresAt.Sub(s.now()), time.Second)
	first, err := s.revoked.Claim(ctx, claims.TokenID, ttl)
	if err != nil {
		return model.Tokens{}, err
	}
	if !first {
		return model.Tokens{}, fmt.Errorf("%w: refresh token already used", errs.ErrUnauthorized)
	}
	return s.issuePair(u.ID)
}

// Logout revokes the current access token until it would expire anyway.
func (s *AuthServiceImpl) Logout(ctx context.Context, a model.Actor, refreshToken string) error {
	if a.TokenID == "" {
		return errs.ErrUnauthorized
	}
	if err := s.revoked.Revoke(ctx, a.TokenID, a.ExpiresAt.Sub(s.now())); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.parse(ctx, refreshToken, tokenRefresh)
	if err != nil || claims.UserID != a.UserID {
		// An unusable refresh token does not undo the logout.
		return nil
	}
	return s.revoked.Revoke(ctx, claims.TokenID, claims.ExpiresAt.Sub(s.now()))
}

// ParseAccess verifies HS256, expiry, token type and revocation.
func (s *AuthServiceImpl) ParseAccess(ctx context.Context, token string) (AccessClaims, error) {
	return s.parse(ctx, token, tokenAccess)
}

// SetPassword re-hashes the password with a fresh salt.
func (s *AuthServiceImpl) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	if len(password) < minPassword {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, minPassword)
	}
	cred, err := pkgcrypto.NewCredential(password)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, userID, cred.Hash, cred.Salt)
}

type tokenClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *AuthServiceImpl) parse(ctx context.Context, tok, typ string) (AccessClaims, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return AccessClaims{}, errs.ErrUnauthorized
	}
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.cfg.SignKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return AccessClaims{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if claims.Type != typ {
		return AccessClaims{}, fmt.Errorf("%w: wrong token type", errs.ErrUnauthorized)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return AccessClaims{}, err
	}
	if revoked {
		return AccessClaims{}, fmt.Errorf("%w: token revoked", errs.ErrUnauthorized)
	}
	return AccessClaims{UserID: id, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *AuthServiceImpl) issuePair(userID uuid.UUID) (model.Tokens, error) {
	access, exp, err := s.issue(userID, tokenAccess, s.cfg.AccessTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, _, err := s.issue(userID, tokenRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// issue creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issue(userID uuid.UUID, typ string, ttl time.Duration) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := tokenClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
	return signed, exp, err
}
