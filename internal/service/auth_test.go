package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/efiling/internal/crypto"
	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/limiter"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/repository"
	"github.com/and161185/efiling/internal/revocation"
)

// fakeUsers implements the parts of UserRepository used by AuthService.
type fakeUsers struct {
	repository.UserRepository
	byEmail map[string]*model.User

	createErr error
	getErr    error
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byEmail[u.Email] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) SetPassword(_ context.Context, id uuid.UUID, hash, salt []byte) error {
	for _, u := range f.byEmail {
		if u.ID == id {
			u.PwdHash, u.SaltAuth = hash, salt
			return nil
		}
	}
	return errs.ErrNotFound
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func newAuth(users *fakeUsers, lim limiter.Limiter, accessTTL time.Duration) *AuthServiceImpl {
	cfg := AuthConfig{SignKey: []byte("secret"), AccessTTL: accessTTL, RefreshTTL: time.Hour}
	return NewAuthService(users, cfg, lim, revocation.NewMemory(), nil, nil)
}

func seedUser(t *testing.T, users *fakeUsers, email, password string) *model.User {
	t.Helper()
	cred, err := pkgcrypto.NewCredential(password)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	u := &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    email,
		Surname:  "Okafor",
		SaltAuth: cred.Salt,
		PwdHash:  cred.Hash,
		Role:     model.RoleRegistry,
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return u
}

func TestAuth_Register_Basics(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := newAuth(users, &fakeLimiter{}, time.Minute)
	ctx := context.Background()

	if _, err := s.Register(ctx, NewUser{Email: "bad", Password: "password1", Surname: "A"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error on bad email, got %v", err)
	}
	if _, err := s.Register(ctx, NewUser{Email: "a@x.gov", Password: "short", Surname: "A"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error on short password, got %v", err)
	}
	if _, err := s.Register(ctx, NewUser{Email: "a@x.gov", Password: "password1", Surname: "A", Role: "Janitor"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error on unknown role, got %v", err)
	}

	u, err := s.Register(ctx, NewUser{Email: " Alice@X.gov ", Password: "password1", Surname: "Adeyemi"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@x.gov" || u.Role != model.RoleUser || len(u.SaltAuth) != 16 {
		t.Fatalf("bad user: %+v", u)
	}

	if _, err := s.Register(ctx, NewUser{Email: "alice@x.gov", Password: "password2", Surname: "B"}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate email, got %v", err)
	}

	users.createErr = errors.New("boom")
	if _, err := s.Register(ctx, NewUser{Email: "bob@x.gov", Password: "password1", Surname: "B"}); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Login_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "alice@x.gov", "correct-horse")
	lim := &fakeLimiter{allowOK: true}
	s := newAuth(users, lim, 2*time.Minute)
	ctx := context.Background()

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.Login(ctx, "alice@x.gov", "correct-horse", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.Login(ctx, "alice@x.gov", "correct-horse", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, _, err := s.Login(ctx, "nope@x.gov", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	users.getErr = errors.New("db down")
	if _, _, err := s.Login(ctx, "alice@x.gov", "correct-horse", ""); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want store error, got %v", err)
	}
	users.getErr = nil

	lim.failBlocked = true
	if _, _, err := s.Login(ctx, "alice@x.gov", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}

	lim.failBlocked = false
	if _, _, err := s.Login(ctx, "alice@x.gov", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	tok, gotUser, err := s.Login(ctx, "ALICE@x.gov", "correct-horse", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("Login success: %v", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad tokens: %+v", tok)
	}
	if gotUser.ID != u.ID {
		t.Fatalf("bad user returned: %+v", gotUser)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}

	users.byEmail["alice@x.gov"].Deactivated = true
	if _, _, err := s.Login(ctx, "alice@x.gov", "correct-horse", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for deactivated user, got %v", err)
	}
}

func TestAuth_ParseAccess(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "c@x.gov", "password1")
	s := newAuth(users, &fakeLimiter{allowOK: true}, time.Minute)
	ctx := context.Background()

	tok, _, err := s.Login(ctx, "c@x.gov", "password1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := s.ParseAccess(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UserID != u.ID || claims.TokenID == "" {
		t.Fatalf("bad claims: %+v", claims)
	}

	if _, err := s.ParseAccess(ctx, tok.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("refresh token must not pass as access token, got %v", err)
	}
	if _, err := s.ParseAccess(ctx, "garbage"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on garbage, got %v", err)
	}

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Type: tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	forged, _ := other.SignedString([]byte("another-key"))
	if _, err := s.ParseAccess(ctx, forged); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong key, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	if _, err := s.ParseAccess(ctx, tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on expired token, got %v", err)
	}
}

func TestAuth_LogoutAndRefresh(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "d@x.gov", "password1")
	s := newAuth(users, &fakeLimiter{allowOK: true}, time.Minute)
	ctx := context.Background()

	tok, _, err := s.Login(ctx, "d@x.gov", "password1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := s.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == tok.AccessToken || next.RefreshToken == "" {
		t.Fatalf("refresh must issue new tokens")
	}
	if _, err := s.Refresh(ctx, tok.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("used refresh token must be revoked, got %v", err)
	}
	if _, err := s.Refresh(ctx, next.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("access token must not refresh, got %v", err)
	}

	claims, err := s.ParseAccess(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	actor := model.Actor{UserID: u.ID, TokenID: claims.TokenID, ExpiresAt: claims.ExpiresAt}
	if err := s.Logout(ctx, actor, next.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := s.ParseAccess(ctx, next.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("logged-out token must be rejected, got %v", err)
	}
	if _, err := s.Refresh(ctx, next.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("logged-out refresh token must be rejected, got %v", err)
	}

	if err := s.Logout(ctx, model.Actor{}, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized without token id, got %v", err)
	}
}

func TestAuth_SetPassword(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	u := seedUser(t, users, "e@x.gov", "password1")
	s := newAuth(users, &fakeLimiter{allowOK: true}, time.Minute)
	ctx := context.Background()

	if err := s.SetPassword(ctx, u.ID, "short"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if err := s.SetPassword(ctx, u.ID, "brand-new-pass"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if _, _, err := s.Login(ctx, "e@x.gov", "brand-new-pass", ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := s.SetPassword(ctx, uuid.Must(uuid.NewV4()), "brand-new-pass"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAuth_Refresh_ConcurrentUseHasOneWinner(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	seedUser(t, users, "e@x.gov", "password1")
	s := newAuth(users, &fakeLimiter{allowOK: true}, time.Minute)
	ctx := context.Background()

	tok, _, err := s.Login(ctx, "e@x.gov", "password1", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, deny int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Refresh(ctx, tok.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrUnauthorized):
				deny++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	if ok != 1 || deny != n-1 {
		t.Fatalf("refresh winners=%d denied=%d, want 1 and %d", ok, deny, n-1)
	}
}
