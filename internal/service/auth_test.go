package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/daryonoff/postboard/internal/apperror"
	"github.com/daryonoff/postboard/internal/auth"
	"github.com/daryonoff/postboard/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
// Using a fake (not a mock framework) keeps tests dependency-free and easy
// to read. It enforces the same uniqueness rules as the real schema so the
// resolver's conflict handling can be exercised.
type fakeUserRepo struct {
	byID   map[string]*model.User
	nextID int

	// onCreate, when set, runs at the start of Create — used to simulate
	// a concurrent callback sneaking a row in between lookup and insert.
	onCreate func()

	createErr error
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*model.User), nextID: 1}
}

// insert places a user directly into the store, bypassing uniqueness checks.
// Test setup helper.
func (f *fakeUserRepo) insert(u *model.User) *model.User {
	if u.ID == "" {
		u.ID = "user-" + strconv.Itoa(f.nextID)
		f.nextID++
	}
	copied := *u
	f.byID[u.ID] = &copied
	return u
}

func (f *fakeUserRepo) violates(u *model.User) bool {
	for id, other := range f.byID {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return true
		}
		if u.Provider != "" && other.Provider == u.Provider && other.ProviderID == u.ProviderID {
			return true
		}
	}
	return false
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if f.onCreate != nil {
		f.onCreate()
	}
	if f.createErr != nil {
		return f.createErr
	}
	if f.violates(user) {
		return apperror.Conflict("user", user.Email)
	}
	user.ID = "user-" + strconv.Itoa(f.nextID)
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	copied := *user
	f.byID[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	if f.violates(user) {
		return apperror.Conflict("user", user.ID)
	}
	user.UpdatedAt = time.Now()
	copied := *user
	f.byID[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := f.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetByProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Provider == provider && u.ProviderID == providerID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", providerID)
}

// fakeTokenRepo is an in-memory repository.TokenRepository.
type fakeTokenRepo struct {
	byHash    map[string]*model.APIToken
	createErr error
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{byHash: make(map[string]*model.APIToken)}
}

func (f *fakeTokenRepo) CreateToken(ctx context.Context, t *model.APIToken) error {
	if f.createErr != nil {
		return f.createErr
	}
	t.ID = "token-" + strconv.Itoa(len(f.byHash)+1)
	t.CreatedAt = time.Now()
	copied := *t
	f.byHash[t.TokenHash] = &copied
	return nil
}

func (f *fakeTokenRepo) GetTokenByHash(ctx context.Context, hash string) (*model.APIToken, error) {
	if t, ok := f.byHash[hash]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, apperror.NotFound("token", "presented")
}

func (f *fakeTokenRepo) DeleteTokenByHash(ctx context.Context, hash string) error {
	delete(f.byHash, hash)
	return nil
}

// newTestAuthService wires an AuthService with fake repositories and the
// minimum bcrypt cost.
func newTestAuthService(users *fakeUserRepo, tokens *fakeTokenRepo) *AuthService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(users, tokens, auth.NewPasswordServiceForTest(4), logger)
}

// =========================================================================
// Register / Login
// =========================================================================

func TestRegister_CreatesUserAndIssuesToken(t *testing.T) {
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	svc := newTestAuthService(users, tokens)

	result, err := svc.Register(context.Background(), "Ivan", "ivan@example.com", "secret-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.User.ID == "" {
		t.Error("Register() should assign a user ID")
	}
	if result.Token == "" {
		t.Error("Register() should issue a token")
	}
	if result.User.PasswordHash == "secret-password" {
		t.Error("Register() stored the plaintext password")
	}
	if !result.User.HasPassword() {
		t.Error("registered user should have a password hash")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(users, newFakeTokenRepo())

	if _, err := svc.Register(context.Background(), "A", "same@example.com", "password-1"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err := svc.Register(context.Background(), "B", "same@example.com", "password-2")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate Register() error = %v, want ErrConflict", err)
	}
}

func TestLogin_Success(t *testing.T) {
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	svc := newTestAuthService(users, tokens)

	if _, err := svc.Register(context.Background(), "Ivan", "ivan@example.com", "secret-password"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := svc.Login(context.Background(), "ivan@example.com", "secret-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token == "" {
		t.Error("Login() should issue a token")
	}
}

func TestLogin_Failures(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestAuthService(users, newFakeTokenRepo())

	if _, err := svc.Register(context.Background(), "Ivan", "ivan@example.com", "secret-password"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	// OAuth-only account: no password hash at all.
	users.insert(&model.User{
		Name: "VK Only", Email: "vkid_5@vkid.local",
		Provider: model.ProviderVKID, ProviderID: "5",
	})

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ivan@example.com", "not-the-password"},
		{"unknown email", "nobody@example.com", "whatever"},
		{"oauth-only account", "vkid_5@vkid.local", "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, apperror.ErrUnauthorized) {
				t.Errorf("Login() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

// =========================================================================
// Authenticate / Logout
// =========================================================================

func TestAuthenticate_RoundTrip(t *testing.T) {
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	svc := newTestAuthService(users, tokens)

	result, err := svc.Register(context.Background(), "Ivan", "ivan@example.com", "secret-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	userID, err := svc.Authenticate(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("Authenticate() = %q, want %q", userID, result.User.ID)
	}
}

func TestAuthenticate_GarbageToken(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo(), newFakeTokenRepo())

	_, err := svc.Authenticate(context.Background(), "not-a-real-token")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Authenticate() error = %v, want ErrUnauthorized", err)
	}
}

func TestLogout_InvalidatesOnlyThatToken(t *testing.T) {
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	svc := newTestAuthService(users, tokens)

	first, err := svc.Register(context.Background(), "Ivan", "ivan@example.com", "secret-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	second, err := svc.Login(context.Background(), "ivan@example.com", "secret-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if err := svc.Logout(context.Background(), first.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), first.Token); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Error("logged-out token should no longer authenticate")
	}
	if _, err := svc.Authenticate(context.Background(), second.Token); err != nil {
		t.Errorf("the user's other session should survive logout: %v", err)
	}
}
