package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/platform/auth"
	"github.com/electrocart/api/internal/repositories"
)

type stubUserRepo struct {
	users map[string]*domain.User
}

func (s *stubUserRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "user not found", nil)
}

func (s *stubUserRepo) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	if s.users == nil {
		s.users = map[string]*domain.User{}
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *stubUserRepo) List(ctx context.Context, pageSize int, pageToken string) (*domain.CursorPage[domain.User], error) {
	page := &domain.CursorPage[domain.User]{}
	for _, user := range s.users {
		page.Items = append(page.Items, *user)
	}
	return page, nil
}

func (s *stubUserRepo) UpdateRole(ctx context.Context, id, role string) error {
	user, ok := s.users[id]
	if !ok {
		return repositories.NewCatalogError(repositories.CatalogErrorUnknown, "user not found", nil)
	}
	user.Role = role
	return nil
}

type stubClaimsWriter struct {
	calls []string
	err   error
}

func (s *stubClaimsWriter) SetUserRole(ctx context.Context, uid, role string) error {
	s.calls = append(s.calls, uid+":"+role)
	return s.err
}

func newUserFixture(t *testing.T, users *stubUserRepo, claims *stubClaimsWriter) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Users:  users,
		Claims: claims,
		Clock:  fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new user service: %v", err)
	}
	return svc
}

func TestEnsureProfileCreatesCustomer(t *testing.T) {
	users := &stubUserRepo{users: map[string]*domain.User{}}
	svc := newUserFixture(t, users, nil)

	user, err := svc.EnsureProfile(context.Background(), ProfileInput{
		UID:         "u_1",
		Email:       "dewi@example.com",
		DisplayName: "Dewi",
	})
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if user.Role != auth.RoleCustomer {
		t.Fatalf("expected customer role, got %q", user.Role)
	}
}

func TestEnsureProfileKeepsExistingRole(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	users := &stubUserRepo{users: map[string]*domain.User{
		"u_1": {ID: "u_1", Email: "old@example.com", Role: auth.RoleAdmin, CreatedAt: created},
	}}
	svc := newUserFixture(t, users, nil)

	user, err := svc.EnsureProfile(context.Background(), ProfileInput{
		UID:   "u_1",
		Email: "new@example.com",
	})
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if user.Role != auth.RoleAdmin {
		t.Fatalf("role reset on sign-in: %q", user.Role)
	}
	if !user.CreatedAt.Equal(created) {
		t.Fatalf("creation time rewritten: %v", user.CreatedAt)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email not refreshed: %q", user.Email)
	}
}

func TestChangeRoleWritesDocumentAndClaim(t *testing.T) {
	users := &stubUserRepo{users: map[string]*domain.User{
		"u_1": {ID: "u_1", Role: auth.RoleCustomer},
	}}
	claims := &stubClaimsWriter{}
	svc := newUserFixture(t, users, claims)

	user, err := svc.ChangeRole(context.Background(), "u_1", "Admin")
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if user.Role != auth.RoleAdmin {
		t.Fatalf("document role not updated: %q", user.Role)
	}
	if len(claims.calls) != 1 || claims.calls[0] != "u_1:admin" {
		t.Fatalf("claim not written: %+v", claims.calls)
	}
}

func TestChangeRoleRejectsUnknownRole(t *testing.T) {
	users := &stubUserRepo{users: map[string]*domain.User{
		"u_1": {ID: "u_1", Role: auth.RoleCustomer},
	}}
	svc := newUserFixture(t, users, &stubClaimsWriter{})

	if _, err := svc.ChangeRole(context.Background(), "u_1", "superuser"); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestChangeRolePropagatesClaimFailure(t *testing.T) {
	users := &stubUserRepo{users: map[string]*domain.User{
		"u_1": {ID: "u_1", Role: auth.RoleCustomer},
	}}
	claims := &stubClaimsWriter{err: errors.New("identity provider down")}
	svc := newUserFixture(t, users, claims)

	if _, err := svc.ChangeRole(context.Background(), "u_1", auth.RoleAdmin); err == nil {
		t.Fatalf("expected claim failure to surface")
	}
}
