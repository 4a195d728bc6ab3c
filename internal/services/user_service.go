package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/platform/auth"
	"github.com/electrocart/api/internal/repositories"
)

var errUserRepositoryRequired = errors.New("user service: user repository is required")

// ErrUserInvalidInput indicates a missing UID or an unknown role.
var ErrUserInvalidInput = errors.New("user service: invalid input")

// ErrUserNotFound indicates the user profile does not exist.
var ErrUserNotFound = errors.New("user service: not found")

// RoleClaimWriter pushes the role custom claim to the identity provider.
type RoleClaimWriter interface {
	SetUserRole(ctx context.Context, uid, role string) error
}

// UserServiceDeps wires the repository and identity provider for user management.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Claims RoleClaimWriter
	Clock  func() time.Time
	Logger *zap.Logger
}

type userService struct {
	users  repositories.UserRepository
	claims RoleClaimWriter
	now    func() time.Time
	logger *zap.Logger
}

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errUserRepositoryRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{
		users:  deps.Users,
		claims: deps.Claims,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// EnsureProfile upserts the profile document on sign-in. An existing profile
// keeps its role and creation time.
func (s *userService) EnsureProfile(ctx context.Context, input ProfileInput) (*domain.User, error) {
	uid := strings.TrimSpace(input.UID)
	if uid == "" {
		return nil, ErrUserInvalidInput
	}

	user := &domain.User{
		ID:          uid,
		Email:       strings.TrimSpace(input.Email),
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        auth.RoleCustomer,
		CreatedAt:   s.now(),
	}
	if existing, err := s.users.Get(ctx, uid); err == nil {
		user.Role = existing.Role
		user.CreatedAt = existing.CreatedAt
	}

	return s.users.Upsert(ctx, user)
}

// Get fetches a user profile by UID.
func (s *userService) Get(ctx context.Context, uid string) (*domain.User, error) {
	id := strings.TrimSpace(uid)
	if id == "" {
		return nil, ErrUserInvalidInput
	}
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List returns a page of user profiles.
func (s *userService) List(ctx context.Context, pageSize int, pageToken string) (*domain.CursorPage[domain.User], error) {
	return s.users.List(ctx, pageSize, pageToken)
}

// ChangeRole writes the profile document first and then the identity
// provider's custom claim. The claim takes effect on the user's next token
// refresh.
func (s *userService) ChangeRole(ctx context.Context, uid, role string) (*domain.User, error) {
	id := strings.TrimSpace(uid)
	normalised := strings.ToLower(strings.TrimSpace(role))
	if id == "" || (normalised != auth.RoleCustomer && normalised != auth.RoleAdmin) {
		return nil, ErrUserInvalidInput
	}

	if err := s.users.UpdateRole(ctx, id, normalised); err != nil {
		return nil, ErrUserNotFound
	}

	if s.claims != nil {
		if err := s.claims.SetUserRole(ctx, id, normalised); err != nil {
			s.logger.Error("role claim update failed, document and claim diverge until retried",
				zap.String("uid", id),
				zap.String("role", normalised),
				zap.Error(err))
			return nil, err
		}
	}

	s.logger.Info("user role changed",
		zap.String("uid", id),
		zap.String("role", normalised))

	return s.users.Get(ctx, id)
}
