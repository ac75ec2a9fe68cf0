package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/port"
)

// Session is the result of a successful register or login.
type Session struct {
	Token string
	User  domain.User
}

type AuthService struct {
	users  port.UserRepository
	hasher port.PasswordHasher
	tokens port.TokenIssuer
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewAuthService(users port.UserRepository, hasher port.PasswordHasher, tokens port.TokenIssuer, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Register creates a user account and signs them in.
func (s *AuthService) Register(ctx context.Context, reg domain.Registration) (*Session, error) {
	user, err := s.createUser(ctx, reg, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.session(*user)
}

func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (*Session, error) {
	creds.Email = domain.NormalizeEmail(creds.Email)
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, creds.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, creds.Password); err != nil {
		return nil, domain.ErrUnauthenticated
	}

	return s.session(*user)
}

// EnsureAdmin creates an admin account unless one with the email already
// exists. It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, reg domain.Registration) (bool, error) {
	existing, err := s.users.GetUserByEmail(ctx, domain.NormalizeEmail(reg.Email))
	switch {
	case err == nil:
		if !existing.Role.IsAdmin() {
			return false, fmt.Errorf("bootstrap admin %s: account exists with role %q", existing.Email, existing.Role)
		}
		return false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("find user: %w", err)
	}

	user, err := s.createUser(ctx, reg, domain.RoleAdmin)
	if err != nil {
		return false, err
	}

	s.logger.Info("admin account created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return true, nil
}

func (s *AuthService) createUser(ctx context.Context, reg domain.Registration, role domain.Role) (*domain.User, error) {
	reg = reg.Normalize()
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, reg.Email); err == nil {
		return nil, domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	if _, err := s.users.GetUserByUsername(ctx, reg.Username); err == nil {
		return nil, domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find user by username: %w", err)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           s.newID(),
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// the store enforces uniqueness too, for registrations racing past the checks above
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

func (s *AuthService) session(user domain.User) (*Session, error) {
	token, err := s.tokens.Issue(domain.Identity{UserID: user.ID, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}
