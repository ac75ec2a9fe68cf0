package port

import (
	"context"
	"time"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

type SweetRepository interface {
	// CreateSweet persists a new sweet
	CreateSweet(ctx context.Context, sweet domain.Sweet) error

	// ListSweets returns the sweets matching filter, newest created first
	ListSweets(ctx context.Context, filter domain.SweetFilter) ([]domain.Sweet, error)

	// GetSweet returns domain.ErrNotFound when no sweet has the id
	GetSweet(ctx context.Context, id string) (*domain.Sweet, error)

	// UpdateSweet loads the sweet, applies mutate and stores the result as one
	// transaction. An error from mutate aborts without writing.
	UpdateSweet(ctx context.Context, id string, mutate func(*domain.Sweet) error) (*domain.Sweet, error)

	// DeleteSweet returns domain.ErrNotFound when no sweet has the id
	DeleteSweet(ctx context.Context, id string) error

	// DecrementStock atomically takes quantity units if at least that many are
	// in stock, otherwise returns *domain.InsufficientStockError
	DecrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error)

	// IncrementStock atomically adds quantity units
	IncrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error)
}

type UserRepository interface {
	// CreateUser returns domain.ErrAlreadyExists when the email or username is taken
	CreateUser(ctx context.Context, user domain.User) error

	// GetUserByEmail returns domain.ErrNotFound when no user has the email
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetUserByUsername returns domain.ErrNotFound when no user has the username
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Store is a complete persistence backend.
type Store interface {
	SweetRepository
	UserRepository
	HealthChecker
	Close() error
}
