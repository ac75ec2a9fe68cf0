package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

// MemoryAdapter keeps everything in process. It backs the memory driver for
// local development and the handler tests.
type MemoryAdapter struct {
	mu         sync.Mutex
	sweets     map[string]domain.Sweet
	users      map[string]domain.User
	byEmail    map[string]string
	byUsername map[string]string
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		sweets:     make(map[string]domain.Sweet),
		users:      make(map[string]domain.User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryAdapter) Close() error { return nil }

func (m *MemoryAdapter) CreateSweet(ctx context.Context, s domain.Sweet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sweets[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.sweets[s.ID] = s
	return nil
}

func (m *MemoryAdapter) ListSweets(ctx context.Context, f domain.SweetFilter) ([]domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Sweet, 0, len(m.sweets))
	for _, s := range m.sweets {
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) GetSweet(ctx context.Context, id string) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sweets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryAdapter) UpdateSweet(ctx context.Context, id string, mutate func(*domain.Sweet) error) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sweets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := mutate(&s); err != nil {
		return nil, err
	}
	m.sweets[id] = s
	return &s, nil
}

func (m *MemoryAdapter) DeleteSweet(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sweets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sweets, id)
	return nil
}

func (m *MemoryAdapter) DecrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sweets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.Quantity < quantity {
		return nil, &domain.InsufficientStockError{Available: s.Quantity}
	}

	s.Quantity -= quantity
	s.UpdatedAt = at
	m.sweets[id] = s
	return &s, nil
}

func (m *MemoryAdapter) IncrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sweets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if quantity > domain.MaxQuantity-s.Quantity {
		return nil, domain.ErrInvalidQuantity
	}

	s.Quantity += quantity
	s.UpdatedAt = at
	m.sweets[id] = s
	return &s, nil
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := strings.ToLower(u.Username)
	if _, ok := m.byEmail[u.Email]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := m.byUsername[name]; ok {
		return domain.ErrAlreadyExists
	}

	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	m.byUsername[name] = u.ID
	return nil
}

func (m *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userByID(m.byEmail[email])
}

func (m *MemoryAdapter) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userByID(m.byUsername[strings.ToLower(username)])
}

func (m *MemoryAdapter) userByID(id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

// UserCount is used by tests to assert that rejected registrations wrote nothing.
func (m *MemoryAdapter) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}
