package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/port"
)

// DefaultPurchaseQuantity is used when a purchase does not name a quantity.
const DefaultPurchaseQuantity = 1

type SweetService struct {
	repo   port.SweetRepository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewSweetService(repo port.SweetRepository, logger *zap.Logger) *SweetService {
	return &SweetService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (s *SweetService) Create(ctx context.Context, draft domain.SweetDraft) (*domain.Sweet, error) {
	if err := draft.Validate(false); err != nil {
		return nil, err
	}

	now := s.now()
	sweet := domain.Sweet{
		ID:        s.newID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	draft.ApplyTo(&sweet)

	if err := s.repo.CreateSweet(ctx, sweet); err != nil {
		return nil, fmt.Errorf("create sweet: %w", err)
	}

	s.logger.Info("sweet created",
		zap.String("sweet_id", sweet.ID),
		zap.String("name", sweet.Name),
		zap.Int("quantity", sweet.Quantity),
	)
	return &sweet, nil
}

func (s *SweetService) List(ctx context.Context) ([]domain.Sweet, error) {
	return s.Search(ctx, domain.SweetFilter{})
}

func (s *SweetService) Search(ctx context.Context, filter domain.SweetFilter) ([]domain.Sweet, error) {
	sweets, err := s.repo.ListSweets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sweets: %w", err)
	}
	if sweets == nil {
		sweets = []domain.Sweet{}
	}
	return sweets, nil
}

func (s *SweetService) Update(ctx context.Context, id string, draft domain.SweetDraft) (*domain.Sweet, error) {
	if err := draft.Validate(true); err != nil {
		return nil, err
	}

	sweet, err := s.repo.UpdateSweet(ctx, id, func(sw *domain.Sweet) error {
		draft.ApplyTo(sw)
		if err := sw.Validate(); err != nil {
			return err
		}
		sw.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update sweet %s: %w", id, err)
	}

	s.logger.Info("sweet updated", zap.String("sweet_id", id))
	return sweet, nil
}

func (s *SweetService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteSweet(ctx, id); err != nil {
		return fmt.Errorf("delete sweet %s: %w", id, err)
	}

	s.logger.Info("sweet deleted", zap.String("sweet_id", id))
	return nil
}

// Purchase takes quantity units out of stock. The check and the decrement
// happen in one store operation, so concurrent purchases cannot oversell.
func (s *SweetService) Purchase(ctx context.Context, id string, quantity int) (*domain.Sweet, error) {
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	sweet, err := s.repo.DecrementStock(ctx, id, quantity, s.now())
	if err != nil {
		return nil, fmt.Errorf("decrement stock %s: %w", id, err)
	}

	s.logger.Info("sweet purchased",
		zap.String("sweet_id", id),
		zap.Int("quantity", quantity),
		zap.Int("remaining", sweet.Quantity),
	)
	return sweet, nil
}

// Restock adds quantity units. The store refuses an increment that would take
// the stock above domain.MaxQuantity.
func (s *SweetService) Restock(ctx context.Context, id string, quantity int) (*domain.Sweet, error) {
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	sweet, err := s.repo.IncrementStock(ctx, id, quantity, s.now())
	if err != nil {
		return nil, fmt.Errorf("increment stock %s: %w", id, err)
	}

	s.logger.Info("sweet restocked",
		zap.String("sweet_id", id),
		zap.Int("quantity", quantity),
		zap.Int("stock", sweet.Quantity),
	)
	return sweet, nil
}
