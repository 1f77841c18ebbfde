package repository

import (
	"context"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// ShiftsRepository shift definitions; read-only to the engine apart from seeding
type ShiftsRepository interface {
	GetShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	ListShifts(ctx context.Context, activeOnly bool) ([]*domain.Shift, error)
	CreateShift(ctx context.Context, s *domain.Shift) error
}
