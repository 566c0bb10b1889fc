package repository

import (
	"context"
	"errors"

	"github.com/elsanchez/krakguard/internal/domain"
)

// ErrNotFound se retorna cuando el registro pedido no existe
var ErrNotFound = errors.New("not found")

// MediaRepository define las operaciones sobre media
type MediaRepository interface {
	// CRUD básico
	Create(ctx context.Context, m *domain.Media) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Media, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Media, error)
	Update(ctx context.Context, m *domain.Media) error
	Delete(ctx context.Context, id int64) error

	// Queries especializadas
	GetRecent(ctx context.Context, limit int) ([]*domain.Media, error)
	GetUnprocessed(ctx context.Context, limit int) ([]*domain.Media, error)

	// Estadísticas
	CountByKrakStatus(ctx context.Context, status domain.KrakStatus) (int, error)
	CountTotal(ctx context.Context) (int, error)
}
