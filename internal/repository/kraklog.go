package repository

import (
	"context"

	"github.com/elsanchez/krakguard/internal/domain"
)

// KrakLogRepository guarda el historial de llamadas al optimizador
type KrakLogRepository interface {
	Record(ctx context.Context, entry *domain.KrakLogEntry) (int64, error)
	GetByMedia(ctx context.Context, mediaID int64, limit int) ([]*domain.KrakLogEntry, error)
	GetRecent(ctx context.Context, limit int) ([]*domain.KrakLogEntry, error)

	// Estadísticas
	CountByOutcome(ctx context.Context, outcome domain.Outcome) (int, error)
	CountTotal(ctx context.Context) (int, error)
}
