package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/repository"
)

// KrakLogRepository implementa repository.KrakLogRepository usando SQLite
type KrakLogRepository struct {
	db *sqlx.DB
}

// Compiletime check: asegura que implementa la interfaz
var _ repository.KrakLogRepository = (*KrakLogRepository)(nil)

// NewKrakLogRepository crea un nuevo repositorio del historial
func NewKrakLogRepository(db *sqlx.DB) *KrakLogRepository {
	return &KrakLogRepository{db: db}
}

type krakLogRow struct {
	ID           int64          `db:"id"`
	BatchID      string         `db:"batch_id"`
	MediaID      int64          `db:"media_id"`
	Status       string         `db:"status"`
	Changed      bool           `db:"changed"`
	Outcome      string         `db:"outcome"`
	APIStatus    int            `db:"api_status"`
	Applied      bool           `db:"applied"`
	OriginalSize int64          `db:"original_size"`
	KrakedSize   int64          `db:"kraked_size"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    int64          `db:"created_at"`
}

// Record agrega una entrada al historial
func (r *KrakLogRepository) Record(ctx context.Context, e *domain.KrakLogEntry) (int64, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var errMsg interface{}
	if e.ErrorMessage != "" {
		errMsg = e.ErrorMessage
	}

	query := `
		INSERT INTO krak_log (batch_id, media_id, status, changed, outcome, api_status,
		                      applied, original_size, kraked_size, error_message, created_at)
		VALUES (:batch_id, :media_id, :status, :changed, :outcome, :api_status,
		        :applied, :original_size, :kraked_size, :error_message, :created_at)
	`

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"batch_id":      e.BatchID,
		"media_id":      e.MediaID,
		"status":        string(e.Status),
		"changed":       e.Changed,
		"outcome":       string(e.Outcome),
		"api_status":    int(e.APIStatus),
		"applied":       e.Applied,
		"original_size": e.OriginalSize,
		"kraked_size":   e.KrakedSize,
		"error_message": errMsg,
		"created_at":    createdAt.Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert krak log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	return id, nil
}

// GetByMedia obtiene el historial de un media, más reciente primero
func (r *KrakLogRepository) GetByMedia(ctx context.Context, mediaID int64, limit int) ([]*domain.KrakLogEntry, error) {
	var rows []krakLogRow

	query := `
		SELECT * FROM krak_log
		WHERE media_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	if err := r.db.SelectContext(ctx, &rows, query, mediaID, limit); err != nil {
		return nil, fmt.Errorf("get krak log by media: %w", err)
	}

	return logRowsToDomain(rows), nil
}

// GetRecent obtiene las últimas entradas del historial
func (r *KrakLogRepository) GetRecent(ctx context.Context, limit int) ([]*domain.KrakLogEntry, error) {
	var rows []krakLogRow

	query := `
		SELECT * FROM krak_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("get recent krak log: %w", err)
	}

	return logRowsToDomain(rows), nil
}

// CountByOutcome cuenta entradas por outcome
func (r *KrakLogRepository) CountByOutcome(ctx context.Context, outcome domain.Outcome) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM krak_log WHERE outcome = ?`
	err := r.db.GetContext(ctx, &count, query, string(outcome))
	return count, err
}

// CountTotal cuenta todas las entradas
func (r *KrakLogRepository) CountTotal(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM krak_log`
	err := r.db.GetContext(ctx, &count, query)
	return count, err
}

func logRowsToDomain(rows []krakLogRow) []*domain.KrakLogEntry {
	out := make([]*domain.KrakLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.KrakLogEntry{
			ID:           row.ID,
			BatchID:      row.BatchID,
			MediaID:      row.MediaID,
			Status:       domain.KrakStatus(row.Status),
			Changed:      row.Changed,
			Outcome:      domain.Outcome(row.Outcome),
			APIStatus:    domain.APIStatus(row.APIStatus),
			Applied:      row.Applied,
			OriginalSize: row.OriginalSize,
			KrakedSize:   row.KrakedSize,
			ErrorMessage: row.ErrorMessage.String,
			CreatedAt:    time.Unix(row.CreatedAt, 0),
		})
	}
	return out
}
