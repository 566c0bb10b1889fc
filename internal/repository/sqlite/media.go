package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/repository"
)

// MediaRepository implementa repository.MediaRepository usando SQLite
type MediaRepository struct {
	db     *sqlx.DB
	status StatusFunc
}

// Compiletime check: asegura que implementa la interfaz
var _ repository.MediaRepository = (*MediaRepository)(nil)

// NewMediaRepository crea un nuevo repositorio de media
func NewMediaRepository(db *sqlx.DB, status StatusFunc) *MediaRepository {
	return &MediaRepository{db: db, status: status}
}

// mediaRow mapea la tabla SQL a struct Go
type mediaRow struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	ParentID   int64  `db:"parent_id"`
	Properties string `db:"properties"`
	KrakStatus string `db:"krak_status"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

// Create inserta un media. Un ID distinto de 0 se respeta (importaciones).
func (r *MediaRepository) Create(ctx context.Context, m *domain.Media) (int64, error) {
	props, err := marshalProperties(m.Properties)
	if err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO media (id, name, parent_id, properties, krak_status, created_at, updated_at)
		VALUES (NULLIF(:id, 0), :name, :parent_id, :properties, :krak_status, :created_at, :updated_at)
	`

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          m.ID,
		"name":        m.Name,
		"parent_id":   m.ParentID,
		"properties":  props,
		"krak_status": string(r.status(m)),
		"created_at":  now,
		"updated_at":  now,
	})
	if err != nil {
		return 0, fmt.Errorf("insert media: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	return id, nil
}

// GetByID obtiene un media por ID
func (r *MediaRepository) GetByID(ctx context.Context, id int64) (*domain.Media, error) {
	var row mediaRow

	query := `SELECT * FROM media WHERE id = ?`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("media %d: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("get media: %w", err)
	}

	return mediaRowToDomain(&row)
}

// GetByIDs obtiene varios media de una vez. Los IDs que no existen no
// aparecen en el mapa.
func (r *MediaRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Media, error) {
	out := make(map[int64]*domain.Media, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM media WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []mediaRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get media by ids: %w", err)
	}

	for i := range rows {
		m, err := mediaRowToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}

	return out, nil
}

// Update reemplaza nombre, padre y propiedades de un media existente
func (r *MediaRepository) Update(ctx context.Context, m *domain.Media) error {
	props, err := marshalProperties(m.Properties)
	if err != nil {
		return err
	}

	query := `
		UPDATE media
		SET name = :name, parent_id = :parent_id, properties = :properties,
		    krak_status = :krak_status, updated_at = :updated_at
		WHERE id = :id
	`

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          m.ID,
		"name":        m.Name,
		"parent_id":   m.ParentID,
		"properties":  props,
		"krak_status": string(r.status(m)),
		"updated_at":  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("update media: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("media %d: %w", m.ID, repository.ErrNotFound)
	}

	return nil
}

// Delete elimina un media
func (r *MediaRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM media WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// GetRecent obtiene los media modificados más recientemente
func (r *MediaRepository) GetRecent(ctx context.Context, limit int) ([]*domain.Media, error) {
	var rows []mediaRow

	query := `
		SELECT * FROM media
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("get recent media: %w", err)
	}

	return mediaRowsToDomain(rows)
}

// GetUnprocessed obtiene los media que el sweeper debe reintentar: elegibles
// que nunca pasaron por el optimizador (salvo los descartados por el API con
// skip_item) y ya optimizados cuya última entrada del historial es pending.
func (r *MediaRepository) GetUnprocessed(ctx context.Context, limit int) ([]*domain.Media, error) {
	var rows []mediaRow

	query := `
		SELECT m.* FROM media m
		WHERE (m.krak_status = ?
		       AND NOT EXISTS (
		           SELECT 1 FROM krak_log l
		           WHERE l.media_id = m.id AND l.outcome = ?
		       ))
		   OR (m.krak_status = ?
		       AND (SELECT l.outcome FROM krak_log l
		            WHERE l.media_id = m.id
		            ORDER BY l.created_at DESC, l.id DESC
		            LIMIT 1) = ?)
		ORDER BY m.id ASC
		LIMIT ?
	`

	args := []interface{}{
		string(domain.StatusKrakable), string(domain.OutcomeSkipItem),
		string(domain.StatusKraked), string(domain.OutcomePending),
		limit,
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get unprocessed media: %w", err)
	}

	return mediaRowsToDomain(rows)
}

// CountByKrakStatus cuenta media por estado krak
func (r *MediaRepository) CountByKrakStatus(ctx context.Context, status domain.KrakStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM media WHERE krak_status = ?`
	err := r.db.GetContext(ctx, &count, query, string(status))
	return count, err
}

// CountTotal cuenta todos los media
func (r *MediaRepository) CountTotal(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM media`
	err := r.db.GetContext(ctx, &count, query)
	return count, err
}

func marshalProperties(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(b), nil
}

// Helper: conversión row → domain.
// Los números quedan como json.Number para no perder enteros grandes.
func mediaRowToDomain(row *mediaRow) (*domain.Media, error) {
	props := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader([]byte(row.Properties)))
	dec.UseNumber()
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("unmarshal properties of media %d: %w", row.ID, err)
	}

	return &domain.Media{
		ID:         row.ID,
		Name:       row.Name,
		ParentID:   row.ParentID,
		Properties: props,
		CreatedAt:  time.Unix(row.CreatedAt, 0),
		UpdatedAt:  time.Unix(row.UpdatedAt, 0),
	}, nil
}

// Helper: conversión múltiples rows → domain
func mediaRowsToDomain(rows []mediaRow) ([]*domain.Media, error) {
	media := make([]*domain.Media, 0, len(rows))

	for i := range rows {
		m, err := mediaRowToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}

	return media, nil
}
