// Package pipeline es el flujo de guardado de media del host. El guard de
// optimización se registra explícitamente con Attach y ve cada lote antes y
// después de persistirlo.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/elsanchez/krakguard/internal/coordinator"
	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/repository"
)

// DefaultPackageName es el nombre con el que se desinstala el guard
const DefaultPackageName = "Perplex.Kraken"

// Guard recibe las dos fases de cada lote guardado
type Guard interface {
	BeforeSave(ctx context.Context, batch []domain.Asset) *coordinator.Cycle
	AfterSave(ctx context.Context, cycle *coordinator.Cycle, batch []domain.Asset) coordinator.Report
}

// SaveResult es lo que retorna un Save
type SaveResult struct {
	Media  []*domain.Media     `json:"media"`
	Report *coordinator.Report `json:"report,omitempty"`
}

// MediaService persiste lotes de media y notifica al guard registrado
type MediaService struct {
	repo        repository.MediaRepository
	ledger      repository.KrakLogRepository
	logger      zerolog.Logger
	packageName string

	mu    sync.RWMutex
	guard Guard
}

// NewMediaService crea el servicio. ledger puede ser nil.
func NewMediaService(repo repository.MediaRepository, ledger repository.KrakLogRepository, packageName string, logger zerolog.Logger) *MediaService {
	if packageName == "" {
		packageName = DefaultPackageName
	}
	return &MediaService{
		repo:        repo,
		ledger:      ledger,
		packageName: packageName,
		logger:      logger.With().Str("component", "media_service").Logger(),
	}
}

// Attach registra el guard, reemplazando al anterior
func (s *MediaService) Attach(g Guard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guard = g
}

// Detach quita el guard; los guardados siguientes no lo disparan
func (s *MediaService) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guard = nil
}

// Attached indica si hay un guard registrado
func (s *MediaService) Attached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guard != nil
}

// BeforeUninstall se llama antes de quitar un paquete. Si es el nuestro,
// desregistra el guard y retorna true.
func (s *MediaService) BeforeUninstall(ctx context.Context, packageName string) bool {
	if packageName != s.packageName {
		return false
	}
	s.Detach()
	s.logger.Info().Str("package", packageName).Msg("package uninstalled, guard detached")
	return true
}

// Save persiste el lote. El guard ve los valores almacenados antes de
// escribir y los persistidos después. Nada del guard (tampoco leer la
// versión almacenada) hace fallar el guardado; un error al persistir sí.
func (s *MediaService) Save(ctx context.Context, batch []*domain.Media) (*SaveResult, error) {
	s.mu.RLock()
	guard := s.guard
	s.mu.RUnlock()

	var cycle *coordinator.Cycle
	if guard != nil {
		before, err := s.storedVersions(ctx, batch)
		if err != nil {
			// Sin snapshot previo nada cuenta como cambiado; el guardado sigue
			s.logger.Warn().Err(err).Msg("could not load stored media, change detection off for this save")
			before = nil
		}
		cycle = guard.BeforeSave(ctx, before)
	}

	ids := make([]int64, 0, len(batch))
	for _, m := range batch {
		if m == nil {
			continue
		}
		id, err := s.persist(ctx, m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	saved, err := s.reload(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{Media: saved}
	if guard == nil {
		return result, nil
	}

	after := make([]domain.Asset, len(saved))
	for i, m := range saved {
		after[i] = m
	}

	report := guard.AfterSave(ctx, cycle, after)
	result.Report = &report
	s.record(ctx, report)

	return result, nil
}

// SaveSilently persiste un media sin pasar por el guard
func (s *MediaService) SaveSilently(ctx context.Context, m *domain.Media) error {
	if m == nil {
		return errors.New("media is nil")
	}
	_, err := s.persist(ctx, m)
	return err
}

// storedVersions arma el lote previo al guardado: la versión almacenada de
// cada media, o el propio item si todavía no existe.
func (s *MediaService) storedVersions(ctx context.Context, batch []*domain.Media) ([]domain.Asset, error) {
	ids := make([]int64, 0, len(batch))
	for _, m := range batch {
		if m != nil && m.ID != 0 {
			ids = append(ids, m.ID)
		}
	}

	stored, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load stored media: %w", err)
	}

	before := make([]domain.Asset, 0, len(batch))
	for _, m := range batch {
		if m == nil {
			continue
		}
		if prev, ok := stored[m.ID]; ok {
			before = append(before, prev)
			continue
		}
		before = append(before, m.Clone())
	}
	return before, nil
}

func (s *MediaService) persist(ctx context.Context, m *domain.Media) (int64, error) {
	if m.ID != 0 {
		err := s.repo.Update(ctx, m)
		if err == nil {
			return m.ID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("save media %d: %w", m.ID, err)
		}
	}

	id, err := s.repo.Create(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("save media %q: %w", m.Name, err)
	}
	m.ID = id
	return id, nil
}

func (s *MediaService) reload(ctx context.Context, ids []int64) ([]*domain.Media, error) {
	byID, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload saved media: %w", err)
	}

	out := make([]*domain.Media, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("reload saved media %d: %w", id, repository.ErrNotFound)
		}
		out = append(out, m)
	}
	return out, nil
}

// record escribe en el historial cada item que llegó al optimizador
func (s *MediaService) record(ctx context.Context, report coordinator.Report) {
	if s.ledger == nil {
		return
	}
	for _, entry := range report.LogEntries() {
		if _, err := s.ledger.Record(ctx, entry); err != nil {
			s.logger.Error().Err(err).
				Str("batch_id", report.BatchID).
				Int64("media_id", entry.MediaID).
				Msg("could not write krak log")
		}
	}
}
