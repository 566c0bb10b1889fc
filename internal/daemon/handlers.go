package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/pipeline"
	"github.com/elsanchez/krakguard/internal/repository"
)

const defaultListLimit = 50

// Classifier calcula el estado krak de un media para las respuestas
type Classifier interface {
	Classify(asset domain.Asset) domain.KrakStatus
}

// Handlers maneja las peticiones del servidor
type Handlers struct {
	media      *pipeline.MediaService
	mediaRepo  repository.MediaRepository
	ledger     repository.KrakLogRepository
	sweeper    *Sweeper
	classifier Classifier
}

// NewHandlers crea un nuevo conjunto de handlers. sweeper puede ser nil.
func NewHandlers(
	media *pipeline.MediaService,
	mediaRepo repository.MediaRepository,
	ledger repository.KrakLogRepository,
	sweeper *Sweeper,
	classifier Classifier,
) *Handlers {
	return &Handlers{
		media:      media,
		mediaRepo:  mediaRepo,
		ledger:     ledger,
		sweeper:    sweeper,
		classifier: classifier,
	}
}

// SavePayload es el payload para guardar un lote de media
type SavePayload struct {
	Media []*domain.Media `json:"media"`
}

// HandleSave guarda el lote a través del pipeline
func (h *Handlers) HandleSave(ctx context.Context, payload json.RawMessage) Response {
	var req SavePayload
	// UseNumber: los enteros del payload no pasan por float64
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return errorResponse(fmt.Errorf("invalid payload: %w", err))
	}

	if len(req.Media) == 0 {
		return Response{Success: false, Error: "media is required"}
	}

	result, err := h.media.Save(ctx, req.Media)
	if err != nil {
		return errorResponse(fmt.Errorf("save media: %w", err))
	}

	return dataResponse(result)
}

// IDPayload es el payload para consultar un media
type IDPayload struct {
	ID int64 `json:"id"`
}

// HandleGet retorna un media con su estado krak
func (h *Handlers) HandleGet(ctx context.Context, payload json.RawMessage) Response {
	var req IDPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(fmt.Errorf("invalid payload: %w", err))
	}

	if req.ID == 0 {
		return Response{Success: false, Error: "id is required"}
	}

	m, err := h.mediaRepo.GetByID(ctx, req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Response{Success: false, Error: fmt.Sprintf("media %d not found", req.ID)}
		}
		return errorResponse(fmt.Errorf("get media: %w", err))
	}

	return dataResponse(map[string]interface{}{
		"media":       m,
		"krak_status": h.classifier.Classify(m),
	})
}

// ListPayload es el payload para listar media
type ListPayload struct {
	Limit int `json:"limit"`
}

// HandleList lista los media modificados recientemente
func (h *Handlers) HandleList(ctx context.Context, payload json.RawMessage) Response {
	var req ListPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		// Si no hay payload, usar default
		req.Limit = defaultListLimit
	}

	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	media, err := h.mediaRepo.GetRecent(ctx, req.Limit)
	if err != nil {
		return errorResponse(fmt.Errorf("get media: %w", err))
	}

	items := make([]map[string]interface{}, 0, len(media))
	for _, m := range media {
		items = append(items, map[string]interface{}{
			"id":          m.ID,
			"name":        m.Name,
			"file":        m.FileRef(),
			"krak_status": h.classifier.Classify(m),
			"updated_at":  m.UpdatedAt,
		})
	}

	return dataResponse(map[string]interface{}{
		"media": items,
		"count": len(items),
	})
}

// HistoryPayload es el payload para consultar el historial
type HistoryPayload struct {
	MediaID int64 `json:"media_id,omitempty"`
	Limit   int   `json:"limit,omitempty"`
}

// HandleHistory retorna el historial de un media, o el global si no hay id
func (h *Handlers) HandleHistory(ctx context.Context, payload json.RawMessage) Response {
	var req HistoryPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return errorResponse(fmt.Errorf("invalid payload: %w", err))
		}
	}

	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	var (
		entries []*domain.KrakLogEntry
		err     error
	)
	if req.MediaID != 0 {
		entries, err = h.ledger.GetByMedia(ctx, req.MediaID, req.Limit)
	} else {
		entries, err = h.ledger.GetRecent(ctx, req.Limit)
	}
	if err != nil {
		return errorResponse(fmt.Errorf("get history: %w", err))
	}

	return dataResponse(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// HandleStats retorna estadísticas
func (h *Handlers) HandleStats(ctx context.Context) Response {
	stats := map[string]int{}
	if h.sweeper != nil {
		var err error
		if stats, err = h.sweeper.GetStats(ctx); err != nil {
			return errorResponse(fmt.Errorf("get stats: %w", err))
		}
	}

	attached := 0
	if h.media.Attached() {
		attached = 1
	}
	stats["guard_attached"] = attached

	return dataResponse(stats)
}

// HandleSweep fuerza un sweep de pendientes
func (h *Handlers) HandleSweep(ctx context.Context) Response {
	if h.sweeper == nil {
		return Response{Success: false, Error: "sweeper is not running"}
	}

	report := h.sweeper.SweepOnce(ctx)
	return dataResponse(map[string]interface{}{
		"ran":          report != nil,
		"report":       report,
		"paused_until": h.sweeper.PausedUntil(),
	})
}

// UninstallPayload es el payload de desinstalación
type UninstallPayload struct {
	Package string `json:"package"`
}

// HandleUninstall avisa al pipeline que un paquete se va a desinstalar
func (h *Handlers) HandleUninstall(ctx context.Context, payload json.RawMessage) Response {
	var req UninstallPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return errorResponse(fmt.Errorf("invalid payload: %w", err))
	}

	if req.Package == "" {
		return Response{Success: false, Error: "package is required"}
	}

	return dataResponse(map[string]interface{}{
		"package":  req.Package,
		"detached": h.media.BeforeUninstall(ctx, req.Package),
	})
}

func dataResponse(v interface{}) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(fmt.Errorf("marshal response: %w", err))
	}
	return Response{Success: true, Data: data}
}

func errorResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
