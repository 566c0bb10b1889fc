package coordinator

import (
	"time"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/optimizer"
)

// ItemReport describe qué pasó con un asset del lote
type ItemReport struct {
	MediaID   int64             `json:"media_id"`
	Status    domain.KrakStatus `json:"status"`
	Changed   bool              `json:"changed"`
	Due       bool              `json:"due"`
	Processed bool              `json:"processed"`
	Outcome   domain.Outcome    `json:"outcome,omitempty"`
	APIStatus domain.APIStatus  `json:"api_status,omitempty"`
	Applied   bool              `json:"applied"`
	Result    *optimizer.Result `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Report es el resultado de un AfterSave o Process
type Report struct {
	BatchID     string            `json:"batch_id"`
	State       domain.BatchState `json:"state"`
	Disabled    bool              `json:"disabled,omitempty"`
	Fault       string            `json:"fault,omitempty"`
	AbortStatus domain.APIStatus  `json:"abort_status,omitempty"`
	Items       []ItemReport      `json:"items"`
	Calls       int               `json:"calls"`
	Applied     int               `json:"applied"`
	Skipped     int               `json:"skipped"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Aborted indica si el lote se cortó antes de terminar
func (r Report) Aborted() bool {
	return r.State == domain.BatchAborted
}

// Called retorna los items que llegaron al optimizador, en orden
func (r Report) Called() []ItemReport {
	var out []ItemReport
	for _, it := range r.Items {
		if it.Processed {
			out = append(out, it)
		}
	}
	return out
}

// Pending retorna los media ya optimizados que tocaba reenviar y quedaron
// sin llamar por el abort
func (r Report) Pending() []ItemReport {
	var out []ItemReport
	for _, it := range r.Items {
		if it.Due && !it.Processed && it.Status == domain.StatusKraked {
			out = append(out, it)
		}
	}
	return out
}

// LogEntries convierte los items llamados, y los pendientes, en entradas
// del historial
func (r Report) LogEntries() []*domain.KrakLogEntry {
	var out []*domain.KrakLogEntry
	for _, it := range r.Pending() {
		out = append(out, &domain.KrakLogEntry{
			BatchID:   r.BatchID,
			MediaID:   it.MediaID,
			Status:    it.Status,
			Changed:   it.Changed,
			Outcome:   domain.OutcomePending,
			CreatedAt: r.FinishedAt,
		})
	}
	for _, it := range r.Called() {
		e := &domain.KrakLogEntry{
			BatchID:      r.BatchID,
			MediaID:      it.MediaID,
			Status:       it.Status,
			Changed:      it.Changed,
			Outcome:      it.Outcome,
			APIStatus:    it.APIStatus,
			Applied:      it.Applied,
			ErrorMessage: it.Error,
			CreatedAt:    r.FinishedAt,
		}
		if it.Result != nil {
			e.OriginalSize = it.Result.OriginalSize
			e.KrakedSize = it.Result.KrakedSize
		}
		out = append(out, e)
	}
	return out
}

func (r *Report) tally() {
	r.Calls, r.Applied, r.Skipped = 0, 0, 0
	for _, it := range r.Items {
		if it.Processed {
			r.Calls++
		}
		if it.Applied {
			r.Applied++
		}
		if it.Outcome == domain.OutcomeSkipItem {
			r.Skipped++
		}
	}
}
