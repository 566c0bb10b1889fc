// Package coordinator pasa un lote guardado por la detección de cambios, la
// elegibilidad y el optimizador externo. Corta el lote ante respuestas fatales.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/krak"
	"github.com/elsanchez/krakguard/internal/metrics"
	"github.com/elsanchez/krakguard/internal/optimizer"
	"github.com/elsanchez/krakguard/internal/snapshot"
)

// Classifier deriva la elegibilidad de un asset desde su metadata
type Classifier interface {
	Classify(asset domain.Asset) domain.KrakStatus
}

// Options configura un Coordinator
type Options struct {
	Enabled bool
	// Workers limita las llamadas concurrentes. Con <= 1 el lote corre en orden.
	Workers int
}

// Coordinator orquesta lotes. No guarda estado por lote: todo viaja en el Cycle.
type Coordinator struct {
	classifier Classifier
	optimizer  optimizer.Optimizer
	applier    optimizer.Applier
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	enabled    bool
	workers    int
	now        func() time.Time
}

// New crea un Coordinator. m puede ser nil.
func New(
	classifier Classifier,
	opt optimizer.Optimizer,
	applier optimizer.Applier,
	opts Options,
	logger zerolog.Logger,
	m *metrics.Metrics,
) (*Coordinator, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if opt == nil {
		return nil, errors.New("optimizer is required")
	}
	if applier == nil {
		return nil, errors.New("applier is required")
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	return &Coordinator{
		classifier: classifier,
		optimizer:  opt,
		applier:    applier,
		metrics:    m,
		logger:     logger.With().Str("component", "coordinator").Logger(),
		enabled:    opts.Enabled,
		workers:    workers,
		now:        time.Now,
	}, nil
}

// Enabled indica si el coordinator procesa lotes
func (c *Coordinator) Enabled() bool {
	return c.enabled
}

// Cycle es el valor por lote que va de BeforeSave a AfterSave
type Cycle struct {
	ID        string
	StartedAt time.Time
	snapshots *snapshot.Set
	resume    bool
	disabled  bool
	fault     string
}

// Disabled indica si el procesamiento está apagado en este ciclo
func (cy *Cycle) Disabled() bool {
	return cy != nil && cy.disabled
}

// BeforeSave toma el snapshot del lote antes de persistirlo. Nunca falla:
// un fallo apaga el procesamiento de este ciclo.
func (c *Coordinator) BeforeSave(ctx context.Context, batch []domain.Asset) (cycle *Cycle) {
	cycle = &Cycle{ID: uuid.NewString(), StartedAt: c.now()}

	if !c.enabled {
		cycle.disabled = true
		return cycle
	}

	defer func() {
		if r := recover(); r != nil {
			cycle.snapshots = nil
			cycle.disabled = true
			cycle.fault = fmt.Sprintf("before save: %v", r)
			c.metrics.ObserveFault("before_save")
			c.logger.Error().
				Str("batch_id", cycle.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("snapshot capture failed, processing disabled for this cycle")
		}
	}()

	cycle.snapshots = snapshot.Build(batch)
	c.logger.Debug().
		Str("batch_id", cycle.ID).
		Int("assets", cycle.snapshots.Len()).
		Msg("before-save snapshot taken")
	return cycle
}

// AfterSave evalúa el lote persistido contra su ciclo y llama al optimizador
// donde corresponde. Un cycle nil equivale a uno sin snapshots. No retorna
// errores ni propaga panics.
func (c *Coordinator) AfterSave(ctx context.Context, cycle *Cycle, batch []domain.Asset) Report {
	if cycle == nil {
		cycle = &Cycle{ID: uuid.NewString(), StartedAt: c.now(), snapshots: snapshot.Build(nil)}
		if !c.enabled {
			cycle.disabled = true
		}
	}
	return c.run(ctx, cycle, batch)
}

// Process corre un lote sin guardado alrededor: nada cuenta como cambiado,
// así que solo se llaman los assets nunca procesados.
func (c *Coordinator) Process(ctx context.Context, batch []domain.Asset) Report {
	return c.AfterSave(ctx, nil, batch)
}

// Resume reintenta media que quedaron pendientes de un lote abortado. Los ya
// optimizados cuentan como cambiados: su archivo cambió en el lote original.
func (c *Coordinator) Resume(ctx context.Context, batch []domain.Asset) Report {
	cycle := &Cycle{
		ID:        uuid.NewString(),
		StartedAt: c.now(),
		snapshots: snapshot.Build(nil),
		resume:    true,
		disabled:  !c.enabled,
	}
	return c.run(ctx, cycle, batch)
}

type plan struct {
	index   int
	asset   domain.Asset
	status  domain.KrakStatus
	changed bool
	process bool
}

func (c *Coordinator) run(ctx context.Context, cycle *Cycle, batch []domain.Asset) (report Report) {
	report = Report{
		BatchID:   cycle.ID,
		State:     domain.BatchRunning,
		StartedAt: cycle.StartedAt,
	}

	defer func() {
		if r := recover(); r != nil {
			report.Fault = fmt.Sprintf("after save: %v", r)
			report.State = domain.BatchAborted
			c.metrics.ObserveFault("after_save")
			c.logger.Error().
				Str("batch_id", cycle.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("batch processing failed")
		}
		report.FinishedAt = c.now()
		report.tally()
		c.metrics.ObserveBatch(report.State)
	}()

	if cycle.disabled {
		report.Disabled = true
		report.Fault = cycle.fault
		report.Items = ineligibleItems(batch)
		report.State = domain.BatchCompleted
		return report
	}

	plans, err := c.evaluate(cycle, batch)
	if err != nil {
		c.metrics.ObserveFault("evaluate")
		c.logger.Error().Err(err).Str("batch_id", cycle.ID).Msg("evaluation failed, processing disabled for this cycle")
		report.Disabled = true
		report.Fault = err.Error()
		report.Items = ineligibleItems(batch)
		report.State = domain.BatchCompleted
		return report
	}

	report.Items = make([]ItemReport, len(plans))
	for i, p := range plans {
		report.Items[i] = ItemReport{
			MediaID: assetID(p.asset),
			Status:  p.status,
			Changed: p.changed,
			Due:     p.process,
		}
	}

	if c.workers > 1 {
		c.executeParallel(ctx, cycle, plans, &report)
	} else {
		c.executeSequential(ctx, cycle, plans, &report)
	}

	if report.State == domain.BatchRunning {
		report.State = domain.BatchCompleted
	}
	report.tally()

	c.logger.Info().
		Str("batch_id", cycle.ID).
		Str("state", string(report.State)).
		Int("assets", len(report.Items)).
		Int("calls", report.Calls).
		Int("applied", report.Applied).
		Msg("batch finished")
	return report
}

// evaluate corre la parte sin efectos para cada asset. Un panic se convierte
// en error y apaga el ciclo entero.
func (c *Coordinator) evaluate(cycle *Cycle, batch []domain.Asset) (plans []plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			plans = nil
			err = fmt.Errorf("evaluate: %v", r)
		}
	}()

	plans = make([]plan, len(batch))
	for i, asset := range batch {
		status := c.classifier.Classify(asset)
		changed := cycle.snapshots.HasChanged(asset) ||
			(cycle.resume && status == domain.StatusKraked)
		plans[i] = plan{
			index:   i,
			asset:   asset,
			status:  status,
			changed: changed,
			process: asset != nil && krak.ShouldProcess(status, changed),
		}
	}
	return plans, nil
}

func (c *Coordinator) executeSequential(ctx context.Context, cycle *Cycle, plans []plan, report *Report) {
	for _, p := range plans {
		if !p.process {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.State = domain.BatchAborted
			report.Fault = err.Error()
			return
		}

		item := c.execute(ctx, cycle, p, report.Items[p.index])
		report.Items[p.index] = item

		if item.Outcome == domain.OutcomeAbortBatch {
			report.State = domain.BatchAborted
			report.AbortStatus = item.APIStatus
			c.logger.Warn().
				Str("batch_id", cycle.ID).
				Int64("media_id", item.MediaID).
				Str("api_status", item.APIStatus.String()).
				Msg("batch aborted, remaining assets not sent")
			return
		}
	}
}

// executeParallel: tras un AbortBatch las llamadas en vuelo terminan y no
// arranca ninguna nueva.
func (c *Coordinator) executeParallel(ctx context.Context, cycle *Cycle, plans []plan, report *Report) {
	var (
		g         errgroup.Group
		aborted   atomic.Bool
		abortOnce sync.Once
	)
	g.SetLimit(c.workers)

	for _, p := range plans {
		p := p
		if !p.process {
			continue
		}
		if aborted.Load() || ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if aborted.Load() || ctx.Err() != nil {
				return nil
			}
			item := c.execute(ctx, cycle, p, report.Items[p.index])
			report.Items[p.index] = item

			if item.Outcome == domain.OutcomeAbortBatch {
				aborted.Store(true)
				abortOnce.Do(func() { report.AbortStatus = item.APIStatus })
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case aborted.Load():
		report.State = domain.BatchAborted
		c.logger.Warn().
			Str("batch_id", cycle.ID).
			Str("api_status", report.AbortStatus.String()).
			Msg("batch aborted, remaining assets not sent")
	case ctx.Err() != nil:
		report.State = domain.BatchAborted
		report.Fault = ctx.Err().Error()
	}
}

// execute llama al optimizador para un asset, clasifica y aplica el
// resultado. Un panic se reporta como abort.
func (c *Coordinator) execute(ctx context.Context, cycle *Cycle, p plan, item ItemReport) (out ItemReport) {
	out = item
	log := c.logger.With().Str("batch_id", cycle.ID).Int64("media_id", item.MediaID).Logger()

	defer func() {
		if r := recover(); r != nil {
			c.metrics.ObserveFault("execute")
			out.Outcome = domain.OutcomeAbortBatch
			out.APIStatus = domain.APIStatusUnexpectedError
			out.Error = fmt.Sprintf("panic: %v", r)
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("optimizer call failed")
		}
	}()

	out.Processed = true
	c.metrics.ObserveCall()

	result, err := c.optimizer.Compress(ctx, p.asset)
	out.Result = result
	out.Outcome = krak.ClassifyOutcome(result, err)
	c.metrics.ObserveOutcome(out.Outcome)

	if err != nil {
		out.APIStatus = krak.ErrorStatus(err)
		out.Error = err.Error()
	} else {
		out.APIStatus = domain.APIStatusOk
	}

	switch out.Outcome {
	case domain.OutcomeApply:
		if err := c.applier.Save(ctx, p.asset, result, p.changed); err != nil {
			c.metrics.ObserveApplyError()
			out.Error = err.Error()
			log.Error().Err(err).Msg("could not save optimized file")
			return out
		}
		out.Applied = true
		log.Info().
			Int64("original_size", result.OriginalSize).
			Int64("kraked_size", result.KrakedSize).
			Bool("changed", p.changed).
			Msg("optimized file applied")

	case domain.OutcomeSkipItem:
		ev := log.Info()
		if err != nil {
			ev = ev.Str("api_status", out.APIStatus.String()).Err(err)
		}
		ev.Msg("asset skipped")

	case domain.OutcomeAbortBatch:
		log.Error().Str("api_status", out.APIStatus.String()).Err(err).Msg("session-fatal optimizer response")
	}

	return out
}

func ineligibleItems(batch []domain.Asset) []ItemReport {
	items := make([]ItemReport, len(batch))
	for i, a := range batch {
		items[i] = ItemReport{MediaID: assetID(a), Status: domain.StatusIneligible}
	}
	return items
}

func assetID(a domain.Asset) int64 {
	if a == nil {
		return 0
	}
	return a.AssetID()
}
