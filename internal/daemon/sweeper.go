package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/elsanchez/krakguard/internal/coordinator"
	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/repository"
)

// Processor reintenta un lote sin guardado alrededor
type Processor interface {
	Resume(ctx context.Context, batch []domain.Asset) coordinator.Report
}

// Gate indica si el guard sigue instalado
type Gate interface {
	Attached() bool
}

// SweeperOptions configura el Sweeper
type SweeperOptions struct {
	Interval  time.Duration
	Cooldown  time.Duration
	BatchSize int
}

// Sweeper reintenta los media que quedaron sin procesar porque un lote se
// abortó. Tras un lote abortado espera Cooldown antes de volver a llamar.
type Sweeper struct {
	mediaRepo repository.MediaRepository
	ledger    repository.KrakLogRepository
	processor Processor
	gate      Gate
	logger    zerolog.Logger

	interval  time.Duration
	cooldown  time.Duration
	batchSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	flight singleflight.Group
	now    func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
	lastReport  *coordinator.Report
	sweeps      int
}

// NewSweeper crea un nuevo sweeper. gate puede ser nil.
func NewSweeper(
	mediaRepo repository.MediaRepository,
	ledger repository.KrakLogRepository,
	processor Processor,
	gate Gate,
	opts SweeperOptions,
	logger zerolog.Logger,
) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}

	return &Sweeper{
		mediaRepo: mediaRepo,
		ledger:    ledger,
		processor: processor,
		gate:      gate,
		logger:    logger.With().Str("component", "sweeper").Logger(),
		interval:  opts.Interval,
		cooldown:  opts.Cooldown,
		batchSize: opts.BatchSize,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Start inicia el loop
func (s *Sweeper) Start() {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("cooldown", s.cooldown).
		Int("batch_size", s.batchSize).
		Msg("sweeper started")

	s.wg.Add(1)
	go s.loop()
}

// Stop detiene el loop y espera al lote en curso
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Procesar inmediatamente al inicio
	s.SweepOnce(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(s.ctx)
		}
	}
}

// SweepOnce procesa un lote de pendientes. Retorna nil si no corrió nada
// (en pausa, guard desinstalado o sin pendientes). Llamadas concurrentes
// comparten el mismo sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) *coordinator.Report {
	v, _, _ := s.flight.Do("sweep", func() (interface{}, error) {
		return s.sweep(ctx), nil
	})
	report, _ := v.(*coordinator.Report)
	return report
}

func (s *Sweeper) sweep(ctx context.Context) *coordinator.Report {
	if s.gate != nil && !s.gate.Attached() {
		return nil
	}

	s.mu.Lock()
	paused := s.now().Before(s.pausedUntil)
	s.mu.Unlock()
	if paused {
		return nil
	}

	pending, err := s.mediaRepo.GetUnprocessed(ctx, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not load unprocessed media")
		return nil
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info().Int("count", len(pending)).Msg("retrying unprocessed media")

	batch := make([]domain.Asset, len(pending))
	for i, m := range pending {
		batch[i] = m
	}

	report := s.processor.Resume(ctx, batch)

	if s.ledger != nil {
		for _, entry := range report.LogEntries() {
			if _, err := s.ledger.Record(ctx, entry); err != nil {
				s.logger.Error().Err(err).Int64("media_id", entry.MediaID).Msg("could not write krak log")
			}
		}
	}

	s.mu.Lock()
	s.sweeps++
	s.lastReport = &report
	if report.Aborted() && report.AbortStatus != 0 {
		s.pausedUntil = s.now().Add(s.cooldown)
		s.logger.Warn().
			Str("api_status", report.AbortStatus.String()).
			Time("paused_until", s.pausedUntil).
			Msg("sweep aborted, backing off")
	}
	s.mu.Unlock()

	return &report
}

// PausedUntil retorna hasta cuándo está en pausa (cero si no lo está)
func (s *Sweeper) PausedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().Before(s.pausedUntil) {
		return s.pausedUntil
	}
	return time.Time{}
}

// GetStats retorna estadísticas de media, historial y del sweeper
func (s *Sweeper) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	for _, status := range []domain.KrakStatus{domain.StatusKrakable, domain.StatusKraked, domain.StatusIneligible} {
		n, err := s.mediaRepo.CountByKrakStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		stats["media_"+string(status)] = n
	}

	total, err := s.mediaRepo.CountTotal(ctx)
	if err != nil {
		return nil, err
	}
	stats["media_total"] = total

	if s.ledger != nil {
		for _, outcome := range []domain.Outcome{domain.OutcomeApply, domain.OutcomeSkipItem, domain.OutcomeAbortBatch} {
			n, err := s.ledger.CountByOutcome(ctx, outcome)
			if err != nil {
				return nil, err
			}
			stats["calls_"+string(outcome)] = n
		}
	}

	s.mu.Lock()
	stats["sweeps"] = s.sweeps
	paused := 0
	if s.now().Before(s.pausedUntil) {
		paused = 1
	}
	stats["sweeper_paused"] = paused
	s.mu.Unlock()

	return stats, nil
}
