package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/elsanchez/krakguard/internal/config"
	"github.com/elsanchez/krakguard/internal/coordinator"
	"github.com/elsanchez/krakguard/internal/daemon"
	"github.com/elsanchez/krakguard/internal/krak"
	"github.com/elsanchez/krakguard/internal/metrics"
	"github.com/elsanchez/krakguard/internal/optimizer"
	"github.com/elsanchez/krakguard/internal/pipeline"
	"github.com/elsanchez/krakguard/internal/repository/sqlite"
	"github.com/elsanchez/krakguard/pkg/client"
)

const (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger := log.Logger
	logger.Info().Str("version", version).Bool("enabled", cfg.Enabled).Msg("krakd starting")

	classifier := krak.NewStatusClassifier(cfg.AllowedExtensions)

	db, err := sqlite.NewDatabase(cfg.DataDir, classifier.Classify)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize database")
	}
	defer db.Close()
	logger.Info().Str("data_dir", cfg.DataDir).Uint("schema_version", db.SchemaVersion).Msg("database initialized")

	media := pipeline.NewMediaService(db.MediaRepo, db.LogRepo, cfg.PackageName, logger)

	var sweeper *daemon.Sweeper
	if cfg.Enabled {
		coord, err := newCoordinator(cfg, classifier, media, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize coordinator")
		}
		media.Attach(coord)

		sweeper = daemon.NewSweeper(db.MediaRepo, db.LogRepo, coord, media, daemon.SweeperOptions{
			Interval:  cfg.SweepInterval,
			Cooldown:  cfg.SweepCooldown,
			BatchSize: cfg.SweepBatchSize,
		}, logger)
		sweeper.Start()
		defer sweeper.Stop()
	} else {
		logger.Warn().Msg("optimization disabled, media will be saved without the guard")
	}

	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = client.GetDefaultSocketPath()
	}

	handlers := daemon.NewHandlers(media, db.MediaRepo, db.LogRepo, sweeper, classifier)
	server := daemon.NewServer(socketPath, handlers, logger)
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start server")
	}
	defer server.Stop()

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           daemon.Router(promhttp.Handler(), db.DB.PingContext),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	logger.Info().Str("socket", socketPath).Msg("krakd is ready")

	<-ctx.Done()
	logger.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown metrics server")
	}
}

func newCoordinator(cfg config.Config, classifier *krak.StatusClassifier, media *pipeline.MediaService, logger zerolog.Logger) (*coordinator.Coordinator, error) {
	kraken, err := optimizer.NewKrakenClient(optimizer.ClientConfig{
		BaseURL:        cfg.APIBaseURL,
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		Lossy:          cfg.Lossy,
		MediaBaseURL:   cfg.MediaBaseURL,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	applier := optimizer.NewFileApplier(cfg.MediaRoot, media, cfg.RequestTimeout)

	return coordinator.New(
		classifier,
		kraken,
		applier,
		coordinator.Options{Enabled: cfg.Enabled, Workers: cfg.Workers},
		logger,
		metrics.New(prometheus.DefaultRegisterer),
	)
}
