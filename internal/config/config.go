package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Prefix de todas las variables de entorno
const Prefix = "KRAK_"

// Config es la configuración de krakd
type Config struct {
	Enabled    bool   `env:"ENABLED,default=true"`
	APIKey     string `env:"API_KEY"`
	APISecret  string `env:"API_SECRET"`
	APIBaseURL string `env:"API_BASE_URL,default=https://api.kraken.io"`
	Lossy      bool   `env:"LOSSY,default=false"`

	DataDir      string `env:"DATA_DIR"`
	MediaRoot    string `env:"MEDIA_ROOT,default=."`
	MediaBaseURL string `env:"MEDIA_BASE_URL"`
	SocketPath   string `env:"SOCKET_PATH"`
	MetricsAddr  string `env:"METRICS_ADDR,default=127.0.0.1:9464"`

	Workers           int      `env:"WORKERS,default=1"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS,default=jpg,jpeg,png,gif"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL,default=5m"`
	SweepBatchSize int           `env:"SWEEP_BATCH_SIZE,default=25"`
	SweepCooldown  time.Duration `env:"SWEEP_COOLDOWN,default=30m"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=60s"`
	PackageName    string        `env:"PACKAGE_NAME,default=Perplex.Kraken"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
}

// Load lee la configuración desde las variables KRAK_*
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith lee la configuración desde un Lookuper arbitrario (tests)
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(Prefix, l),
	}); err != nil {
		return Config{}, err
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".local", "share", "krakguard")
	}

	for i, ext := range cfg.AllowedExtensions {
		cfg.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate revisa combinaciones inválidas
func (c Config) Validate() error {
	var errs []error

	if c.Enabled {
		if c.APIKey == "" || c.APISecret == "" {
			errs = append(errs, errors.New("KRAK_API_KEY and KRAK_API_SECRET are required when enabled"))
		}
		if c.MediaBaseURL == "" {
			errs = append(errs, errors.New("KRAK_MEDIA_BASE_URL is required when enabled"))
		}
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("KRAK_WORKERS must be >= 1, got %d", c.Workers))
	}
	if c.SweepBatchSize < 1 {
		errs = append(errs, fmt.Errorf("KRAK_SWEEP_BATCH_SIZE must be >= 1, got %d", c.SweepBatchSize))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("KRAK_SWEEP_INTERVAL must be positive"))
	}
	if c.SweepCooldown < 0 {
		errs = append(errs, errors.New("KRAK_SWEEP_COOLDOWN must not be negative"))
	}
	if len(c.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("KRAK_ALLOWED_EXTENSIONS must not be empty"))
	}

	return errors.Join(errs...)
}
