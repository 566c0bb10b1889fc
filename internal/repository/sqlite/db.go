package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/krak"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBFileName es el nombre del archivo dentro del data dir
const DBFileName = "krakguard.db"

// StatusFunc calcula el estado krak que se guarda junto a cada media
type StatusFunc func(domain.Asset) domain.KrakStatus

// WAL y busy timeout para guardados concurrentes desde el socket
const dsnParams = "?_busy_timeout=5000&_journal_mode=WAL"

// Database agrupa la conexión y los repositorios del guard
type Database struct {
	DB            *sqlx.DB
	MediaRepo     *MediaRepository
	LogRepo       *KrakLogRepository
	SchemaVersion uint
}

// NewDatabase abre (o crea) krakguard.db en dataDir y lo deja migrado.
// Si status es nil se usa el clasificador con las extensiones por defecto.
func NewDatabase(dataDir string, status StatusFunc) (*Database, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", filepath.Join(dataDir, DBFileName)+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	version, err := migrateUp(sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db := sqlx.NewDb(sqlDB, "sqlite3")
	db.SetMaxOpenConns(1) // SQLite no soporta concurrencia de escritura

	if status == nil {
		status = krak.NewStatusClassifier(nil).Classify
	}

	return &Database{
		DB:            db,
		MediaRepo:     NewMediaRepository(db, status),
		LogRepo:       NewKrakLogRepository(db),
		SchemaVersion: version,
	}, nil
}

// migrateUp aplica las migraciones embebidas y retorna la versión resultante
func migrateUp(db *sql.DB) (uint, error) {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return 0, fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// Close cierra la conexión
func (d *Database) Close() error {
	return d.DB.Close()
}
