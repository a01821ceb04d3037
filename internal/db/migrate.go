package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaManager applies the embedded migrations according to the schema mode
type SchemaManager struct {
	db   *sql.DB
	mode string
	log  *logger.Logger

	mu      sync.Mutex
	migrate *migrate.Migrate
}

// NewSchemaManager creates a schema manager. Nothing touches the database
// until a migration operation runs.
func NewSchemaManager(database *sql.DB, mode string, log *logger.Logger) (*SchemaManager, error) {
	if !config.IsSchemaMode(mode) {
		return nil, fmt.Errorf("unknown schema mode: %q", mode)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &SchemaManager{db: database, mode: mode, log: log}, nil
}

// Mode returns the configured schema mode
func (s *SchemaManager) Mode() string {
	return s.mode
}

func (s *SchemaManager) instance() (*migrate.Migrate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.migrate != nil {
		return s.migrate, nil
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{log: s.log}

	s.migrate = m
	return m, nil
}

// Init prepares the schema at context startup
func (s *SchemaManager) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch s.mode {
	case config.SchemaNone:
		s.log.Debug("Schema management disabled")
		return nil
	case config.SchemaValidate:
		return s.validate()
	case config.SchemaUpdate:
		return s.Up(ctx)
	case config.SchemaCreate, config.SchemaCreateDrop:
		if err := s.Down(ctx); err != nil {
			return fmt.Errorf("failed to drop existing schema: %w", err)
		}
		return s.Up(ctx)
	}
	return fmt.Errorf("unknown schema mode: %q", s.mode)
}

// Shutdown drops the schema when the mode is create-drop
func (s *SchemaManager) Shutdown(ctx context.Context) error {
	if s.mode != config.SchemaCreateDrop {
		return nil
	}
	if err := s.Down(ctx); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	return nil
}

func (s *SchemaManager) validate() error {
	version, dirty, err := s.Version()
	if err != nil {
		return err
	}
	latest, err := Latest()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema validation failed: version %d is dirty", version)
	}
	if version != latest {
		return fmt.Errorf("schema validation failed: database is at version %d, expected %d", version, latest)
	}
	s.log.Info("Schema validated at version %d", version)
	return nil
}

// Up applies all pending migrations
func (s *SchemaManager) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.instance()
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.log.Debug("Schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	s.log.Info("Schema migrated to version %d", version)
	return nil
}

// Down reverts all applied migrations
func (s *SchemaManager) Down(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.instance()
	if err != nil {
		return err
	}

	if err := m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	s.log.Info("Schema dropped")
	return nil
}

// Steps applies n migrations, reverting when n is negative
func (s *SchemaManager) Steps(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.instance()
	if err != nil {
		return err
	}

	if err := m.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to migrate %d steps: %w", n, err)
	}
	return nil
}

// Version returns the applied schema version; 0 means no migration applied
func (s *SchemaManager) Version() (uint, bool, error) {
	m, err := s.instance()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// Latest returns the highest version of the embedded migrations
func Latest() (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations found: %w", err)
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read migrations: %w", err)
		}
		version = next
	}
}

// migrateLogger routes golang-migrate output to the application logger
type migrateLogger struct {
	log *logger.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.Enabled(logger.DEBUG)
}
