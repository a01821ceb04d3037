package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/logger"
)

// DataSource owns the connection pool of the relational store
type DataSource struct {
	db      *sql.DB
	url     *URL
	config  config.DatasourceConfig
	log     *logger.Logger
	sqlLog  *logger.Logger
	showSQL bool
	closed  atomic.Bool
}

// Open parses the configured URL, opens the pool and verifies the connection
func Open(ctx context.Context, cfg config.DatasourceConfig, log *logger.Logger) (*DataSource, error) {
	if cfg.Driver != config.DriverSQLite {
		return nil, fmt.Errorf("unsupported datasource driver: %q", cfg.Driver)
	}

	u, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if u.Mode == ModeFile {
		dbPath, err := u.ResolvePath()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn, err := u.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", u, err)
	}
	configurePool(db, u, cfg.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", u, err)
	}

	if log == nil {
		log = logger.GetLogger()
	}
	ds := &DataSource{
		db:      db,
		url:     u,
		config:  cfg,
		log:     log,
		sqlLog:  log.Named("sql"),
		showSQL: cfg.ShowSQL,
	}

	log.Info("Opened %s database %q (user=%s, password=%s)", u.Mode, u.Name, cfg.Username, maskPassword(cfg.Password))
	return ds, nil
}

// configurePool applies the connection policy. An in-memory database lives
// as long as one connection to it does, so it gets exactly one connection
// that is never reaped while the datasource is open.
func configurePool(db *sql.DB, u *URL, maxOpen int) {
	if !u.InMemory() {
		if maxOpen > 0 {
			db.SetMaxOpenConns(maxOpen)
		}
		return
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
}

// keepAlive holds a connection to the in-memory database for the close
// delay, so a datasource reopened within it still sees the data.
func (d *DataSource) keepAlive() {
	delay := time.Duration(d.url.CloseDelay) * time.Second

	dsn, err := d.url.DSN()
	if err != nil {
		d.log.Warning("Close delay ignored for %q: %v", d.url.Name, err)
		return
	}
	keeper, err := sql.Open(d.config.Driver, dsn)
	if err != nil {
		d.log.Warning("Close delay ignored for %q: %v", d.url.Name, err)
		return
	}
	configurePool(keeper, d.url, 1)
	if err := keeper.Ping(); err != nil {
		keeper.Close()
		d.log.Warning("Close delay ignored for %q: %v", d.url.Name, err)
		return
	}

	d.log.Debug("Keeping in-memory database %q for %v", d.url.Name, delay)
	time.AfterFunc(delay, func() {
		keeper.Close()
	})
}

func maskPassword(password string) string {
	if password == "" {
		return "(empty)"
	}
	return "***"
}

// DB returns the underlying pool
func (d *DataSource) DB() *sql.DB {
	return d.db
}

// URL returns the parsed datasource URL
func (d *DataSource) URL() *URL {
	return d.url
}

// Username returns the configured user
func (d *DataSource) Username() string {
	return d.config.Username
}

// ShowSQL reports whether statements are logged
func (d *DataSource) ShowSQL() bool {
	return d.showSQL
}

func (d *DataSource) trace(query string, args []interface{}, start time.Time, err error) {
	if !d.showSQL {
		return
	}
	query = strings.Join(strings.Fields(query), " ")
	if err != nil {
		d.sqlLog.Info("%s %v (%v, error: %v)", query, args, time.Since(start), err)
		return
	}
	d.sqlLog.Info("%s %v (%v)", query, args, time.Since(start))
}

// ExecContext executes a statement that returns no rows
func (d *DataSource) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := d.db.ExecContext(ctx, query, args...)
	d.trace(query, args, start, err)
	return result, err
}

// QueryContext executes a query that returns rows
func (d *DataSource) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query, args...)
	d.trace(query, args, start, err)
	return rows, err
}

// QueryRowContext executes a query that returns at most one row
func (d *DataSource) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := d.db.QueryRowContext(ctx, query, args...)
	d.trace(query, args, start, row.Err())
	return row
}

// Ping checks the database connection
func (d *DataSource) Ping(ctx context.Context) error {
	if d.closed.Load() {
		return fmt.Errorf("datasource is closed")
	}
	return d.db.PingContext(ctx)
}

// Stats returns pool statistics
func (d *DataSource) Stats() sql.DBStats {
	return d.db.Stats()
}

// Closed reports whether Close has been called
func (d *DataSource) Closed() bool {
	return d.closed.Load()
}

// Close closes the pool. Closing the last connection of an in-memory
// database discards it, DB_CLOSE_DELAY=n postpones that by n seconds.
func (d *DataSource) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	if d.url.InMemory() && d.url.CloseDelay > 0 {
		d.keepAlive()
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.log.Info("Closed %s database %q", d.url.Mode, d.url.Name)
	return nil
}
