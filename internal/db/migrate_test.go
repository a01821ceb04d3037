package db_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/datasource"
	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/logger"
)

func openMemory(t *testing.T) *datasource.DataSource {
	t.Helper()
	ds, err := datasource.Open(context.Background(), config.DatasourceConfig{
		URL:    "sqlite:mem:" + uuid.New().String() + ";DB_CLOSE_DELAY=-1",
		Driver: config.DriverSQLite,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func testLogger() *logger.Logger {
	return logger.New(logger.ERROR, &bytes.Buffer{})
}

func tableExists(t *testing.T, ds *datasource.DataSource, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, ds.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count))
	return count == 1
}

func TestLatest(t *testing.T) {
	latest, err := db.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)
}

func TestCreateDropLifecycle(t *testing.T) {
	ctx := context.Background()
	ds := openMemory(t)

	schema, err := db.NewSchemaManager(ds.DB(), config.SchemaCreateDrop, testLogger())
	require.NoError(t, err)

	require.NoError(t, schema.Init(ctx))
	assert.True(t, tableExists(t, ds, "app_instances"))
	assert.True(t, tableExists(t, ds, "lifecycle_events"))

	version, dirty, err := schema.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, schema.Shutdown(ctx))
	assert.False(t, tableExists(t, ds, "app_instances"))
	assert.False(t, tableExists(t, ds, "lifecycle_events"))

	version, _, err = schema.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestCreateRecreatesExistingSchema(t *testing.T) {
	ctx := context.Background()
	ds := openMemory(t)

	update, err := db.NewSchemaManager(ds.DB(), config.SchemaUpdate, testLogger())
	require.NoError(t, err)
	require.NoError(t, update.Init(ctx))
	_, err = ds.ExecContext(ctx, `INSERT INTO app_instances (id, name, profile, schema_mode, started_at)
		VALUES ('old', 'travelmanagement', 'default', 'update', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	create, err := db.NewSchemaManager(ds.DB(), config.SchemaCreate, testLogger())
	require.NoError(t, err)
	require.NoError(t, create.Init(ctx))

	var count int
	require.NoError(t, ds.QueryRowContext(ctx, "SELECT COUNT(*) FROM app_instances").Scan(&count))
	assert.Zero(t, count, "create mode starts from an empty schema")

	require.NoError(t, create.Shutdown(ctx))
	assert.True(t, tableExists(t, ds, "app_instances"), "create mode keeps the schema on shutdown")
}

func TestUpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ds := openMemory(t)

	schema, err := db.NewSchemaManager(ds.DB(), config.SchemaUpdate, testLogger())
	require.NoError(t, err)
	require.NoError(t, schema.Init(ctx))
	require.NoError(t, schema.Init(ctx))
	require.NoError(t, schema.Shutdown(ctx))
	assert.True(t, tableExists(t, ds, "app_instances"))
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	ds := openMemory(t)

	validate, err := db.NewSchemaManager(ds.DB(), config.SchemaValidate, testLogger())
	require.NoError(t, err)
	assert.ErrorContains(t, validate.Init(ctx), "database is at version 0, expected 2")

	require.NoError(t, validate.Steps(ctx, 1))
	assert.ErrorContains(t, validate.Init(ctx), "database is at version 1, expected 2")

	require.NoError(t, validate.Up(ctx))
	assert.NoError(t, validate.Init(ctx))
}

func TestNoneLeavesDatabaseUntouched(t *testing.T) {
	ctx := context.Background()
	ds := openMemory(t)

	schema, err := db.NewSchemaManager(ds.DB(), config.SchemaNone, testLogger())
	require.NoError(t, err)
	require.NoError(t, schema.Init(ctx))
	require.NoError(t, schema.Shutdown(ctx))

	assert.False(t, tableExists(t, ds, "app_instances"))
	assert.False(t, tableExists(t, ds, "schema_migrations"))
}

func TestUnknownMode(t *testing.T) {
	_, err := db.NewSchemaManager(nil, "recreate", nil)
	assert.ErrorContains(t, err, "unknown schema mode")
}

func TestInitHonoursCancelledContext(t *testing.T) {
	ds := openMemory(t)
	schema, err := db.NewSchemaManager(ds.DB(), config.SchemaUpdate, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, schema.Init(ctx), context.Canceled)
}

func TestUpdatePersistsAcrossFileReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatasourceConfig{
		URL:    "sqlite:file:" + filepath.Join(t.TempDir(), "travel.db"),
		Driver: config.DriverSQLite,
	}

	for run := 0; run < 2; run++ {
		ds, err := datasource.Open(ctx, cfg, testLogger())
		require.NoError(t, err)

		schema, err := db.NewSchemaManager(ds.DB(), config.SchemaUpdate, testLogger())
		require.NoError(t, err)
		require.NoError(t, schema.Init(ctx))
		version, _, err := schema.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		require.NoError(t, ds.Close())
	}
}
