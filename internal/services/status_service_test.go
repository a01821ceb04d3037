package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/datasource"
	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/db/sqlite"
	"github.com/klu/travelmanagement/internal/logger"
	"github.com/klu/travelmanagement/internal/models"
)

func newService(t *testing.T, mode string) (*StatusService, *datasource.DataSource) {
	t.Helper()
	ctx := context.Background()
	log := logger.New(logger.ERROR, &bytes.Buffer{})

	ds, err := datasource.Open(ctx, config.DatasourceConfig{
		URL:    "sqlite:mem:" + uuid.New().String() + ";DB_CLOSE_DELAY=-1",
		Driver: config.DriverSQLite,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	schema, err := db.NewSchemaManager(ds.DB(), mode, log)
	require.NoError(t, err)
	require.NoError(t, schema.Init(ctx))

	store := sqlite.New(ds)
	instance := &models.Instance{Name: "travelmanagement", Profile: "test", SchemaMode: mode}
	if mode != config.SchemaNone {
		require.NoError(t, store.CreateInstance(ctx, instance))
	}

	return NewStatusService(store, ds, schema, instance), ds
}

func TestGetStatus(t *testing.T) {
	svc, _ := newService(t, config.SchemaCreateDrop)
	svc.now = func() time.Time { return svc.instance.StartedAt.Add(90 * time.Second) }
	svc.SetJobs(func() []string { return []string{"heartbeat", "purge"} })

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1m30s", status.Uptime)
	assert.True(t, status.InMemory)
	assert.Equal(t, 1, status.TotalInstances)
	assert.Equal(t, 1, status.ActiveInstances)
	assert.Equal(t, uint(2), status.Schema.Version)
	assert.Equal(t, uint(2), status.Schema.Latest)
	assert.Equal(t, config.SchemaCreateDrop, status.Schema.Mode)
	assert.Equal(t, 1, status.Pool.MaxOpenConnections)
	assert.Equal(t, []string{"heartbeat", "purge"}, status.SchedulerJobs)
	assert.Same(t, svc.instance, svc.Instance())
}

func TestHealthUp(t *testing.T) {
	svc, _ := newService(t, config.SchemaUpdate)

	report := svc.Health(context.Background())
	assert.Equal(t, models.StatusUp, report.Status)
	assert.Equal(t, models.ComponentHealth{Status: models.StatusUp, Detail: "mem"}, report.Components["datasource"])
	assert.Equal(t, models.ComponentHealth{Status: models.StatusUp, Detail: "version 2"}, report.Components["schema"])
}

func TestHealthUnmanagedSchema(t *testing.T) {
	svc, _ := newService(t, config.SchemaNone)

	report := svc.Health(context.Background())
	assert.Equal(t, models.StatusUp, report.Status)
	assert.Equal(t, "unmanaged", report.Components["schema"].Detail)
}

func TestHealthDownAfterClose(t *testing.T) {
	svc, ds := newService(t, config.SchemaUpdate)
	require.NoError(t, ds.Close())

	report := svc.Health(context.Background())
	assert.Equal(t, models.StatusDown, report.Status)
	assert.Equal(t, models.StatusDown, report.Components["datasource"].Status)
	assert.Equal(t, models.StatusDown, report.Components["schema"].Status)
}

func TestHealthDownWhenSchemaRolledBack(t *testing.T) {
	svc, _ := newService(t, config.SchemaCreateDrop)
	require.NoError(t, svc.schema.Down(context.Background()))

	report := svc.Health(context.Background())
	assert.Equal(t, models.StatusDown, report.Status)
	assert.Equal(t, models.StatusUp, report.Components["datasource"].Status)
	assert.Equal(t, models.ComponentHealth{Status: models.StatusDown, Detail: "version 0, expected 2"}, report.Components["schema"])
}
