package sqlite

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
	"github.com/klu/travelmanagement/internal/logger"
	"github.com/klu/travelmanagement/internal/models"
	"github.com/klu/travelmanagement/internal/shared"
)

func newStore(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()
	log := logger.New(logger.ERROR, &bytes.Buffer{})

	ds, err := datasource.Open(ctx, config.DatasourceConfig{
		URL:    "sqlite:mem:" + uuid.New().String() + ";DB_CLOSE_DELAY=-1",
		Driver: config.DriverSQLite,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	schema, err := db.NewSchemaManager(ds.DB(), config.SchemaCreateDrop, log)
	require.NoError(t, err)
	require.NoError(t, schema.Init(ctx))

	return New(ds)
}

func newInstance(name string, startedAt time.Time) *models.Instance {
	return &models.Instance{
		Name:       name,
		Profile:    "test",
		Hostname:   "localhost",
		PID:        42,
		SchemaMode: config.SchemaCreateDrop,
		StartedAt:  startedAt,
	}
}

func TestCreateAndGetInstance(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	started := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	instance := newInstance("travelmanagement", started)
	require.NoError(t, store.CreateInstance(ctx, instance))
	require.NotEmpty(t, instance.ID)

	got, err := store.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "travelmanagement", got.Name)
	assert.Equal(t, "test", got.Profile)
	assert.Equal(t, 42, got.PID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Nil(t, got.LastHeartbeat)
	assert.Nil(t, got.StoppedAt)
	assert.True(t, got.Active())
}

func TestGetInstanceNotFound(t *testing.T) {
	_, err := newStore(t).GetInstance(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestTouchAndStopInstance(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	instance := newInstance("travelmanagement", time.Now())
	require.NoError(t, store.CreateInstance(ctx, instance))

	beat := time.Now().Add(time.Minute)
	require.NoError(t, store.TouchInstance(ctx, instance.ID, beat))

	stopped := beat.Add(time.Minute)
	require.NoError(t, store.StopInstance(ctx, instance.ID, stopped))

	got, err := store.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastHeartbeat)
	require.NotNil(t, got.StoppedAt)
	assert.WithinDuration(t, beat, *got.LastHeartbeat, time.Millisecond)
	assert.WithinDuration(t, stopped, *got.StoppedAt, time.Millisecond)
	assert.False(t, got.Active())

	assert.ErrorIs(t, store.TouchInstance(ctx, instance.ID, time.Now()), db.ErrNotFound, "stopped instances no longer beat")
	assert.ErrorIs(t, store.StopInstance(ctx, "missing", time.Now()), db.ErrNotFound)
}

func TestListAndCountInstances(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Now().Add(-time.Hour)

	var ids []string
	for i := 0; i < 5; i++ {
		instance := newInstance("travelmanagement", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.CreateInstance(ctx, instance))
		ids = append(ids, instance.ID)
	}
	other := newInstance("other", base)
	require.NoError(t, store.CreateInstance(ctx, other))
	require.NoError(t, store.StopInstance(ctx, ids[0], time.Now()))
	require.NoError(t, store.StopInstance(ctx, ids[1], time.Now()))

	all, err := store.ListInstances(ctx, shared.InstanceFilter{Name: "travelmanagement"})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[4], all[0].ID, "newest first")

	page, err := store.ListInstances(ctx, shared.InstanceFilter{Name: "travelmanagement", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	active, err := store.ListInstances(ctx, shared.InstanceFilter{Active: shared.BoolPtr(true)})
	require.NoError(t, err)
	assert.Len(t, active, 4)

	after := base.Add(150 * time.Second)
	recent, err := store.ListInstances(ctx, shared.InstanceFilter{StartedAfter: &after})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	total, err := store.CountInstances(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, total)

	stopped, err := store.CountInstances(ctx, shared.BoolPtr(false))
	require.NoError(t, err)
	assert.Equal(t, 2, stopped)
}

func TestPurgeStoppedInstancesCascadesEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	old := newInstance("travelmanagement", time.Now().Add(-48*time.Hour))
	require.NoError(t, store.CreateInstance(ctx, old))
	require.NoError(t, store.RecordEvent(ctx, &models.LifecycleEvent{InstanceID: old.ID, Kind: models.EventComponentStarted, Component: "datasource"}))
	require.NoError(t, store.StopInstance(ctx, old.ID, time.Now().Add(-47*time.Hour)))

	current := newInstance("travelmanagement", time.Now())
	require.NoError(t, store.CreateInstance(ctx, current))

	purged, err := store.PurgeStoppedInstances(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = store.GetInstance(ctx, old.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	events, err := store.ListEvents(ctx, old.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = store.GetInstance(ctx, current.ID)
	assert.NoError(t, err)
}

func TestRecordAndListEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	instance := newInstance("travelmanagement", time.Now())
	require.NoError(t, store.CreateInstance(ctx, instance))

	for _, component := range []string{"datasource", "schema", "store"} {
		require.NoError(t, store.RecordEvent(ctx, &models.LifecycleEvent{
			InstanceID: instance.ID,
			Kind:       models.EventComponentStarted,
			Component:  component,
		}))
	}

	events, err := store.ListEvents(ctx, instance.ID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "store", events[0].Component)
	assert.Equal(t, "schema", events[1].Component)
	assert.NotEmpty(t, events[0].ID)
}

func TestRecordEventRequiresInstance(t *testing.T) {
	err := newStore(t).RecordEvent(context.Background(), &models.LifecycleEvent{
		InstanceID: "ghost",
		Kind:       models.EventComponentStarted,
	})
	assert.Error(t, err, "foreign keys are enforced")
}
