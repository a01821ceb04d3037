package services

import (
	"context"
	"fmt"
	"time"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/datasource"
	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/models"
	"github.com/klu/travelmanagement/internal/shared"
)

// StatusService provides runtime status and health of the application context
type StatusService struct {
	store    db.Store
	ds       *datasource.DataSource
	schema   *db.SchemaManager
	instance *models.Instance
	jobs     func() []string
	now      func() time.Time
}

// NewStatusService creates a new status service
func NewStatusService(store db.Store, ds *datasource.DataSource, schema *db.SchemaManager, instance *models.Instance) *StatusService {
	return &StatusService{
		store:    store,
		ds:       ds,
		schema:   schema,
		instance: instance,
		now:      time.Now,
	}
}

// SetJobs registers the source of the scheduler job names
func (s *StatusService) SetJobs(jobs func() []string) {
	s.jobs = jobs
}

// Instance returns the instance record of the running context
func (s *StatusService) Instance() *models.Instance {
	return s.instance
}

// GetStatus returns overall runtime status
func (s *StatusService) GetStatus(ctx context.Context) (*models.Status, error) {
	total, err := s.store.CountInstances(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}

	active, err := s.store.CountInstances(ctx, shared.BoolPtr(true))
	if err != nil {
		return nil, fmt.Errorf("failed to count active instances: %w", err)
	}

	schemaStatus, err := s.SchemaStatus()
	if err != nil {
		return nil, err
	}

	stats := s.ds.Stats()
	now := s.now()

	status := &models.Status{
		Instance:   s.instance,
		Uptime:     now.Sub(s.instance.StartedAt).Round(time.Second).String(),
		Datasource: s.ds.URL().String(),
		InMemory:   s.ds.URL().InMemory(),
		Schema:     schemaStatus,
		Pool: models.PoolStats{
			MaxOpenConnections: stats.MaxOpenConnections,
			OpenConnections:    stats.OpenConnections,
			InUse:              stats.InUse,
			Idle:               stats.Idle,
		},
		TotalInstances:  total,
		ActiveInstances: active,
		GeneratedAt:     now,
	}
	if s.jobs != nil {
		status.SchedulerJobs = s.jobs()
	}

	return status, nil
}

// SchemaStatus returns the migration state. An unmanaged schema reports no version.
func (s *StatusService) SchemaStatus() (models.SchemaStatus, error) {
	status := models.SchemaStatus{Mode: s.schema.Mode()}
	if status.Mode == config.SchemaNone {
		return status, nil
	}

	version, dirty, err := s.schema.Version()
	if err != nil {
		return status, err
	}
	latest, err := db.Latest()
	if err != nil {
		return status, err
	}

	status.Version = version
	status.Latest = latest
	status.Dirty = dirty
	return status, nil
}

// Health checks every component the context depends on
func (s *StatusService) Health(ctx context.Context) *models.HealthReport {
	report := &models.HealthReport{
		Status:     models.StatusUp,
		Components: make(map[string]models.ComponentHealth),
	}

	if err := s.ds.Ping(ctx); err != nil {
		report.Components["datasource"] = models.ComponentHealth{Status: models.StatusDown, Detail: err.Error()}
	} else {
		report.Components["datasource"] = models.ComponentHealth{Status: models.StatusUp, Detail: string(s.ds.URL().Mode)}
	}

	schemaStatus, err := s.SchemaStatus()
	switch {
	case err != nil:
		report.Components["schema"] = models.ComponentHealth{Status: models.StatusDown, Detail: err.Error()}
	case schemaStatus.Dirty:
		report.Components["schema"] = models.ComponentHealth{Status: models.StatusDown, Detail: fmt.Sprintf("version %d is dirty", schemaStatus.Version)}
	case schemaStatus.Mode == config.SchemaNone:
		report.Components["schema"] = models.ComponentHealth{Status: models.StatusUp, Detail: "unmanaged"}
	case schemaStatus.Version != schemaStatus.Latest:
		report.Components["schema"] = models.ComponentHealth{
			Status: models.StatusDown,
			Detail: fmt.Sprintf("version %d, expected %d", schemaStatus.Version, schemaStatus.Latest),
		}
	default:
		report.Components["schema"] = models.ComponentHealth{Status: models.StatusUp, Detail: fmt.Sprintf("version %d", schemaStatus.Version)}
	}

	for _, component := range report.Components {
		if component.Status != models.StatusUp {
			report.Status = models.StatusDown
			break
		}
	}
	return report
}
