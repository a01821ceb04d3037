// Package app is the composition root. It assembles the datasource, the
// schema, the lifecycle store, the scheduler and the HTTP server in order,
// and tears them down in reverse.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/klu/travelmanagement/internal/api"
	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/datasource"
	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/db/sqlite"
	"github.com/klu/travelmanagement/internal/logger"
	"github.com/klu/travelmanagement/internal/models"
	"github.com/klu/travelmanagement/internal/scheduler"
	"github.com/klu/travelmanagement/internal/services"
)

// Component names, in startup order
const (
	ComponentDatasource = "datasource"
	ComponentSchema     = "schema"
	ComponentStore      = "store"
	ComponentScheduler  = "scheduler"
	ComponentAPI        = "api"
)

// InitError is returned by Start when a component fails to initialize
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

type state int

const (
	stateNew state = iota
	stateStarted
	stateClosed
)

type component struct {
	name string
	stop func(ctx context.Context) error
}

// Application is the assembled application context
type Application struct {
	cfg *config.Config
	url *datasource.URL
	log *logger.Logger

	ds        *datasource.DataSource
	schema    *db.SchemaManager
	store     db.Store
	instance  *models.Instance
	status    *services.StatusService
	scheduler *scheduler.Scheduler
	server    *api.Server

	mu         sync.Mutex
	state      state
	components []component
	now        func() time.Time
}

// New validates the configuration and returns an application ready to start
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	u, err := datasource.ParseURL(cfg.Datasource.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if log == nil {
		log = logger.GetLogger()
	}

	return &Application{
		cfg: cfg,
		url: u,
		log: log.Named(cfg.Application.Name),
		now: time.Now,
	}, nil
}

// Start builds every component. On failure the components already started
// are stopped in reverse order and an *InitError is returned.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateStarted:
		return errors.New("application already started")
	case stateClosed:
		return errors.New("application is closed")
	}

	a.log.Info("Starting %s (profile %s, datasource %s, schema %s)",
		a.cfg.Application.Name, a.cfg.Application.Profile, a.url, a.cfg.Schema.Mode)
	start := a.now()

	steps := []struct {
		name string
		run  func(ctx context.Context) (func(ctx context.Context) error, error)
	}{
		{ComponentDatasource, a.startDatasource},
		{ComponentSchema, a.startSchema},
		{ComponentStore, a.startStore},
		{ComponentScheduler, a.startScheduler},
		{ComponentAPI, a.startAPI},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return a.fail(ctx, step.name, err)
		}

		stop, err := step.run(ctx)
		if err != nil {
			return a.fail(ctx, step.name, err)
		}
		if stop == nil {
			continue
		}

		a.components = append(a.components, component{name: step.name, stop: stop})
		a.log.Debug("Component %s started", step.name)
		a.recordEvent(ctx, models.EventComponentStarted, step.name, "")
	}

	a.state = stateStarted
	a.log.Info("Started %s in %s", a.cfg.Application.Name, a.now().Sub(start).Round(time.Millisecond))
	return nil
}

func (a *Application) fail(ctx context.Context, name string, err error) error {
	a.log.Error("Component %s failed to start: %v", name, err)
	a.recordEvent(ctx, models.EventComponentFailed, name, err.Error())

	if stopErr := a.stopAll(context.WithoutCancel(ctx)); stopErr != nil {
		a.log.Warning("Rollback after failed start: %v", stopErr)
	}
	a.state = stateClosed
	return &InitError{Component: name, Err: err}
}

func (a *Application) startDatasource(ctx context.Context) (func(context.Context) error, error) {
	ds, err := datasource.Open(ctx, a.cfg.Datasource, a.log.Named(ComponentDatasource))
	if err != nil {
		return nil, err
	}
	a.ds = ds
	return func(context.Context) error { return ds.Close() }, nil
}

func (a *Application) startSchema(ctx context.Context) (func(context.Context) error, error) {
	schema, err := db.NewSchemaManager(a.ds.DB(), a.cfg.Schema.Mode, a.log.Named(ComponentSchema))
	if err != nil {
		return nil, err
	}
	if err := schema.Init(ctx); err != nil {
		return nil, err
	}
	a.schema = schema
	return schema.Shutdown, nil
}

// startStore registers this start as a new instance. The datasource and
// schema events are recorded here since the store did not exist before.
func (a *Application) startStore(ctx context.Context) (func(context.Context) error, error) {
	store := sqlite.New(a.ds)

	hostname, _ := os.Hostname()
	instance := &models.Instance{
		Name:       a.cfg.Application.Name,
		Profile:    a.cfg.Application.Profile,
		Hostname:   hostname,
		PID:        os.Getpid(),
		SchemaMode: a.cfg.Schema.Mode,
		StartedAt:  a.now(),
	}
	if err := store.CreateInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to register instance: %w", err)
	}

	a.store = store
	a.instance = instance
	a.status = services.NewStatusService(store, a.ds, a.schema, instance)
	a.log.Info("Registered instance %s", instance.ID)

	for _, c := range a.components {
		a.recordEvent(ctx, models.EventComponentStarted, c.name, "")
	}

	return func(ctx context.Context) error {
		if err := store.StopInstance(ctx, instance.ID, a.now()); err != nil {
			return err
		}
		stopped := a.now()
		instance.StoppedAt = &stopped
		return nil
	}, nil
}

func (a *Application) startScheduler(ctx context.Context) (func(context.Context) error, error) {
	if !a.cfg.Scheduler.Enabled {
		a.log.Debug("Scheduler disabled")
		return nil, nil
	}

	s := scheduler.New(a.store, a.instance.ID, a.cfg.Scheduler, a.log.Named(ComponentScheduler))
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	a.scheduler = s
	a.status.SetJobs(s.Jobs)
	return func(context.Context) error {
		s.Stop()
		return nil
	}, nil
}

func (a *Application) startAPI(ctx context.Context) (func(context.Context) error, error) {
	a.server = api.NewServer(a.store, a.status, a.cfg.Server, a.log.Named(ComponentAPI))
	return a.server.Shutdown, nil
}

func (a *Application) recordEvent(ctx context.Context, kind, name, detail string) {
	if a.store == nil || a.instance == nil {
		return
	}
	event := &models.LifecycleEvent{
		InstanceID: a.instance.ID,
		Kind:       kind,
		Component:  name,
		Detail:     detail,
	}
	if err := a.store.RecordEvent(context.WithoutCancel(ctx), event); err != nil {
		a.log.Debug("Could not record %s event for %s: %v", kind, name, err)
	}
}

// stopAll stops the started components in reverse order, collecting every error
func (a *Application) stopAll(ctx context.Context) error {
	var result *multierror.Error

	for i := len(a.components) - 1; i >= 0; i-- {
		c := a.components[i]

		if err := c.stop(ctx); err != nil {
			a.log.Warning("Failed to stop %s: %v", c.name, err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", c.name, err))
			continue
		}

		// the schema and datasource outlive the store, so they leave no event
		switch c.name {
		case ComponentAPI, ComponentScheduler, ComponentStore:
			a.recordEvent(ctx, models.EventComponentStopped, c.name, "")
		}
		a.log.Debug("Component %s stopped", c.name)
	}
	a.components = nil

	return result.ErrorOrNil()
}

// Close stops every component in reverse order. It is safe to call more than once.
func (a *Application) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == stateClosed {
		return nil
	}
	a.state = stateClosed

	a.log.Info("Closing %s", a.cfg.Application.Name)
	return a.stopAll(ctx)
}

// Serve runs the HTTP server until ctx is cancelled
func (a *Application) Serve(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	started := a.state == stateStarted
	a.mu.Unlock()

	if !started || server == nil {
		return errors.New("application not started")
	}
	return server.Run(ctx)
}

// Started reports whether Start completed and Close has not been called
func (a *Application) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == stateStarted
}

// Config returns the configuration the application was built with
func (a *Application) Config() *config.Config { return a.cfg }

// URL returns the parsed datasource URL
func (a *Application) URL() *datasource.URL { return a.url }

// DataSource returns the datasource; nil before Start
func (a *Application) DataSource() *datasource.DataSource { return a.ds }

// Schema returns the schema manager; nil before Start
func (a *Application) Schema() *db.SchemaManager { return a.schema }

// Store returns the lifecycle store; nil before Start
func (a *Application) Store() db.Store { return a.store }

// Instance returns the instance registered by Start
func (a *Application) Instance() *models.Instance { return a.instance }

// Status returns the status service
func (a *Application) Status() *services.StatusService { return a.status }

// Scheduler returns the scheduler; nil when disabled
func (a *Application) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Server returns the HTTP server
func (a *Application) Server() *api.Server { return a.server }
