package db

import (
	"context"
	"errors"
	"time"

	"github.com/klu/travelmanagement/internal/models"
	"github.com/klu/travelmanagement/internal/shared"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Store defines the lifecycle bookkeeping operations of the relational store
type Store interface {
	// Instance operations
	CreateInstance(ctx context.Context, instance *models.Instance) error
	GetInstance(ctx context.Context, id string) (*models.Instance, error)
	ListInstances(ctx context.Context, filter shared.InstanceFilter) ([]*models.Instance, error)
	CountInstances(ctx context.Context, active *bool) (int, error)
	TouchInstance(ctx context.Context, id string, at time.Time) error
	StopInstance(ctx context.Context, id string, at time.Time) error
	PurgeStoppedInstances(ctx context.Context, before time.Time) (int, error)

	// Event operations
	RecordEvent(ctx context.Context, event *models.LifecycleEvent) error
	ListEvents(ctx context.Context, instanceID string, limit int) ([]*models.LifecycleEvent, error)
}
