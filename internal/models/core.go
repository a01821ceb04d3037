package models

import (
	"time"
)

// Core lifecycle models

// Instance records one start of the application context
type Instance struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Profile       string     `json:"profile"`
	Hostname      string     `json:"hostname,omitempty"`
	PID           int        `json:"pid"`
	SchemaMode    string     `json:"schema_mode"`
	StartedAt     time.Time  `json:"started_at"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
}

// Active reports whether the instance has not been stopped
func (i *Instance) Active() bool {
	return i.StoppedAt == nil
}

// Event kinds recorded during the context lifecycle
const (
	EventComponentStarted = "component_started"
	EventComponentStopped = "component_stopped"
	EventComponentFailed  = "component_failed"
	EventHeartbeatFailed  = "heartbeat_failed"
	EventPurged           = "instances_purged"
)

// LifecycleEvent is a single entry of an instance's lifecycle log
type LifecycleEvent struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Kind       string    `json:"kind"`
	Component  string    `json:"component,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
