package models

import (
	"time"
)

// Component health states
const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// ComponentHealth is the health of one component of the context
type ComponentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport aggregates component health; Status is DOWN if any component is
type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// SchemaStatus describes the migration state of the store
type SchemaStatus struct {
	Mode    string `json:"mode"`
	Version uint   `json:"version"`
	Latest  uint   `json:"latest"`
	Dirty   bool   `json:"dirty"`
}

// PoolStats is a JSON-friendly subset of sql.DBStats
type PoolStats struct {
	MaxOpenConnections int `json:"max_open_connections"`
	OpenConnections    int `json:"open_connections"`
	InUse              int `json:"in_use"`
	Idle               int `json:"idle"`
}

// Status represents the runtime status of the application context
type Status struct {
	Instance        *Instance    `json:"instance"`
	Uptime          string       `json:"uptime"`
	Datasource      string       `json:"datasource"`
	InMemory        bool         `json:"in_memory"`
	Schema          SchemaStatus `json:"schema"`
	Pool            PoolStats    `json:"pool"`
	TotalInstances  int          `json:"total_instances"`
	ActiveInstances int          `json:"active_instances"`
	SchedulerJobs   []string     `json:"scheduler_jobs,omitempty"`
	GeneratedAt     time.Time    `json:"generated_at"`
}
