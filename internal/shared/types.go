package shared

import (
	"time"
)

// InstanceFilter provides filtering options for listing instances
type InstanceFilter struct {
	Name          string
	Active        *bool
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Limit         int
	Offset        int
}
