// Package worker runs the rotabus background jobs: the live positions refresh and
// store maintenance, on a schedule and on demand through Pub/Sub.
package worker

import (
	"time"
)

// Task is one unit of background work.
type Task string

// Tasks run by the refresh job.
const (
	// TaskPositions fetches live line positions and replaces the shared snapshot.
	TaskPositions Task = "positions"
	// TaskPurge deletes expired store entries. Only stores without native expiry
	// need it.
	TaskPurge Task = "purge"
)

// RefreshConfig holds configuration for the refresh job.
type RefreshConfig struct {
	// Concurrency is the number of tasks run at the same time.
	// Default: 2
	Concurrency int

	// Timeout bounds each task.
	// Default: 30 seconds
	Timeout time.Duration

	// RefreshPositions enables the positions refresh.
	// Default: true
	RefreshPositions bool

	// PurgeExpired enables the store purge.
	// Default: true
	PurgeExpired bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency:      2,
		Timeout:          30 * time.Second,
		RefreshPositions: true,
		PurgeExpired:     true,
	}
}

// Tasks returns the enabled tasks in run order.
func (c RefreshConfig) Tasks() []Task {
	var tasks []Task
	if c.RefreshPositions {
		tasks = append(tasks, TaskPositions)
	}
	if c.PurgeExpired {
		tasks = append(tasks, TaskPurge)
	}
	return tasks
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}
