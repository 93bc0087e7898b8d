package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/lines"
	"github.com/rotabus/rotabus/internal/telemetry"
)

// ErrTaskUnavailable is returned when a task's dependency is not configured.
var ErrTaskUnavailable = errors.New("task not configured")

// PositionsRefresher replaces the shared positions snapshot. *lines.Service implements it.
type PositionsRefresher interface {
	Refresh(ctx context.Context, token string) (*lines.Snapshot, error)
}

// Purger deletes expired entries. *store.PostgresStore implements it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RefreshJob runs the background tasks.
type RefreshJob struct {
	config RefreshConfig
	logger zerolog.Logger

	// Dependencies (optional, a nil dependency skips its task)
	positions PositionsRefresher
	purger    Purger

	instruments *telemetry.JobMetrics
	metrics     *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns          int64
	SuccessfulTasks    int64
	FailedTasks        int64
	PositionsRefreshes int64
	PurgedEntries      int64

	// Last positions snapshot size
	LastVehicles int

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config    RefreshConfig
	Logger    zerolog.Logger
	Positions PositionsRefresher
	Purger    Purger
	Metrics   *telemetry.JobMetrics
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:      cfg.Config.withDefaults(),
		logger:      cfg.Logger.With().Str("component", "refresh-job").Logger(),
		positions:   cfg.Positions,
		purger:      cfg.Purger,
		instruments: cfg.Metrics,
		metrics:     &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalTasks int
	Successful int
	Failed     int
	Errors     []RefreshError
	Vehicles   int
	Purged     int64
}

// RefreshError represents a failed task.
type RefreshError struct {
	Task  Task
	Error string
}

type taskResult struct {
	task     Task
	err      error
	vehicles int
	purged   int64
}

// Run executes every enabled task whose dependency is configured. source labels the
// trigger in logs and metrics ("schedule", "pubsub").
func (j *RefreshJob) Run(ctx context.Context, source string) *RefreshResult {
	startTime := time.Now()

	tasks := j.runnable()
	result := &RefreshResult{
		StartTime:  startTime,
		TotalTasks: len(tasks),
	}

	j.logger.Debug().
		Str("source", source).
		Int("tasks", len(tasks)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting refresh run")

	taskChan := make(chan Task, len(tasks))
	resultsChan := make(chan taskResult, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < min(j.config.Concurrency, len(tasks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				if ctx.Err() != nil {
					return
				}
				resultsChan <- j.runTask(ctx, task, source)
			}
		}()
	}

	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		if tr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{Task: tr.task, Error: tr.err.Error()})
			continue
		}
		result.Successful++
		result.Vehicles += tr.vehicles
		result.Purged += tr.purged
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	event := j.logger.Info()
	if result.Failed > 0 {
		event = j.logger.Warn()
	}
	event.
		Str("source", source).
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("vehicles", result.Vehicles).
		Int64("purged", result.Purged).
		Msg("refresh run completed")

	return result
}

// RunTask runs a single task regardless of the enabled flags.
func (j *RefreshJob) RunTask(ctx context.Context, task Task, source string) error {
	tr := j.runTask(ctx, task, source)

	j.metrics.mu.Lock()
	if tr.err != nil {
		j.metrics.FailedTasks++
	} else {
		j.metrics.SuccessfulTasks++
	}
	j.metrics.mu.Unlock()

	return tr.err
}

// Loop runs the job immediately and then on every tick until ctx is cancelled.
// Failed runs are logged and do not stop the loop.
func (j *RefreshJob) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	j.logger.Info().Dur("interval", interval).Msg("starting refresh loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		j.Run(ctx, "schedule")

		select {
		case <-ctx.Done():
			j.logger.Info().Msg("refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (j *RefreshJob) runnable() []Task {
	var tasks []Task
	for _, task := range j.config.Tasks() {
		switch {
		case task == TaskPositions && j.positions == nil:
		case task == TaskPurge && j.purger == nil:
		default:
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (j *RefreshJob) runTask(ctx context.Context, task Task, source string) taskResult {
	taskCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	start := time.Now()
	tr := taskResult{task: task}

	switch task {
	case TaskPositions:
		tr.vehicles, tr.err = j.refreshPositions(taskCtx)
	case TaskPurge:
		tr.purged, tr.err = j.purge(taskCtx)
	default:
		tr.err = fmt.Errorf("unknown task %q", task)
	}

	j.instruments.RecordRun(ctx, string(task), source, time.Since(start), tr.err)
	if tr.err != nil {
		j.logger.Error().Err(tr.err).Str("task", string(task)).Msg("task failed")
	}
	return tr
}

func (j *RefreshJob) refreshPositions(ctx context.Context) (int, error) {
	if j.positions == nil {
		return 0, fmt.Errorf("%s: %w", TaskPositions, ErrTaskUnavailable)
	}

	snap, err := j.positions.Refresh(ctx, "")
	if err != nil {
		return 0, err
	}

	n := len(snap.Vehicles)
	j.instruments.RecordVehicles(ctx, n)

	j.metrics.mu.Lock()
	j.metrics.PositionsRefreshes++
	j.metrics.LastVehicles = n
	j.metrics.mu.Unlock()

	return n, nil
}

func (j *RefreshJob) purge(ctx context.Context) (int64, error) {
	if j.purger == nil {
		return 0, fmt.Errorf("%s: %w", TaskPurge, ErrTaskUnavailable)
	}

	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purging expired entries: %w", err)
	}
	j.instruments.RecordPurged(ctx, n)

	j.metrics.mu.Lock()
	j.metrics.PurgedEntries += n
	j.metrics.mu.Unlock()

	return n, nil
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulTasks += int64(result.Successful)
	j.metrics.FailedTasks += int64(result.Failed)
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:           j.metrics.TotalRuns,
		SuccessfulTasks:     j.metrics.SuccessfulTasks,
		FailedTasks:         j.metrics.FailedTasks,
		PositionsRefreshes:  j.metrics.PositionsRefreshes,
		PurgedEntries:       j.metrics.PurgedEntries,
		LastVehicles:        j.metrics.LastVehicles,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map for the worker health endpoint.
func (j *RefreshJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	snapshot := map[string]any{
		"total_runs":            m.TotalRuns,
		"successful_tasks":      m.SuccessfulTasks,
		"failed_tasks":          m.FailedTasks,
		"positions_refreshes":   m.PositionsRefreshes,
		"purged_entries":        m.PurgedEntries,
		"last_vehicles":         m.LastVehicles,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
	if !m.LastRefreshAt.IsZero() {
		snapshot["last_refresh_at"] = m.LastRefreshAt.UTC().Format(time.RFC3339)
	}
	return snapshot
}
