// Package handler provides HTTP handlers for the rotabus gateway API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/provider/resilience"
)

// readyTimeout bounds the store ping of a readiness probe.
const readyTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable. store.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	storeName string
	store     Pinger
	registry  *resilience.Registry
	now       func() time.Time
}

// OpsConfig holds the dependencies the operational endpoints report on.
type OpsConfig struct {
	Version   string
	BuildTime string
	// StoreName is the configured store driver, e.g. "redis".
	StoreName string
	Store     Pinger
	Registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		storeName: cfg.StoreName,
		store:     cfg.Store,
		registry:  cfg.Registry,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The gateway is ready when its store
// answers; the transit backend is reported by /v1/ops/status instead, since stale
// data can still be served while it is down.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	sub := h.storeStatus(r.Context())

	health := models.Health{
		Status: sub.Status,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			sub.Name: sub.Status,
		},
	}

	status := http.StatusOK
	if sub.Status != models.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - store and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	store := h.storeStatus(r.Context())
	status := models.SystemStatus{
		Status:     store.Status,
		Time:       models.Timestamp(h.now()),
		Subsystems: []models.SubsystemStatus{store},
		Upstreams:  []models.UpstreamStatus{},
	}

	if h.registry != nil {
		for _, u := range h.registry.All() {
			us := toUpstreamStatus(u)
			status.Upstreams = append(status.Upstreams, us)
			if us.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) storeStatus(ctx context.Context) models.SubsystemStatus {
	name := "store"
	if h.storeName != "" {
		name = "store:" + h.storeName
	}
	if h.store == nil {
		return models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
	}

	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		detail := err.Error()
		return models.SubsystemStatus{Name: name, Status: models.HealthStatusFail, Detail: &detail}
	}
	return models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
}

func toUpstreamStatus(u *resilience.UpstreamHealth) models.UpstreamStatus {
	out := models.UpstreamStatus{
		Name:         u.Name,
		CircuitState: u.CircuitState.String(),
		Requests:     u.Counts.Requests,
		Failures:     u.Counts.ConsecutiveFailures,
	}

	switch u.Status() {
	case resilience.StatusUnhealthy:
		out.Status = models.HealthStatusFail
	case resilience.StatusDegraded:
		out.Status = models.HealthStatusDegraded
	default:
		out.Status = models.HealthStatusOK
	}

	if u.LastSuccessAt != nil {
		ts := models.Timestamp(*u.LastSuccessAt)
		out.LastSuccessAt = &ts
	}
	if u.LastFailureAt != nil {
		ts := models.Timestamp(*u.LastFailureAt)
		out.LastFailureAt = &ts
	}
	if u.LastError != "" {
		msg := u.LastError
		out.Message = &msg
	}
	return out
}
