package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/mekvam/paygate/infra/config"
	"github.com/mekvam/paygate/infra/opensearch"
	"github.com/mekvam/paygate/infra/response"
	"github.com/mekvam/paygate/provider"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *sql.DB
	osClient  *opensearch.Client
	registry  *provider.Registry
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sql.DB, osClient *opensearch.Client, registry *provider.Registry) *HealthHandler {
	return &HealthHandler{
		db:        db,
		osClient:  osClient,
		registry:  registry,
		startTime: time.Now(),
	}
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime int64  `json:"response_time_ms"`
	OpenConns    int    `json:"open_connections"`
	InUseConns   int    `json:"in_use_connections"`
	Error        string `json:"error,omitempty"`
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Uptime      string          `json:"uptime"`
	Environment string          `json:"environment"`
	Database    *DatabaseHealth `json:"database"`
	LogSink     string          `json:"log_sink"`
	Providers   []string        `json:"providers"`
}

// Health reports service, store and log-sink status. Public endpoint; it
// exposes no tenant data.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbHealth := h.checkDatabase(ctx)

	logSink := "disabled"
	if h.osClient != nil && h.osClient.IsEnabled() {
		logSink = "enabled"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !dbHealth.Connected {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	health := HealthStatus{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: config.GetAppConfig().Environment,
		Database:    dbHealth,
		LogSink:     logSink,
		Providers:   h.registry.Names(),
	}

	response.Success(w, httpStatus, "Health check", health)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) *DatabaseHealth {
	start := time.Now()
	err := h.db.PingContext(ctx)
	elapsed := time.Since(start).Milliseconds()

	stats := h.db.Stats()
	health := &DatabaseHealth{
		Status:       "up",
		Connected:    true,
		ResponseTime: elapsed,
		OpenConns:    stats.OpenConnections,
		InUseConns:   stats.InUse,
	}
	if err != nil {
		health.Status = "down"
		health.Connected = false
		health.Error = err.Error()
	}
	return health
}
