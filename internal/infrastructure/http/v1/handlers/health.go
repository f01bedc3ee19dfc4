// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	dataDir string
	db      Pinger
}

// NewHealthHandler creates a new health handler. db may be nil when no database is configured.
func NewHealthHandler(dataDir string, db Pinger) *HealthHandler {
	return &HealthHandler{dataDir: dataDir, db: db}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe: the data directory must accept writes
// (counters and lock sentinels live there) and the database must answer if configured.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]string{}
	healthy := true

	if err := writable(h.dataDir); err != nil {
		checks["data_dir"] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		checks["data_dir"] = "healthy"
	}

	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
