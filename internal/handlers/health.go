package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	version string
	deps    map[string]Pinger
}

// NewHealthHandler reports version and probes deps by name. Failing deps
// degrade the status without failing the check.
func NewHealthHandler(version string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{version: version, deps: deps}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := gin.H{
		"status":    "healthy",
		"service":   "history-calendar-mock",
		"version":   h.version,
		"timestamp": time.Now().UTC(),
	}

	for name, dep := range h.deps {
		if err := dep.Health(ctx); err != nil {
			response["status"] = "degraded"
			response[name] = gin.H{"status": "disconnected", "error": err.Error()}
			continue
		}
		response[name] = gin.H{"status": "connected"}
	}

	c.JSON(http.StatusOK, response)
}
