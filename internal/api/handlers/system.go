package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

type SystemHandler struct {
	root   string
	checks map[string]Check
}

// NewSystemHandler reports on the repository root plus any optional checks
// (nats, mirror) that are configured.
func NewSystemHandler(root string, checks map[string]Check) *SystemHandler {
	return &SystemHandler{root: root, checks: checks}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if info, err := os.Stat(h.root); err != nil {
		checks["repository"] = err.Error()
		healthy = false
	} else if !info.IsDir() {
		checks["repository"] = fmt.Sprintf("%s is not a directory", h.root)
		healthy = false
	} else {
		checks["repository"] = "ok"
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
