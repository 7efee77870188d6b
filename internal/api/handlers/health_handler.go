package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthCheckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Pinger is satisfied by store backends that hold a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
}

// NewHealthHandler reports liveness and, when p is not nil, store reachability.
func NewHealthHandler(p Pinger) *HealthHandler {
	return &HealthHandler{store: p}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, HealthCheckResponse{
				Status:  "DEGRADED",
				Message: "report store unreachable: " + err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, HealthCheckResponse{
		Status:  "OK",
		Message: "GPTR road safety server is running",
	})
}
