package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/server/internal/port/inbound"
)

// Pinger reports dependency health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthAdapter implements inbound.HealthHttpPort.
type healthAdapter struct {
	store     Pinger
	storeName string
}

// NewHealthAdapter creates a health adapter reporting on the ledger store.
func NewHealthAdapter(store Pinger, storeName string) inbound.HealthHttpPort {
	return &healthAdapter{store: store, storeName: storeName}
}

// RegisterRoutes registers /health.
func (a *healthAdapter) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", a.Health)
}

func (a *healthAdapter) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"store":  a.storeName,
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "store": a.storeName})
}
