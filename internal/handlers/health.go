package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type QueueChecker interface {
	IsConnected() bool
}

type HealthHandler struct {
	mongo Pinger
	redis *redis.Client
	queue QueueChecker
}

// NewHealthHandler takes a nil queue when email does not go through RabbitMQ.
func NewHealthHandler(mongo Pinger, redis *redis.Client, queue QueueChecker) *HealthHandler {
	return &HealthHandler{mongo: mongo, redis: redis, queue: queue}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)

	if err := h.mongo.Ping(ctx); err == nil {
		checks["mongodb"] = "healthy"
	} else {
		checks["mongodb"] = "unhealthy"
	}

	// Redis only backs durability, history and rate limiting.
	if err := h.redis.Ping(ctx).Err(); err == nil {
		checks["redis"] = "healthy"
	} else {
		checks["redis"] = "degraded"
	}

	if h.queue != nil {
		if h.queue.IsConnected() {
			checks["rabbitmq"] = "healthy"
		} else {
			checks["rabbitmq"] = "unhealthy"
		}
	}

	overallStatus := "healthy"
	for _, status := range checks {
		if status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		} else if status == "degraded" {
			overallStatus = "degraded"
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
		"version":   "1.0.0",
	})
}
