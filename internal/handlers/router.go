package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/middleware"
)

type RouterConfig struct {
	JWTSecret       string
	RateLimit       int
	RateLimitWindow time.Duration
}

// NewRouter mounts the course and admin routes under /api/v1 and /health at
// the root.
func NewRouter(cfg RouterConfig, courses *CourseHandler, notifications *NotificationHandler, health *HealthHandler, rdb *redis.Client, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CorrelationID(), middleware.RequestLogger(log))

	r.GET("/health", health.HealthCheck)

	api := r.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret))
	{
		api.POST("/courses", courses.CreateCourse)
		api.GET("/courses/:id", courses.GetCourse)
		api.PUT("/courses/:id", courses.UpdateCourse)
		api.POST("/courses/:id/cancel", courses.CancelCourse)
		api.DELETE("/courses/:id", courses.DeleteCourse)
	}

	admin := api.Group("/admin/notifications",
		middleware.RequireRole("admin"),
		middleware.RateLimit(rdb, cfg.RateLimit, cfg.RateLimitWindow, log))
	{
		admin.GET("/status", notifications.Status)
		admin.POST("/:id/send", notifications.SendNow)
		admin.DELETE("/:id", notifications.CancelScheduled)
		admin.GET("/:id/history", notifications.History)
	}
	return r
}
