package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/models"
	"github.com/franzego/coursenotify/internal/notification"
)

type NotificationAdmin interface {
	GetNotificationStatus() notification.StatusReport
	SendImmediateNotification(ctx context.Context, courseID string) notification.ImmediateResult
	CancelScheduledNotification(ctx context.Context, courseID string) bool
	DeliveryHistory(ctx context.Context, courseID string) ([]notification.DeliveryRecord, error)
	GracePeriod() time.Duration
}

type NotificationHandler struct {
	notifier NotificationAdmin
	log      *zap.Logger
}

func NewNotificationHandler(notifier NotificationAdmin, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, log: log.With(zap.String("component", "notification_handler"))}
}

func (n *NotificationHandler) Status(c *gin.Context) {
	st := n.notifier.GetNotificationStatus()
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Notification status retrieved",
		Data: models.NotificationStatus{
			ScheduledJobs:  st.ScheduledJobs,
			TrackedCourses: st.TrackedCourses,
			ActiveJobs:     st.ActiveJobs,
			GracePeriod:    n.notifier.GracePeriod().String(),
		},
	})
}

// SendNow announces the course immediately, bypassing the grace window.
func (n *NotificationHandler) SendNow(c *gin.Context) {
	res := n.notifier.SendImmediateNotification(c.Request.Context(), c.Param("id"))
	if res.Success {
		c.JSON(http.StatusOK, models.APIResponse{
			Success: true,
			Message: "Announcement sent",
			Data:    res,
		})
		return
	}

	status, message := http.StatusBadGateway, "Announcement failed"
	switch {
	case errors.Is(res.Cause, notification.ErrCourseNotFound):
		status, message = http.StatusNotFound, "Not Found"
	case errors.Is(res.Cause, notification.ErrCourseCancelled):
		status, message = http.StatusConflict, "Conflict"
	}
	c.JSON(status, models.APIResponse{
		Success: false,
		Error:   res.Error,
		Message: message,
		Data:    res,
	})
}

func (n *NotificationHandler) CancelScheduled(c *gin.Context) {
	cancelled := n.notifier.CancelScheduledNotification(c.Request.Context(), c.Param("id"))
	message := "No scheduled announcement for course"
	if cancelled {
		message = "Scheduled announcement cancelled"
	}
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: message,
		Data:    gin.H{"cancelled": cancelled},
	})
}

func (n *NotificationHandler) History(c *gin.Context) {
	records, err := n.notifier.DeliveryHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		n.log.Error("failed to load delivery history", zap.String("course_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "failed to load delivery history",
			Message: "Internal Server Error",
		})
		return
	}
	if records == nil {
		records = []notification.DeliveryRecord{}
	}
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Delivery history retrieved",
		Data:    records,
	})
}
