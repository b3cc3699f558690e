package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/middleware"
	"github.com/franzego/coursenotify/internal/models"
	"github.com/franzego/coursenotify/internal/notification"
)

type CourseStore interface {
	Create(ctx context.Context, c *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Update(ctx context.Context, c *models.Course) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CourseNotifier is the part of notification.Notifier the course routes use.
type CourseNotifier interface {
	HandleCourseCreation(ctx context.Context, course notification.CourseSnapshot, actor string) notification.CreationResult
	HandleCourseOpened(ctx context.Context, course notification.CourseSnapshot, actor string) notification.AnnouncementResult
	HandleCourseUpdate(ctx context.Context, courseID string, updated notification.CourseSnapshot, actor string, changes notification.ChangeSet) notification.UpdateResult
	HandleCourseCancellation(ctx context.Context, courseID string, course notification.CourseSnapshot) notification.CancellationResult
	CourseDeleted(ctx context.Context, courseID string) bool
}

// MsgNothingChanged is reported when an update leaves every notified field as it was.
const MsgNothingChanged = "no notified fields changed"

// CourseHandler persists course changes first and then lets the notifier
// react. Notification results never change the response status.
type CourseHandler struct {
	store    CourseStore
	notifier CourseNotifier
	log      *zap.Logger
}

func NewCourseHandler(store CourseStore, notifier CourseNotifier, log *zap.Logger) *CourseHandler {
	return &CourseHandler{store: store, notifier: notifier, log: log.With(zap.String("component", "course_handler"))}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.APIResponse{
		Success: false,
		Error:   err.Error(),
		Message: "Invalid Request Body",
	})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.APIResponse{
		Success: false,
		Error:   "course not found",
		Message: "Not Found",
	})
}

func (h *CourseHandler) internalError(c *gin.Context, msg string, err error) {
	h.log.Error(msg, zap.Error(err), zap.String("correlation_id", c.GetString(middleware.CorrelationIDKey)))
	c.JSON(http.StatusInternalServerError, models.APIResponse{
		Success: false,
		Error:   msg,
		Message: "Internal Server Error",
	})
}

func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var req models.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	actor := c.GetString(middleware.ActorKey)

	course := req.ToCourse(actor, time.Now().UTC())
	if err := h.store.Create(ctx, course); err != nil {
		h.internalError(c, "failed to create course", err)
		return
	}

	result := h.notifier.HandleCourseCreation(ctx, course.Snapshot(), actor)
	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Message: "Course created successfully",
		Data:    models.CourseResponse{Course: course, Notifications: result},
	})
}

func (h *CourseHandler) GetCourse(c *gin.Context) {
	course, err := h.store.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, "failed to load course", err)
		return
	}
	if course == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Course retrieved successfully",
		Data:    course,
	})
}

// UpdateCourse replaces the course. Moving it into the cancelled status is
// handled as a cancellation and opening it for registration schedules the
// announcement.
func (h *CourseHandler) UpdateCourse(c *gin.Context) {
	var req models.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	course, err := h.store.FindByID(ctx, id)
	if err != nil {
		h.internalError(c, "failed to load course", err)
		return
	}
	if course == nil {
		notFound(c)
		return
	}

	before := course.Snapshot()
	req.Apply(course)
	after := course.Snapshot()

	ok, err := h.store.Update(ctx, course)
	if err != nil {
		h.internalError(c, "failed to update course", err)
		return
	}
	if !ok {
		notFound(c)
		return
	}

	var result interface{}
	changes := notification.DetectChanges(before, after)
	switch {
	case after.IsCancelled() && !before.IsCancelled():
		result = h.notifier.HandleCourseCancellation(ctx, id, after)
	case after.IsOpen() && !before.IsOpen():
		result = h.notifier.HandleCourseOpened(ctx, after, c.GetString(middleware.ActorKey))
	case changes.Any() || visibleChange(before, after):
		result = h.notifier.HandleCourseUpdate(ctx, id, after, c.GetString(middleware.ActorKey), changes)
	default:
		result = notification.UpdateResult{Success: true, Message: MsgNothingChanged}
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Course updated successfully",
		Data:    models.CourseResponse{Course: course, Notifications: result},
	})
}

// visibleChange covers edits outside the classified sections that students
// still see. The running enrollment count is left out.
func visibleChange(before, after notification.CourseSnapshot) bool {
	return before.Basic != after.Basic ||
		before.Enrollment.EarlyBirdPrice != after.Enrollment.EarlyBirdPrice ||
		before.Enrollment.Currency != after.Enrollment.Currency
}

func (h *CourseHandler) CancelCourse(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	course, err := h.store.FindByID(ctx, id)
	if err != nil {
		h.internalError(c, "failed to load course", err)
		return
	}
	if course == nil {
		notFound(c)
		return
	}
	if course.Status == notification.StatusCancelled {
		c.JSON(http.StatusConflict, models.APIResponse{
			Success: false,
			Error:   "course is already cancelled",
			Message: "Conflict",
		})
		return
	}

	course.Status = notification.StatusCancelled
	ok, err := h.store.Update(ctx, course)
	if err != nil {
		h.internalError(c, "failed to cancel course", err)
		return
	}
	if !ok {
		notFound(c)
		return
	}

	result := h.notifier.HandleCourseCancellation(ctx, id, course.Snapshot())
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Course cancelled successfully",
		Data:    models.CourseResponse{Course: course, Notifications: result},
	})
}

func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	deleted, err := h.store.Delete(ctx, id)
	if err != nil {
		h.internalError(c, "failed to delete course", err)
		return
	}
	if !deleted {
		notFound(c)
		return
	}

	jobCancelled := h.notifier.CourseDeleted(ctx, id)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Course deleted successfully",
		Data:    gin.H{"scheduledJobCancelled": jobCancelled},
	})
}
