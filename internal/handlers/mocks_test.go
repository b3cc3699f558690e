package handlers

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/franzego/coursenotify/internal/models"
	"github.com/franzego/coursenotify/internal/notification"
)

type MockCourseStore struct {
	mock.Mock
}

func (m *MockCourseStore) Create(ctx context.Context, c *models.Course) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCourseStore) FindByID(ctx context.Context, id string) (*models.Course, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Course)
	return c, args.Error(1)
}

func (m *MockCourseStore) Update(ctx context.Context, c *models.Course) (bool, error) {
	args := m.Called(ctx, c)
	return args.Bool(0), args.Error(1)
}

func (m *MockCourseStore) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) HandleCourseCreation(ctx context.Context, course notification.CourseSnapshot, actor string) notification.CreationResult {
	return m.Called(ctx, course, actor).Get(0).(notification.CreationResult)
}

func (m *MockNotifier) HandleCourseOpened(ctx context.Context, course notification.CourseSnapshot, actor string) notification.AnnouncementResult {
	return m.Called(ctx, course, actor).Get(0).(notification.AnnouncementResult)
}

func (m *MockNotifier) HandleCourseUpdate(ctx context.Context, courseID string, updated notification.CourseSnapshot, actor string, changes notification.ChangeSet) notification.UpdateResult {
	return m.Called(ctx, courseID, updated, actor, changes).Get(0).(notification.UpdateResult)
}

func (m *MockNotifier) HandleCourseCancellation(ctx context.Context, courseID string, course notification.CourseSnapshot) notification.CancellationResult {
	return m.Called(ctx, courseID, course).Get(0).(notification.CancellationResult)
}

func (m *MockNotifier) CourseDeleted(ctx context.Context, courseID string) bool {
	return m.Called(ctx, courseID).Bool(0)
}

func (m *MockNotifier) GetNotificationStatus() notification.StatusReport {
	return m.Called().Get(0).(notification.StatusReport)
}

func (m *MockNotifier) SendImmediateNotification(ctx context.Context, courseID string) notification.ImmediateResult {
	return m.Called(ctx, courseID).Get(0).(notification.ImmediateResult)
}

func (m *MockNotifier) CancelScheduledNotification(ctx context.Context, courseID string) bool {
	return m.Called(ctx, courseID).Bool(0)
}

func (m *MockNotifier) DeliveryHistory(ctx context.Context, courseID string) ([]notification.DeliveryRecord, error) {
	args := m.Called(ctx, courseID)
	recs, _ := args.Get(0).([]notification.DeliveryRecord)
	return recs, args.Error(1)
}

func (m *MockNotifier) GracePeriod() time.Duration {
	return 2 * time.Hour
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockRabbitMQClient struct {
	mock.Mock
}

func (m *MockRabbitMQClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func setupMockRedis() (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	if err != nil {
		panic(err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	return s, rdb
}
