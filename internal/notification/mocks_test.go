package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/clock"
)

type MockEnrollmentStore struct {
	mock.Mock
}

func (m *MockEnrollmentStore) FindEnrolledUsers(ctx context.Context, courseID string, bucket CourseBucket, statuses []string) ([]Recipient, error) {
	args := m.Called(ctx, courseID, bucket, statuses)
	users, _ := args.Get(0).([]Recipient)
	return users, args.Error(1)
}

func (m *MockEnrollmentStore) FindOptedInUsers(ctx context.Context, criteria OptInCriteria) ([]Recipient, error) {
	args := m.Called(ctx, criteria)
	users, _ := args.Get(0).([]Recipient)
	return users, args.Error(1)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendAnnouncement(ctx context.Context, course CourseSnapshot, recipientEmails []string) error {
	return m.Called(ctx, course, recipientEmails).Error(0)
}

func (m *MockMailer) SendUpdateNotice(ctx context.Context, course CourseSnapshot, changeSummaryHTML string, recipients []Recipient) error {
	return m.Called(ctx, course, changeSummaryHTML, recipients).Error(0)
}

func (m *MockMailer) SendCancellationNotice(ctx context.Context, course CourseSnapshot, recipients []Recipient) error {
	return m.Called(ctx, course, recipients).Error(0)
}

func (m *MockMailer) SendInstructorNotice(ctx context.Context, course CourseSnapshot, instructorEmails []string) error {
	return m.Called(ctx, course, instructorEmails).Error(0)
}

// fakeCourses is an in-memory CourseFinder.
type fakeCourses struct {
	mu      sync.Mutex
	courses map[string]CourseSnapshot
	err     error
}

func newFakeCourses(courses ...CourseSnapshot) *fakeCourses {
	f := &fakeCourses{courses: make(map[string]CourseSnapshot)}
	for _, c := range courses {
		f.courses[c.ID] = c
	}
	return f
}

func (f *fakeCourses) put(c CourseSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courses[c.ID] = c
}

func (f *fakeCourses) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.courses, id)
}

func (f *fakeCourses) FindCourseByID(_ context.Context, courseID string) (*CourseSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.courses[courseID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// memoryPending is an in-memory PendingStore.
type memoryPending struct {
	mu   sync.Mutex
	jobs map[string]ScheduledJob
}

func newMemoryPending() *memoryPending {
	return &memoryPending{jobs: make(map[string]ScheduledJob)}
}

func (p *memoryPending) Save(_ context.Context, job ScheduledJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs[job.CourseID] = job
	return nil
}

func (p *memoryPending) Delete(_ context.Context, courseID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.jobs, courseID)
	return nil
}

func (p *memoryPending) LoadAll(_ context.Context) ([]ScheduledJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ScheduledJob, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j)
	}
	return out, nil
}

// memoryHistory is an in-memory History.
type memoryHistory struct {
	mu      sync.Mutex
	records []DeliveryRecord
}

func (h *memoryHistory) Record(_ context.Context, rec DeliveryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memoryHistory) List(_ context.Context, courseID string) ([]DeliveryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []DeliveryRecord
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].CourseID == courseID {
			out = append(out, h.records[i])
		}
	}
	return out, nil
}

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func openCourse(id string) CourseSnapshot {
	return CourseSnapshot{
		ID: id,
		Basic: BasicInfo{
			Title:    "Advanced Project Controls",
			Code:     "APC-101",
			Category: "Project Management",
			Status:   StatusOpen,
			Type:     string(BucketInPerson),
		},
		Schedule: ScheduleInfo{
			StartDate: t0.Add(30 * 24 * time.Hour),
			EndDate:   t0.Add(32 * 24 * time.Hour),
			Duration:  "3 days",
		},
		Venue: VenueInfo{Name: "Conference Centre", City: "Dubai", Country: "UAE"},
		Instructors: InstructorsInfo{
			Primary: &Instructor{ID: "i1", Name: "Sam Lead", Email: "lead@example.com", Role: "Lead Instructor"},
		},
		Enrollment: EnrollmentInfo{Price: 1500, Currency: "USD", SeatsAvailable: 20},
		Content:    ContentInfo{Objectives: []string{"Plan", "Control"}},
	}
}

type harness struct {
	clock     *clock.Manual
	store     *MockEnrollmentStore
	mailer    *MockMailer
	courses   *fakeCourses
	scheduler *Scheduler
	notifier  *Notifier
	history   *memoryHistory
}

func newHarness(t *testing.T, courses ...CourseSnapshot) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewManual(t0),
		store:   new(MockEnrollmentStore),
		mailer:  new(MockMailer),
		courses: newFakeCourses(courses...),
		history: &memoryHistory{},
	}
	log := zap.NewNop()
	h.scheduler = NewScheduler(h.courses, h.mailer, h.clock, log, WithSchedulerHistory(h.history))
	h.notifier = NewNotifier(NewRecipientResolver(h.store), h.scheduler, h.mailer, h.courses, h.clock, log,
		WithGracePeriod(2*time.Hour), WithHistory(h.history))
	return h
}

func (h *harness) enrolled(courseID string, bucket CourseBucket, users ...Recipient) {
	h.store.On("FindEnrolledUsers", mock.Anything, courseID, bucket, []string{EnrollmentPaid, EnrollmentPromo}).Return(users, nil)
}

func (h *harness) noEnrollments(courseID string) {
	for _, b := range []CourseBucket{BucketInPerson, BucketLiveOnline, BucketSelfPaced} {
		h.enrolled(courseID, b)
	}
}
