package notification

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/clock"
)

var twoUsers = []Recipient{{Email: "u1@x.com"}, {Email: "u2@x.com"}}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	h := newHarness(t, openCourse("c1"))
	ctx := context.Background()

	h.scheduler.Schedule(ctx, "c1", openCourse("c1"), twoUsers, t0.Add(time.Hour))

	assert.True(t, h.scheduler.Cancel(ctx, "c1"))
	assert.False(t, h.scheduler.Cancel(ctx, "c1"))
	assert.False(t, h.scheduler.Cancel(ctx, "never-scheduled"))
}

func TestScheduler_SingleJobPerCourse(t *testing.T) {
	h := newHarness(t, openCourse("c1"))
	ctx := context.Background()
	h.mailer.On("SendAnnouncement", mock.Anything, mock.Anything, emails(twoUsers)).Return(nil).Once()

	first := h.scheduler.Schedule(ctx, "c1", openCourse("c1"), twoUsers, t0.Add(time.Hour))
	second := h.scheduler.Schedule(ctx, "c1", openCourse("c1"), twoUsers, t0.Add(2*time.Hour))

	require.NotEqual(t, first, second)
	st := h.scheduler.Status()
	require.Len(t, st.ScheduledJobs, 1)
	assert.Equal(t, second, st.ScheduledJobs[0].JobID)
	assert.Equal(t, t0.Add(2*time.Hour), st.ScheduledJobs[0].NextFireTime)
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(3 * time.Hour)

	h.mailer.AssertNumberOfCalls(t, "SendAnnouncement", 1)
	assert.Empty(t, h.scheduler.Status().ScheduledJobs)
}

func TestScheduler_FireReadsCurrentCourse(t *testing.T) {
	h := newHarness(t, openCourse("c1"))
	ctx := context.Background()

	h.scheduler.Track("c1", t0)
	h.scheduler.Schedule(ctx, "c1", openCourse("c1"), twoUsers, t0.Add(time.Hour))

	renamed := openCourse("c1")
	renamed.Basic.Title = "Advanced Project Controls (Revised)"
	h.courses.put(renamed)

	h.mailer.On("SendAnnouncement", mock.Anything, mock.MatchedBy(func(c CourseSnapshot) bool {
		return c.Basic.Title == "Advanced Project Controls (Revised)"
	}), []string{"u1@x.com", "u2@x.com"}).Return(nil).Once()

	h.clock.Advance(time.Hour)

	h.mailer.AssertExpectations(t)
	_, tracked := h.scheduler.TrackedSince("c1")
	assert.False(t, tracked)
	_, pending := h.scheduler.Lookup("c1")
	assert.False(t, pending)
}

func TestScheduler_FireSkipsMissingOrCancelledCourse(t *testing.T) {
	h := newHarness(t, openCourse("gone"), openCourse("off"))
	ctx := context.Background()

	h.scheduler.Schedule(ctx, "gone", openCourse("gone"), twoUsers, t0.Add(time.Hour))
	h.scheduler.Schedule(ctx, "off", openCourse("off"), twoUsers, t0.Add(time.Hour))

	h.courses.remove("gone")
	off := openCourse("off")
	off.Basic.Status = StatusCancelled
	h.courses.put(off)

	h.clock.Advance(2 * time.Hour)

	h.mailer.AssertNotCalled(t, "SendAnnouncement", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.scheduler.Status().ScheduledJobs)

	recs, _ := h.history.List(ctx, "off")
	require.Len(t, recs, 1)
	assert.Equal(t, OutcomeSkipped, recs[0].Outcome)
}

func TestScheduler_DispatchFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, openCourse("c1"))
	ctx := context.Background()
	h.mailer.On("SendAnnouncement", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp unavailable"))

	h.scheduler.Schedule(ctx, "c1", openCourse("c1"), twoUsers, t0.Add(time.Hour))
	h.clock.Advance(time.Hour)
	h.clock.Advance(24 * time.Hour)

	h.mailer.AssertNumberOfCalls(t, "SendAnnouncement", 1)
	assert.Empty(t, h.scheduler.Status().ScheduledJobs)

	recs, _ := h.history.List(ctx, "c1")
	require.Len(t, recs, 1)
	assert.Equal(t, OutcomeFailed, recs[0].Outcome)
	assert.Contains(t, recs[0].Detail, "smtp unavailable")
}

func TestScheduler_CancelledJobNeverFires(t *testing.T) {
	h := newHarness(t, openCourse("c1"))
	ctx := context.Background()

	h.scheduler.Schedule(ctx, "c1", openCourse("c1"), twoUsers, t0.Add(time.Hour))
	require.True(t, h.scheduler.Cancel(ctx, "c1"))

	h.clock.Advance(5 * time.Hour)

	h.mailer.AssertNotCalled(t, "SendAnnouncement", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_Status(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.scheduler.Track("b", t0)
	h.scheduler.Track("a", t0)
	h.scheduler.Schedule(ctx, "late", openCourse("late"), twoUsers, t0.Add(3*time.Hour))
	h.scheduler.Schedule(ctx, "soon", openCourse("soon"), twoUsers[:1], t0.Add(time.Hour))

	st := h.scheduler.Status()

	assert.Equal(t, []string{"a", "b"}, st.TrackedCourseIDs)
	require.Len(t, st.ScheduledJobs, 2)
	assert.Equal(t, "soon", st.ScheduledJobs[0].CourseID)
	assert.Equal(t, 1, st.ScheduledJobs[0].Recipients)
	assert.Equal(t, "late", st.ScheduledJobs[1].CourseID)
}

func TestScheduler_PruneTrackedKeepsRecentAndPending(t *testing.T) {
	h := newHarness(t)

	h.scheduler.Track("old", t0)
	h.scheduler.Track("pending", t0)
	h.scheduler.Track("recent", t0.Add(2*time.Hour))
	h.scheduler.Schedule(context.Background(), "pending", openCourse("pending"), twoUsers, t0.Add(5*time.Hour))

	dropped := h.scheduler.PruneTracked(t0.Add(time.Hour))

	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"pending", "recent"}, h.scheduler.Status().TrackedCourseIDs)
}

func TestScheduler_PersistsAndRecoversJobs(t *testing.T) {
	pending := newMemoryPending()
	courses := newFakeCourses(openCourse("c1"), openCourse("c2"))
	mailer := new(MockMailer)
	clk := clock.NewManual(t0)
	ctx := context.Background()

	first := NewScheduler(courses, mailer, clk, zap.NewNop(), WithPendingStore(pending))
	jobID := first.Schedule(ctx, "c1", openCourse("c1"), twoUsers, t0.Add(2*time.Hour))
	first.Schedule(ctx, "c2", openCourse("c2"), twoUsers, t0.Add(2*time.Hour))
	first.Cancel(ctx, "c2")
	first.Stop()

	stored, _ := pending.LoadAll(ctx)
	require.Len(t, stored, 1)
	assert.Equal(t, jobID, stored[0].ID)

	mailer.On("SendAnnouncement", mock.Anything, mock.Anything, emails(twoUsers)).Return(nil).Once()

	restarted := NewScheduler(courses, mailer, clk, zap.NewNop(), WithPendingStore(pending))
	n, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	since, tracked := restarted.TrackedSince("c1")
	assert.True(t, tracked)
	assert.Equal(t, t0, since)

	clk.Advance(2 * time.Hour)

	mailer.AssertExpectations(t)
	left, _ := pending.LoadAll(ctx)
	assert.Empty(t, left)
}

func TestScheduler_RecoverFiresOverdueJobs(t *testing.T) {
	pending := newMemoryPending()
	require.NoError(t, pending.Save(context.Background(), ScheduledJob{
		ID: "j1", CourseID: "c1", FireAt: t0.Add(-time.Minute), Recipients: twoUsers, CreatedAt: t0.Add(-2 * time.Hour),
	}))
	mailer := new(MockMailer)
	mailer.On("SendAnnouncement", mock.Anything, mock.Anything, emails(twoUsers)).Return(nil).Once()
	clk := clock.NewManual(t0)

	s := NewScheduler(newFakeCourses(openCourse("c1")), mailer, clk, zap.NewNop(), WithPendingStore(pending))
	_, err := s.Recover(context.Background())
	require.NoError(t, err)

	clk.Advance(0)

	mailer.AssertExpectations(t)
}

func TestScheduler_RecoverWithoutStore(t *testing.T) {
	s := NewScheduler(newFakeCourses(), new(MockMailer), clock.NewManual(t0), zap.NewNop())

	n, err := s.Recover(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
}
