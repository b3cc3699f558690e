package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/clock"
)

// ScheduledJob is a delayed course announcement. At most one exists per course.
type ScheduledJob struct {
	ID         string         `json:"id"`
	CourseID   string         `json:"courseId"`
	FireAt     time.Time      `json:"fireAt"`
	Payload    CourseSnapshot `json:"payload"`
	Recipients []Recipient    `json:"recipients"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type JobStatus struct {
	JobID        string    `json:"jobId"`
	CourseID     string    `json:"courseId"`
	NextFireTime time.Time `json:"nextFireTime"`
	Recipients   int       `json:"recipients"`
}

type SchedulerStatus struct {
	ScheduledJobs    []JobStatus `json:"scheduledJobs"`
	TrackedCourseIDs []string    `json:"trackedCourseIds"`
}

type scheduledEntry struct {
	job   ScheduledJob
	timer clock.Timer
}

// Scheduler owns the pending announcement per course and the creation
// timestamps used for the grace window. All access goes through its methods.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*scheduledEntry
	created map[string]time.Time

	courses CourseFinder
	mailer  Mailer
	clock   clock.Clock
	pending PendingStore
	history History
	timeout time.Duration
	log     *zap.Logger
}

type SchedulerOption func(*Scheduler)

func WithPendingStore(store PendingStore) SchedulerOption {
	return func(s *Scheduler) { s.pending = store }
}

func WithSchedulerHistory(h History) SchedulerOption {
	return func(s *Scheduler) { s.history = h }
}

func WithDispatchTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewScheduler(courses CourseFinder, mailer Mailer, clk clock.Clock, log *zap.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		jobs:    make(map[string]*scheduledEntry),
		created: make(map[string]time.Time),
		courses: courses,
		mailer:  mailer,
		clock:   clk,
		timeout: 30 * time.Second,
		log:     log.With(zap.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule replaces any pending job for courseID with a new one firing at fireAt
// and returns the new job id.
func (s *Scheduler) Schedule(ctx context.Context, courseID string, payload CourseSnapshot, recipients []Recipient, fireAt time.Time) string {
	job := ScheduledJob{
		ID:         uuid.New().String(),
		CourseID:   courseID,
		FireAt:     fireAt,
		Payload:    payload,
		Recipients: recipients,
		CreatedAt:  s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLocked(courseID) {
		s.log.Info("replaced pending announcement", zap.String("course_id", courseID))
	}
	s.armLocked(job)

	if s.pending != nil {
		if err := s.pending.Save(ctx, job); err != nil {
			s.log.Warn("failed to persist scheduled announcement",
				zap.String("course_id", courseID), zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	s.log.Info("scheduled course announcement",
		zap.String("course_id", courseID),
		zap.String("job_id", job.ID),
		zap.Time("fire_at", fireAt),
		zap.Int("recipients", len(recipients)))
	return job.ID
}

// Cancel drops the pending job for courseID. It reports whether one existed
// and is safe to call when none does.
func (s *Scheduler) Cancel(ctx context.Context, courseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed := s.stopLocked(courseID)
	if existed && s.pending != nil {
		if err := s.pending.Delete(ctx, courseID); err != nil {
			s.log.Warn("failed to delete persisted announcement", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	if existed {
		s.log.Info("cancelled scheduled announcement", zap.String("course_id", courseID))
	}
	return existed
}

// Lookup returns the pending job for courseID, if any.
func (s *Scheduler) Lookup(courseID string) (ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[courseID]
	if !ok {
		return ScheduledJob{}, false
	}
	return e.job, true
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		ScheduledJobs:    make([]JobStatus, 0, len(s.jobs)),
		TrackedCourseIDs: make([]string, 0, len(s.created)),
	}
	for _, e := range s.jobs {
		st.ScheduledJobs = append(st.ScheduledJobs, JobStatus{
			JobID:        e.job.ID,
			CourseID:     e.job.CourseID,
			NextFireTime: e.job.FireAt,
			Recipients:   len(e.job.Recipients),
		})
	}
	for id := range s.created {
		st.TrackedCourseIDs = append(st.TrackedCourseIDs, id)
	}
	sort.Slice(st.ScheduledJobs, func(i, j int) bool {
		return st.ScheduledJobs[i].NextFireTime.Before(st.ScheduledJobs[j].NextFireTime)
	})
	sort.Strings(st.TrackedCourseIDs)
	return st
}

// Track records when a course entered tracking, starting its grace window.
func (s *Scheduler) Track(courseID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created[courseID] = at
}

func (s *Scheduler) TrackedSince(courseID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.created[courseID]
	return at, ok
}

func (s *Scheduler) Untrack(courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.created, courseID)
}

// PruneTracked forgets courses tracked at or before cutoff that have no
// pending job. It returns how many were dropped.
func (s *Scheduler) PruneTracked(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, at := range s.created {
		if at.After(cutoff) {
			continue
		}
		if _, pending := s.jobs[id]; pending {
			continue
		}
		delete(s.created, id)
		dropped++
	}
	return dropped
}

// Recover re-arms every persisted job. Jobs already overdue fire right away.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	if s.pending == nil {
		return 0, nil
	}
	jobs, err := s.pending.LoadAll(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load persisted announcements")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		s.stopLocked(job.CourseID)
		s.armLocked(job)
		s.created[job.CourseID] = job.CreatedAt
		s.log.Info("recovered scheduled announcement",
			zap.String("course_id", job.CourseID),
			zap.String("job_id", job.ID),
			zap.Time("fire_at", job.FireAt))
	}
	return len(jobs), nil
}

// Stop disarms every timer without touching persisted jobs, so a later
// Recover picks them up again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.jobs {
		e.timer.Stop()
		delete(s.jobs, id)
	}
}

func (s *Scheduler) armLocked(job ScheduledJob) {
	delay := job.FireAt.Sub(s.clock.Now())
	courseID, jobID := job.CourseID, job.ID
	timer := s.clock.AfterFunc(delay, func() { s.fire(courseID, jobID) })
	s.jobs[courseID] = &scheduledEntry{job: job, timer: timer}
}

func (s *Scheduler) stopLocked(courseID string) bool {
	e, ok := s.jobs[courseID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.jobs, courseID)
	return true
}

// fire runs on the timer goroutine. The job leaves the registry before
// dispatch and is never retried.
func (s *Scheduler) fire(courseID, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	e, ok := s.jobs[courseID]
	if !ok || e.job.ID != jobID {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, courseID)
	delete(s.created, courseID)
	if s.pending != nil {
		if err := s.pending.Delete(ctx, courseID); err != nil {
			s.log.Warn("failed to delete persisted announcement", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	s.mu.Unlock()

	outcome, detail, err := s.dispatch(ctx, e.job)
	if err != nil {
		s.log.Error("scheduled announcement failed",
			zap.String("course_id", courseID), zap.String("job_id", jobID), zap.Error(err))
		outcome, detail = OutcomeFailed, err.Error()
	}
	s.record(ctx, DeliveryRecord{
		CourseID:   courseID,
		Channel:    ChannelAnnouncement,
		Outcome:    outcome,
		Recipients: len(e.job.Recipients),
		JobID:      jobID,
		Detail:     detail,
		At:         s.clock.Now(),
	})
}

func (s *Scheduler) dispatch(ctx context.Context, job ScheduledJob) (string, string, error) {
	course, err := s.courses.FindCourseByID(ctx, job.CourseID)
	if err != nil {
		return "", "", errors.Wrap(err, "re-read course before announcement")
	}
	if course == nil {
		s.log.Info("skipping announcement, course no longer exists",
			zap.String("course_id", job.CourseID), zap.String("job_id", job.ID))
		return OutcomeSkipped, ErrCourseNotFound.Error(), nil
	}
	if course.IsCancelled() {
		s.log.Info("skipping announcement, course was cancelled",
			zap.String("course_id", job.CourseID), zap.String("job_id", job.ID))
		return OutcomeSkipped, ErrCourseCancelled.Error(), nil
	}
	if len(job.Recipients) == 0 {
		return OutcomeSkipped, "no recipients", nil
	}

	if err := s.mailer.SendAnnouncement(ctx, *course, emails(job.Recipients)); err != nil {
		return "", "", errors.Mark(errors.Wrap(err, "send announcement"), ErrDispatch)
	}
	s.log.Info("sent scheduled course announcement",
		zap.String("course_id", job.CourseID),
		zap.String("job_id", job.ID),
		zap.Int("recipients", len(job.Recipients)))
	return OutcomeSent, "", nil
}

func (s *Scheduler) record(ctx context.Context, rec DeliveryRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.log.Warn("failed to record delivery", zap.String("course_id", rec.CourseID), zap.Error(err))
	}
}
