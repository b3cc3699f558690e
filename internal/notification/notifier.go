package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/clock"
)

// DefaultGracePeriod is how long after creation updates are treated as
// corrections and the public announcement is held back.
const DefaultGracePeriod = 2 * time.Hour

// Result messages.
const (
	MsgWithinGracePeriod = "within grace period, no notification sent"
	MsgNoStudents        = "no registered students to notify"
	MsgUpdateSent        = "update notice sent to registered students"
	MsgNotOpen           = "course is not open for registration"
	MsgNoBroadcast       = "no opted-in recipients"
	MsgNoInstructors     = "no instructor emails"
)

type AnnouncementResult struct {
	Scheduled      bool       `json:"scheduled"`
	JobID          string     `json:"jobId,omitempty"`
	ScheduledTime  *time.Time `json:"scheduledTime,omitempty"`
	RecipientCount int        `json:"recipientCount"`
	Reason         string     `json:"reason,omitempty"`
	Error          string     `json:"error,omitempty"`
}

type InstructorResult struct {
	Sent           bool   `json:"sent"`
	RecipientCount int    `json:"recipientCount"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
}

type CreationResult struct {
	Success                bool               `json:"success"`
	ScheduledTime          *time.Time         `json:"scheduledTime,omitempty"`
	RecipientCount         int                `json:"recipientCount"`
	JobID                  string             `json:"jobId,omitempty"`
	Error                  string             `json:"error,omitempty"`
	CourseAnnouncement     AnnouncementResult `json:"courseAnnouncement"`
	InstructorNotification InstructorResult   `json:"instructorNotification"`
}

type UpdateResult struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message,omitempty"`
	NotifiedCount int      `json:"notifiedCount"`
	Changes       []string `json:"changes,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type CancellationResult struct {
	Success               bool   `json:"success"`
	NotifiedCount         int    `json:"notifiedCount"`
	ScheduledJobCancelled bool   `json:"scheduledJobCancelled"`
	Error                 string `json:"error,omitempty"`
}

type ImmediateResult struct {
	Success        bool   `json:"success"`
	RecipientCount int    `json:"recipientCount"`
	Error          string `json:"error,omitempty"`
	// Cause keeps the marked error for callers that map it to a status.
	Cause error `json:"-"`
}

type StatusReport struct {
	ScheduledJobs  []JobStatus `json:"scheduledJobs"`
	TrackedCourses []string    `json:"trackedCourses"`
	ActiveJobs     int         `json:"activeJobs"`
}

// Notifier reacts to course lifecycle events. Every channel is best effort:
// a failure is logged and reported in the result, never returned as an error,
// so it cannot undo the course change that triggered it.
type Notifier struct {
	resolver  *RecipientResolver
	scheduler *Scheduler
	mailer    Mailer
	courses   CourseFinder
	clock     clock.Clock
	grace     time.Duration
	history   History
	log       *zap.Logger
}

type NotifierOption func(*Notifier)

func WithGracePeriod(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.grace = d
		}
	}
}

func WithHistory(h History) NotifierOption {
	return func(n *Notifier) { n.history = h }
}

func NewNotifier(resolver *RecipientResolver, scheduler *Scheduler, mailer Mailer, courses CourseFinder, clk clock.Clock, log *zap.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		resolver:  resolver,
		scheduler: scheduler,
		mailer:    mailer,
		courses:   courses,
		clock:     clk,
		grace:     DefaultGracePeriod,
		log:       log.With(zap.String("component", "notifier")),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) GracePeriod() time.Duration { return n.grace }

// HandleCourseCreation starts the grace window, schedules the delayed public
// announcement for open courses and tells the instructors right away.
func (n *Notifier) HandleCourseCreation(ctx context.Context, course CourseSnapshot, actor string) CreationResult {
	now := n.clock.Now()
	n.scheduler.PruneTracked(now.Add(-n.grace))
	n.scheduler.Track(course.ID, now)

	ann := n.scheduleAnnouncement(ctx, course, now)
	instr := n.notifyInstructors(ctx, course)

	res := CreationResult{
		ScheduledTime:          ann.ScheduledTime,
		RecipientCount:         ann.RecipientCount,
		JobID:                  ann.JobID,
		CourseAnnouncement:     ann,
		InstructorNotification: instr,
	}
	var failures []string
	if ann.Error != "" {
		failures = append(failures, "announcement: "+ann.Error)
	}
	if instr.Error != "" {
		failures = append(failures, "instructor notice: "+instr.Error)
	}
	res.Success = len(failures) == 0
	res.Error = strings.Join(failures, "; ")

	n.log.Info("handled course creation",
		zap.String("course_id", course.ID),
		zap.String("actor", actor),
		zap.Bool("announcement_scheduled", ann.Scheduled),
		zap.Bool("instructors_notified", instr.Sent),
		zap.Bool("success", res.Success))
	return res
}

func (n *Notifier) scheduleAnnouncement(ctx context.Context, course CourseSnapshot, now time.Time) (res AnnouncementResult) {
	if !course.IsOpen() {
		res.Reason = MsgNotOpen
		return res
	}

	err := safely(func() error {
		recipients, err := n.resolver.GetAllRecipients(ctx)
		if err != nil {
			return err
		}
		res.RecipientCount = len(recipients)
		if len(recipients) == 0 {
			res.Reason = MsgNoBroadcast
			return nil
		}
		fireAt := now.Add(n.grace)
		res.JobID = n.scheduler.Schedule(ctx, course.ID, course, recipients, fireAt)
		res.ScheduledTime = &fireAt
		res.Scheduled = true
		return nil
	})
	if err != nil {
		n.log.Error("failed to schedule course announcement", zap.String("course_id", course.ID), zap.Error(err))
		res.Error = err.Error()
		n.record(ctx, course.ID, ChannelAnnouncement, OutcomeFailed, 0, "", err.Error())
		return res
	}
	if res.Scheduled {
		n.record(ctx, course.ID, ChannelAnnouncement, OutcomeScheduled, res.RecipientCount, res.JobID, res.ScheduledTime.Format(time.RFC3339))
	}
	return res
}

func (n *Notifier) notifyInstructors(ctx context.Context, course CourseSnapshot) (res InstructorResult) {
	instructorEmails := course.InstructorEmails()
	if len(instructorEmails) == 0 {
		res.Reason = MsgNoInstructors
		return res
	}

	err := safely(func() error {
		return n.mailer.SendInstructorNotice(ctx, course, instructorEmails)
	})
	if err != nil {
		err = errors.Mark(err, ErrDispatch)
		n.log.Error("failed to notify instructors", zap.String("course_id", course.ID), zap.Error(err))
		res.Error = err.Error()
		n.record(ctx, course.ID, ChannelInstructor, OutcomeFailed, len(instructorEmails), "", err.Error())
		return res
	}
	res.Sent = true
	res.RecipientCount = len(instructorEmails)
	n.record(ctx, course.ID, ChannelInstructor, OutcomeSent, len(instructorEmails), "", "")
	return res
}

// HandleCourseOpened announces a course that was moved into the open status
// after creation. The grace window restarts from the moment it opened.
func (n *Notifier) HandleCourseOpened(ctx context.Context, course CourseSnapshot, actor string) AnnouncementResult {
	now := n.clock.Now()
	n.scheduler.Track(course.ID, now)

	res := n.scheduleAnnouncement(ctx, course, now)
	n.log.Info("handled course opening",
		zap.String("course_id", course.ID),
		zap.String("actor", actor),
		zap.Bool("announcement_scheduled", res.Scheduled),
		zap.Int("recipients", res.RecipientCount))
	return res
}

// HandleCourseUpdate sends an update notice to enrolled students once the
// grace window has passed. Inside the window the pending announcement is left
// alone: it re-reads the course when it fires.
func (n *Notifier) HandleCourseUpdate(ctx context.Context, courseID string, updated CourseSnapshot, actor string, changes ChangeSet) UpdateResult {
	log := n.log.With(zap.String("course_id", courseID), zap.String("actor", actor))
	res := UpdateResult{Changes: changes.Categories()}

	if since, ok := n.scheduler.TrackedSince(courseID); ok {
		if n.clock.Now().Sub(since) < n.grace {
			log.Info("update within grace period, notification suppressed")
			res.Success = true
			res.Message = MsgWithinGracePeriod
			return res
		}
		n.scheduler.Untrack(courseID)
	}

	var students []Recipient
	err := safely(func() error {
		var err error
		students, err = n.resolver.GetRegisteredStudents(ctx, courseID)
		if err != nil || len(students) == 0 {
			return err
		}
		return errors.Mark(n.mailer.SendUpdateNotice(ctx, updated, ChangeSummaryHTML(changes), students), ErrDispatch)
	})
	if err != nil {
		log.Error("failed to send update notice", zap.Error(err))
		res.Error = err.Error()
		n.record(ctx, courseID, ChannelUpdate, OutcomeFailed, len(students), "", err.Error())
		return res
	}

	res.Success = true
	if len(students) == 0 {
		res.Message = MsgNoStudents
		return res
	}
	res.Message = MsgUpdateSent
	res.NotifiedCount = len(students)
	n.record(ctx, courseID, ChannelUpdate, OutcomeSent, len(students), "", strings.Join(res.Changes, ","))
	log.Info("sent update notice", zap.Int("recipients", len(students)), zap.Strings("changes", res.Changes))
	return res
}

// HandleCourseCancellation drops any pending announcement, tells enrolled
// students and stops tracking the course.
func (n *Notifier) HandleCourseCancellation(ctx context.Context, courseID string, course CourseSnapshot) CancellationResult {
	log := n.log.With(zap.String("course_id", courseID))
	defer n.scheduler.Untrack(courseID)

	res := CancellationResult{ScheduledJobCancelled: n.scheduler.Cancel(ctx, courseID)}
	if res.ScheduledJobCancelled {
		n.record(ctx, courseID, ChannelAnnouncement, OutcomeCancelled, 0, "", "course cancelled")
	}

	var students []Recipient
	err := safely(func() error {
		var err error
		students, err = n.resolver.GetRegisteredStudents(ctx, courseID)
		if err != nil || len(students) == 0 {
			return err
		}
		return errors.Mark(n.mailer.SendCancellationNotice(ctx, course, students), ErrDispatch)
	})
	if err != nil {
		log.Error("failed to send cancellation notice", zap.Error(err))
		res.Error = err.Error()
		n.record(ctx, courseID, ChannelCancellation, OutcomeFailed, len(students), "", err.Error())
		return res
	}

	res.Success = true
	res.NotifiedCount = len(students)
	if len(students) > 0 {
		n.record(ctx, courseID, ChannelCancellation, OutcomeSent, len(students), "", "")
	}
	log.Info("handled course cancellation",
		zap.Bool("job_cancelled", res.ScheduledJobCancelled),
		zap.Int("recipients", len(students)))
	return res
}

// CancelScheduledNotification drops the pending announcement for courseID.
func (n *Notifier) CancelScheduledNotification(ctx context.Context, courseID string) bool {
	cancelled := n.scheduler.Cancel(ctx, courseID)
	if cancelled {
		n.record(ctx, courseID, ChannelAnnouncement, OutcomeCancelled, 0, "", "cancelled by admin")
	}
	return cancelled
}

// CourseDeleted forgets everything held for a deleted course.
func (n *Notifier) CourseDeleted(ctx context.Context, courseID string) bool {
	cancelled := n.scheduler.Cancel(ctx, courseID)
	n.scheduler.Untrack(courseID)
	return cancelled
}

// SendImmediateNotification announces a course now, bypassing the grace
// window. The pending announcement is dropped only once the send succeeded.
func (n *Notifier) SendImmediateNotification(ctx context.Context, courseID string) ImmediateResult {
	log := n.log.With(zap.String("course_id", courseID))

	var recipients []Recipient
	err := safely(func() error {
		course, err := n.courses.FindCourseByID(ctx, courseID)
		if err != nil {
			return errors.Wrap(err, "load course")
		}
		if course == nil {
			return errors.Mark(errors.Newf("course %s not found", courseID), ErrCourseNotFound)
		}
		if course.IsCancelled() {
			return errors.Mark(errors.Newf("course %s is cancelled", courseID), ErrCourseCancelled)
		}
		recipients, err = n.resolver.GetAllRecipients(ctx)
		if err != nil || len(recipients) == 0 {
			return err
		}
		return errors.Mark(n.mailer.SendAnnouncement(ctx, *course, emails(recipients)), ErrDispatch)
	})
	if err != nil {
		log.Error("immediate announcement failed", zap.Error(err))
		n.record(ctx, courseID, ChannelAnnouncement, OutcomeFailed, len(recipients), "", err.Error())
		return ImmediateResult{Error: err.Error(), Cause: err}
	}

	n.scheduler.Cancel(ctx, courseID)
	n.scheduler.Untrack(courseID)
	if len(recipients) > 0 {
		n.record(ctx, courseID, ChannelAnnouncement, OutcomeSent, len(recipients), "", "sent immediately")
	}
	log.Info("sent immediate announcement", zap.Int("recipients", len(recipients)))
	return ImmediateResult{Success: true, RecipientCount: len(recipients)}
}

func (n *Notifier) GetNotificationStatus() StatusReport {
	n.scheduler.PruneTracked(n.clock.Now().Add(-n.grace))
	st := n.scheduler.Status()
	return StatusReport{
		ScheduledJobs:  st.ScheduledJobs,
		TrackedCourses: st.TrackedCourseIDs,
		ActiveJobs:     len(st.ScheduledJobs),
	}
}

// DeliveryHistory returns recorded outcomes for courseID, newest first.
func (n *Notifier) DeliveryHistory(ctx context.Context, courseID string) ([]DeliveryRecord, error) {
	if n.history == nil {
		return nil, nil
	}
	return n.history.List(ctx, courseID)
}

func (n *Notifier) record(ctx context.Context, courseID, channel, outcome string, recipients int, jobID, detail string) {
	if n.history == nil {
		return
	}
	rec := DeliveryRecord{
		CourseID:   courseID,
		Channel:    channel,
		Outcome:    outcome,
		Recipients: recipients,
		JobID:      jobID,
		Detail:     detail,
		At:         n.clock.Now(),
	}
	if err := n.history.Record(ctx, rec); err != nil {
		n.log.Warn("failed to record delivery", zap.String("course_id", courseID), zap.Error(err))
	}
}

// safely turns a panic inside one notification channel into an error so the
// other channels still run.
func safely(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("recovered: %s", fmt.Sprint(r))
		}
	}()
	return f()
}
