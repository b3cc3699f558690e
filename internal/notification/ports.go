package notification

import (
	"context"
	"time"
)

// CourseBucket names one of the three course-type enrollment lists.
type CourseBucket string

const (
	BucketInPerson   CourseBucket = "in-person"
	BucketLiveOnline CourseBucket = "live-online"
	BucketSelfPaced  CourseBucket = "self-paced"
)

// OptInCriteria selects users for broadcast announcements.
type OptInCriteria struct {
	Confirmed     bool
	Unlocked      bool
	EmailEnabled  bool
	CourseUpdates bool
}

// BroadcastCriteria is the audience of a new-course announcement.
var BroadcastCriteria = OptInCriteria{
	Confirmed:     true,
	Unlocked:      true,
	EmailEnabled:  true,
	CourseUpdates: true,
}

type EnrollmentStore interface {
	FindEnrolledUsers(ctx context.Context, courseID string, bucket CourseBucket, statuses []string) ([]Recipient, error)
	FindOptedInUsers(ctx context.Context, criteria OptInCriteria) ([]Recipient, error)
}

// CourseFinder returns nil and no error when the course does not exist.
type CourseFinder interface {
	FindCourseByID(ctx context.Context, courseID string) (*CourseSnapshot, error)
}

// Mailer is the outbound email collaborator. Every call may fail; callers
// record the failure per channel and never retry.
type Mailer interface {
	SendAnnouncement(ctx context.Context, course CourseSnapshot, recipientEmails []string) error
	SendUpdateNotice(ctx context.Context, course CourseSnapshot, changeSummaryHTML string, recipients []Recipient) error
	SendCancellationNotice(ctx context.Context, course CourseSnapshot, recipients []Recipient) error
	SendInstructorNotice(ctx context.Context, course CourseSnapshot, instructorEmails []string) error
}

// Delivery channels recorded in history.
const (
	ChannelAnnouncement = "announcement"
	ChannelInstructor   = "instructor_notice"
	ChannelUpdate       = "update_notice"
	ChannelCancellation = "cancellation_notice"
)

// Delivery outcomes recorded in history.
const (
	OutcomeScheduled = "scheduled"
	OutcomeSent      = "sent"
	OutcomeSkipped   = "skipped"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

type DeliveryRecord struct {
	CourseID   string    `json:"courseId"`
	Channel    string    `json:"channel"`
	Outcome    string    `json:"outcome"`
	Recipients int       `json:"recipients"`
	JobID      string    `json:"jobId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// History keeps per-course delivery outcomes for diagnostics.
type History interface {
	Record(ctx context.Context, rec DeliveryRecord) error
	List(ctx context.Context, courseID string) ([]DeliveryRecord, error)
}

// PendingStore persists scheduled jobs so they survive a restart.
type PendingStore interface {
	Save(ctx context.Context, job ScheduledJob) error
	Delete(ctx context.Context, courseID string) error
	LoadAll(ctx context.Context) ([]ScheduledJob, error)
}
