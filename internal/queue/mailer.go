package queue

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/notification"
)

// Email kinds understood by the email worker.
const (
	KindAnnouncement = "course_announcement"
	KindUpdate       = "course_update"
	KindCancellation = "course_cancellation"
	KindInstructor   = "instructor_notice"
)

// MaxRecipientsPerMessage bounds one queued email message.
const MaxRecipientsPerMessage = 500

type Publisher interface {
	PublishEmail(ctx context.Context, message interface{}) error
}

type EmailRecipient struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type EmailMessage struct {
	ID                string                      `json:"id"`
	Kind              string                      `json:"kind"`
	Recipients        []EmailRecipient            `json:"recipients"`
	Course            notification.CourseSnapshot `json:"course"`
	ChangeSummaryHTML string                      `json:"change_summary_html,omitempty"`
	Batch             int                         `json:"batch"`
	Batches           int                         `json:"batches"`
	Timestamp         time.Time                   `json:"timestamp"`
}

// EmailPublisher hands course notices to the email worker through the queue.
type EmailPublisher struct {
	publisher Publisher
	log       *zap.Logger
}

func NewEmailPublisher(p Publisher, log *zap.Logger) *EmailPublisher {
	return &EmailPublisher{publisher: p, log: log.With(zap.String("component", "email_publisher"))}
}

func (e *EmailPublisher) SendAnnouncement(ctx context.Context, course notification.CourseSnapshot, recipientEmails []string) error {
	recipients := make([]EmailRecipient, 0, len(recipientEmails))
	for _, addr := range recipientEmails {
		recipients = append(recipients, EmailRecipient{Email: addr})
	}
	return e.publish(ctx, KindAnnouncement, course, "", recipients)
}

func (e *EmailPublisher) SendUpdateNotice(ctx context.Context, course notification.CourseSnapshot, changeSummaryHTML string, recipients []notification.Recipient) error {
	return e.publish(ctx, KindUpdate, course, changeSummaryHTML, toEmailRecipients(recipients))
}

func (e *EmailPublisher) SendCancellationNotice(ctx context.Context, course notification.CourseSnapshot, recipients []notification.Recipient) error {
	return e.publish(ctx, KindCancellation, course, "", toEmailRecipients(recipients))
}

func (e *EmailPublisher) SendInstructorNotice(ctx context.Context, course notification.CourseSnapshot, instructorEmails []string) error {
	recipients := make([]EmailRecipient, 0, len(instructorEmails))
	for _, addr := range instructorEmails {
		recipients = append(recipients, EmailRecipient{Email: addr})
	}
	return e.publish(ctx, KindInstructor, course, "", recipients)
}

// publish splits recipients into batches and stops at the first batch that
// cannot be queued.
func (e *EmailPublisher) publish(ctx context.Context, kind string, course notification.CourseSnapshot, summary string, recipients []EmailRecipient) error {
	if len(recipients) == 0 {
		return nil
	}
	batches := (len(recipients) + MaxRecipientsPerMessage - 1) / MaxRecipientsPerMessage
	for i := 0; i < batches; i++ {
		end := min((i+1)*MaxRecipientsPerMessage, len(recipients))
		msg := EmailMessage{
			ID:                uuid.New().String(),
			Kind:              kind,
			Recipients:        recipients[i*MaxRecipientsPerMessage : end],
			Course:            course,
			ChangeSummaryHTML: summary,
			Batch:             i + 1,
			Batches:           batches,
			Timestamp:         time.Now().UTC(),
		}
		if err := e.publisher.PublishEmail(ctx, msg); err != nil {
			return errors.Wrapf(err, "queue %s batch %d/%d for course %s", kind, i+1, batches, course.ID)
		}
	}
	e.log.Debug("queued course email",
		zap.String("kind", kind),
		zap.String("course_id", course.ID),
		zap.Int("recipients", len(recipients)),
		zap.Int("batches", batches))
	return nil
}

func toEmailRecipients(in []notification.Recipient) []EmailRecipient {
	out := make([]EmailRecipient, 0, len(in))
	for _, r := range in {
		out = append(out, EmailRecipient{Email: r.Email, FirstName: r.FirstName, LastName: r.LastName})
	}
	return out
}
