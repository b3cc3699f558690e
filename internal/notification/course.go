// Package notification decides when, and to whom, course announcements,
// instructor notices, update notices and cancellation notices are sent.
package notification

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Course status values as stored on the course document.
const (
	StatusDraft     = "Draft"
	StatusOpen      = "Open for Registration"
	StatusFull      = "Full"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

// Enrollment statuses that make a student a notice recipient.
const (
	EnrollmentPaid  = "Paid and Registered"
	EnrollmentPromo = "Registered (promo code)"
)

var (
	ErrRecipientResolution = errors.New("recipient resolution failed")
	ErrDispatch            = errors.New("notification dispatch failed")
	ErrCourseNotFound      = errors.New("course not found")
	ErrCourseCancelled     = errors.New("course is cancelled")
)

// CourseSnapshot is the projection of a course document that notification
// logic reads. It is derived on demand and never stored on its own.
type CourseSnapshot struct {
	ID          string          `json:"id"`
	Basic       BasicInfo       `json:"basic"`
	Schedule    ScheduleInfo    `json:"schedule"`
	Venue       VenueInfo       `json:"venue"`
	Instructors InstructorsInfo `json:"instructors"`
	Enrollment  EnrollmentInfo  `json:"enrollment"`
	Content     ContentInfo     `json:"content"`
}

type BasicInfo struct {
	Title    string `json:"title"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Type     string `json:"type"`
}

type ScheduleInfo struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Duration  string    `json:"duration"`
	Timezone  string    `json:"timezone"`
}

type VenueInfo struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Country    string `json:"country"`
	MeetingURL string `json:"meetingUrl"`
}

type Instructor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type InstructorsInfo struct {
	Primary    *Instructor  `json:"primary,omitempty"`
	Additional []Instructor `json:"additional,omitempty"`
}

type EnrollmentInfo struct {
	Price             float64 `json:"price"`
	EarlyBirdPrice    float64 `json:"earlyBirdPrice"`
	Currency          string  `json:"currency"`
	SeatsAvailable    int     `json:"seatsAvailable"`
	CurrentEnrollment int     `json:"currentEnrollment"`
}

type ContentInfo struct {
	Objectives []string `json:"objectives,omitempty"`
	Outline    []string `json:"outline,omitempty"`
}

func (c CourseSnapshot) IsOpen() bool {
	return c.Basic.Status == StatusOpen
}

func (c CourseSnapshot) IsCancelled() bool {
	return c.Basic.Status == StatusCancelled
}

// InstructorEmails returns the non-empty primary and additional instructor
// emails, primary first, without duplicates.
func (c CourseSnapshot) InstructorEmails() []string {
	var all []Instructor
	if c.Instructors.Primary != nil {
		all = append(all, *c.Instructors.Primary)
	}
	all = append(all, c.Instructors.Additional...)

	seen := make(map[string]struct{}, len(all))
	emails := make([]string, 0, len(all))
	for _, in := range all {
		key := normalizeEmail(in.Email)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		emails = append(emails, strings.TrimSpace(in.Email))
	}
	return emails
}

// Recipient is a person a notice is addressed to. Email is the identity.
type Recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (r Recipient) DisplayName() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return r.Email
	}
	return name
}

func emails(recipients []Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.Email)
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
