package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/franzego/coursenotify/internal/notification"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
}

// CourseResponse carries the course together with what the notification
// layer did about the change.
type CourseResponse struct {
	Course        *Course     `json:"course"`
	Notifications interface{} `json:"notifications,omitempty"`
}

type Instructor struct {
	ID    string `bson:"id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Role  string `bson:"role,omitempty" json:"role,omitempty"`
}

type Course struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title    string             `bson:"title" json:"title"`
	Code     string             `bson:"code" json:"code"`
	Category string             `bson:"category,omitempty" json:"category,omitempty"`
	Status   string             `bson:"status" json:"status"`
	Type     string             `bson:"type" json:"type"`

	StartDate time.Time `bson:"startDate" json:"startDate"`
	EndDate   time.Time `bson:"endDate" json:"endDate"`
	Duration  string    `bson:"duration,omitempty" json:"duration,omitempty"`
	Timezone  string    `bson:"timezone,omitempty" json:"timezone,omitempty"`

	VenueName    string `bson:"venueName,omitempty" json:"venueName,omitempty"`
	VenueAddress string `bson:"venueAddress,omitempty" json:"venueAddress,omitempty"`
	City         string `bson:"city,omitempty" json:"city,omitempty"`
	Country      string `bson:"country,omitempty" json:"country,omitempty"`
	MeetingURL   string `bson:"meetingUrl,omitempty" json:"meetingUrl,omitempty"`

	PrimaryInstructor     *Instructor  `bson:"primaryInstructor,omitempty" json:"primaryInstructor,omitempty"`
	AdditionalInstructors []Instructor `bson:"additionalInstructors,omitempty" json:"additionalInstructors,omitempty"`

	Price             float64 `bson:"price" json:"price"`
	EarlyBirdPrice    float64 `bson:"earlyBirdPrice,omitempty" json:"earlyBirdPrice,omitempty"`
	Currency          string  `bson:"currency,omitempty" json:"currency,omitempty"`
	SeatsAvailable    int     `bson:"seatsAvailable" json:"seatsAvailable"`
	CurrentEnrollment int     `bson:"currentEnrollment" json:"currentEnrollment"`

	Objectives []string `bson:"objectives,omitempty" json:"objectives,omitempty"`
	Outline    []string `bson:"outline,omitempty" json:"outline,omitempty"`

	CreatedBy string    `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Snapshot projects the fields the notification layer inspects.
func (c *Course) Snapshot() notification.CourseSnapshot {
	s := notification.CourseSnapshot{
		ID: c.ID.Hex(),
		Basic: notification.BasicInfo{
			Title:    c.Title,
			Code:     c.Code,
			Category: c.Category,
			Status:   c.Status,
			Type:     c.Type,
		},
		Schedule: notification.ScheduleInfo{
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Duration:  c.Duration,
			Timezone:  c.Timezone,
		},
		Venue: notification.VenueInfo{
			Name:       c.VenueName,
			Address:    c.VenueAddress,
			City:       c.City,
			Country:    c.Country,
			MeetingURL: c.MeetingURL,
		},
		Enrollment: notification.EnrollmentInfo{
			Price:             c.Price,
			EarlyBirdPrice:    c.EarlyBirdPrice,
			Currency:          c.Currency,
			SeatsAvailable:    c.SeatsAvailable,
			CurrentEnrollment: c.CurrentEnrollment,
		},
		Content: notification.ContentInfo{
			Objectives: c.Objectives,
			Outline:    c.Outline,
		},
	}
	if c.PrimaryInstructor != nil {
		p := c.PrimaryInstructor.snapshot()
		s.Instructors.Primary = &p
	}
	for _, in := range c.AdditionalInstructors {
		s.Instructors.Additional = append(s.Instructors.Additional, in.snapshot())
	}
	return s
}

func (i Instructor) snapshot() notification.Instructor {
	return notification.Instructor{ID: i.ID, Name: i.Name, Email: i.Email, Role: i.Role}
}

// CourseRequest is the create/update body. Update applies it as a full
// replacement of the editable fields.
type CourseRequest struct {
	Title    string `json:"title" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Type     string `json:"type" binding:"required,oneof=in-person live-online self-paced"`

	StartDate time.Time `json:"startDate" binding:"required"`
	EndDate   time.Time `json:"endDate"`
	Duration  string    `json:"duration"`
	Timezone  string    `json:"timezone"`

	VenueName    string `json:"venueName"`
	VenueAddress string `json:"venueAddress"`
	City         string `json:"city"`
	Country      string `json:"country"`
	MeetingURL   string `json:"meetingUrl"`

	PrimaryInstructor     *Instructor  `json:"primaryInstructor"`
	AdditionalInstructors []Instructor `json:"additionalInstructors"`

	Price             float64 `json:"price"`
	EarlyBirdPrice    float64 `json:"earlyBirdPrice"`
	Currency          string  `json:"currency"`
	SeatsAvailable    int     `json:"seatsAvailable"`
	CurrentEnrollment int     `json:"currentEnrollment"`

	Objectives []string `json:"objectives"`
	Outline    []string `json:"outline"`
}

// Apply copies the request onto c, keeping identity and audit fields.
func (r *CourseRequest) Apply(c *Course) {
	c.Title = r.Title
	c.Code = r.Code
	c.Category = r.Category
	c.Status = r.Status
	if c.Status == "" {
		c.Status = notification.StatusDraft
	}
	c.Type = r.Type
	c.StartDate = r.StartDate
	c.EndDate = r.EndDate
	c.Duration = r.Duration
	c.Timezone = r.Timezone
	c.VenueName = r.VenueName
	c.VenueAddress = r.VenueAddress
	c.City = r.City
	c.Country = r.Country
	c.MeetingURL = r.MeetingURL
	c.PrimaryInstructor = r.PrimaryInstructor
	c.AdditionalInstructors = r.AdditionalInstructors
	c.Price = r.Price
	c.EarlyBirdPrice = r.EarlyBirdPrice
	c.Currency = r.Currency
	c.SeatsAvailable = r.SeatsAvailable
	c.CurrentEnrollment = r.CurrentEnrollment
	c.Objectives = r.Objectives
	c.Outline = r.Outline
}

// ToCourse builds a new course document from the request.
func (r *CourseRequest) ToCourse(actor string, now time.Time) *Course {
	c := &Course{CreatedBy: actor, CreatedAt: now, UpdatedAt: now}
	r.Apply(c)
	return c
}

type NotificationStatus struct {
	ScheduledJobs  []notification.JobStatus `json:"scheduledJobs"`
	TrackedCourses []string                 `json:"trackedCourses"`
	ActiveJobs     int                      `json:"activeJobs"`
	GracePeriod    string                   `json:"gracePeriod"`
}
