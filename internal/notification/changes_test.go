package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectChanges_IdenticalSnapshots(t *testing.T) {
	a := openCourse("c1")
	b := openCourse("c1")

	changes := DetectChanges(a, b)

	assert.False(t, changes.Any())
	assert.Equal(t, ChangeSet{}, changes)
	assert.Empty(t, changes.Categories())
}

func TestDetectChanges_SeatsOnly(t *testing.T) {
	a := openCourse("c1")
	b := openCourse("c1")
	b.Enrollment.SeatsAvailable = 12

	changes := DetectChanges(a, b)

	assert.Equal(t, ChangeSet{Enrollment: true}, changes)
	assert.Equal(t, []string{"enrollment"}, changes.Categories())
}

func TestDetectChanges_IgnoresEnrollmentCountAndCurrency(t *testing.T) {
	a := openCourse("c1")
	b := openCourse("c1")
	b.Enrollment.CurrentEnrollment = 9
	b.Enrollment.EarlyBirdPrice = 1200
	b.Enrollment.Currency = "EUR"

	assert.False(t, DetectChanges(a, b).Any())
}

func TestDetectChanges_PerSection(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CourseSnapshot)
		want   ChangeSet
	}{
		{"start date", func(c *CourseSnapshot) { c.Schedule.StartDate = c.Schedule.StartDate.Add(24 * time.Hour) }, ChangeSet{Schedule: true}},
		{"duration", func(c *CourseSnapshot) { c.Schedule.Duration = "4 days" }, ChangeSet{Schedule: true}},
		{"venue city", func(c *CourseSnapshot) { c.Venue.City = "Abu Dhabi" }, ChangeSet{Venue: true}},
		{"primary instructor removed", func(c *CourseSnapshot) { c.Instructors.Primary = nil }, ChangeSet{Instructors: true}},
		{"instructor role", func(c *CourseSnapshot) {
			p := *c.Instructors.Primary
			p.Role = "Co-Instructor"
			c.Instructors.Primary = &p
		}, ChangeSet{Instructors: true}},
		{"additional instructor", func(c *CourseSnapshot) {
			c.Instructors.Additional = []Instructor{{ID: "i2", Name: "Kim", Email: "kim@example.com"}}
		}, ChangeSet{Instructors: true}},
		{"price", func(c *CourseSnapshot) { c.Enrollment.Price = 1750 }, ChangeSet{Enrollment: true}},
		{"objectives", func(c *CourseSnapshot) { c.Content.Objectives = []string{"Plan"} }, ChangeSet{Content: true}},
		{"title only", func(c *CourseSnapshot) { c.Basic.Title = "Project Controls II" }, ChangeSet{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openCourse("c1")
			b := openCourse("c1")
			tt.mutate(&b)
			assert.Equal(t, tt.want, DetectChanges(a, b))
		})
	}
}

func TestDetectChanges_AbsentInBothIsStable(t *testing.T) {
	a := CourseSnapshot{ID: "c1"}
	b := CourseSnapshot{ID: "c1", Content: ContentInfo{Objectives: []string{}}}

	assert.False(t, DetectChanges(a, b).Any())
}

func TestDetectChanges_SameInstantDifferentZone(t *testing.T) {
	a := openCourse("c1")
	b := openCourse("c1")
	dubai := time.FixedZone("GST", 4*60*60)
	b.Schedule.StartDate = a.Schedule.StartDate.In(dubai)

	assert.False(t, DetectChanges(a, b).Schedule)
}

func TestChangeSummaryHTML(t *testing.T) {
	html := ChangeSummaryHTML(ChangeSet{Schedule: true, Enrollment: true})
	assert.Equal(t, "<ul><li>Schedule (dates, times or duration) has changed</li><li>Pricing or seat availability has changed</li></ul>", html)

	fallback := ChangeSummaryHTML(ChangeSet{})
	assert.Equal(t, "<ul><li>Course information has been updated</li></ul>", fallback)
}
