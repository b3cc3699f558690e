package notification

import (
	"html"
	"slices"
	"strings"
)

// ChangeSet flags which notice-worthy sections of a course differ between two snapshots.
type ChangeSet struct {
	Schedule    bool `json:"schedule"`
	Venue       bool `json:"venue"`
	Instructors bool `json:"instructors"`
	Enrollment  bool `json:"enrollment"`
	Content     bool `json:"content"`
}

func (c ChangeSet) Any() bool {
	return c.Schedule || c.Venue || c.Instructors || c.Enrollment || c.Content
}

// Categories lists the changed sections in a fixed order.
func (c ChangeSet) Categories() []string {
	var out []string
	if c.Schedule {
		out = append(out, "schedule")
	}
	if c.Venue {
		out = append(out, "venue")
	}
	if c.Instructors {
		out = append(out, "instructors")
	}
	if c.Enrollment {
		out = append(out, "enrollment")
	}
	if c.Content {
		out = append(out, "content")
	}
	return out
}

// DetectChanges compares two snapshots section by section. Enrollment only
// looks at price and seats available: the running enrollment count moves
// during registration and must not produce update notices.
func DetectChanges(existing, proposed CourseSnapshot) ChangeSet {
	return ChangeSet{
		Schedule:    !sameSchedule(existing.Schedule, proposed.Schedule),
		Venue:       existing.Venue != proposed.Venue,
		Instructors: !sameInstructors(existing.Instructors, proposed.Instructors),
		Enrollment: existing.Enrollment.Price != proposed.Enrollment.Price ||
			existing.Enrollment.SeatsAvailable != proposed.Enrollment.SeatsAvailable,
		Content: !slices.Equal(existing.Content.Objectives, proposed.Content.Objectives) ||
			!slices.Equal(existing.Content.Outline, proposed.Content.Outline),
	}
}

func sameSchedule(a, b ScheduleInfo) bool {
	return a.StartDate.Equal(b.StartDate) &&
		a.EndDate.Equal(b.EndDate) &&
		a.Duration == b.Duration &&
		a.Timezone == b.Timezone
}

func sameInstructors(a, b InstructorsInfo) bool {
	switch {
	case a.Primary == nil && b.Primary == nil:
	case a.Primary == nil || b.Primary == nil:
		return false
	case *a.Primary != *b.Primary:
		return false
	}
	return slices.Equal(a.Additional, b.Additional)
}

var categoryLines = []struct {
	flag func(ChangeSet) bool
	text string
}{
	{func(c ChangeSet) bool { return c.Schedule }, "Schedule (dates, times or duration) has changed"},
	{func(c ChangeSet) bool { return c.Venue }, "Venue or location has changed"},
	{func(c ChangeSet) bool { return c.Instructors }, "Instructor line-up has changed"},
	{func(c ChangeSet) bool { return c.Enrollment }, "Pricing or seat availability has changed"},
	{func(c ChangeSet) bool { return c.Content }, "Course content or objectives have changed"},
}

const genericChangeLine = "Course information has been updated"

// ChangeSummaryHTML renders the changed sections as a bullet list. When no
// tracked section changed it falls back to a single generic line.
func ChangeSummaryHTML(changes ChangeSet) string {
	var b strings.Builder
	b.WriteString("<ul>")
	n := 0
	for _, line := range categoryLines {
		if !line.flag(changes) {
			continue
		}
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(line.text))
		b.WriteString("</li>")
		n++
	}
	if n == 0 {
		b.WriteString("<li>")
		b.WriteString(genericChangeLine)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
