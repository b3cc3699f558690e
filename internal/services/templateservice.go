package services

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/cockroachdb/errors"

	"github.com/franzego/coursenotify/internal/notification"
	"github.com/franzego/coursenotify/internal/queue"
)

type RenderedEmail struct {
	Subject string
	HTML    string
}

type templateData struct {
	Course    notification.CourseSnapshot
	Name      string
	Summary   template.HTML
	CourseURL string
	StartDate string
}

var subjects = map[string]string{
	queue.KindAnnouncement: "New course: %s",
	queue.KindUpdate:       "Update to %s",
	queue.KindCancellation: "%s has been cancelled",
	queue.KindInstructor:   "You are teaching %s",
}

var bodies = template.Must(template.New("emails").Parse(`
{{define "course_announcement"}}<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>A new course is open for registration: <strong>{{.Course.Basic.Title}}</strong> ({{.Course.Basic.Code}}).</p>
<p>Starts {{.StartDate}}{{with .Course.Venue.City}} in {{.}}{{end}}.</p>
<p><a href="{{.CourseURL}}">View the course</a></p>{{end}}
{{define "course_update"}}<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>The course <strong>{{.Course.Basic.Title}}</strong> you are registered for has changed:</p>
{{.Summary}}
<p><a href="{{.CourseURL}}">Review the details</a></p>{{end}}
{{define "course_cancellation"}}<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>We are sorry to tell you that <strong>{{.Course.Basic.Title}}</strong>, scheduled to start {{.StartDate}}, has been cancelled.</p>
<p>Our team will contact you about your registration.</p>{{end}}
{{define "instructor_notice"}}<p>Hello,</p>
<p>You have been assigned to <strong>{{.Course.Basic.Title}}</strong> ({{.Course.Basic.Code}}), starting {{.StartDate}}.</p>
{{with .Course.Content.Objectives}}<p>Objectives:</p><ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{end}}
<p><a href="{{.CourseURL}}">Open the course</a></p>{{end}}
`))

// TemplateRenderer turns a course notice into subject and HTML body.
type TemplateRenderer struct {
	frontendURL string
}

func NewTemplateRenderer(frontendURL string) *TemplateRenderer {
	return &TemplateRenderer{frontendURL: frontendURL}
}

// Render builds the email for kind. summaryHTML is trusted markup produced
// by notification.ChangeSummaryHTML.
func (t *TemplateRenderer) Render(kind string, course notification.CourseSnapshot, name, summaryHTML string) (RenderedEmail, error) {
	subject, ok := subjects[kind]
	if !ok {
		return RenderedEmail{}, errors.Newf("unknown email kind %q", kind)
	}
	data := templateData{
		Course:    course,
		Name:      name,
		Summary:   template.HTML(summaryHTML),
		CourseURL: t.frontendURL + "/courses/" + course.ID,
		StartDate: course.Schedule.StartDate.Format("Monday, 2 January 2006"),
	}
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, kind, data); err != nil {
		return RenderedEmail{}, errors.Wrapf(err, "render %s", kind)
	}
	return RenderedEmail{
		Subject: fmt.Sprintf(subject, course.Basic.Title),
		HTML:    buf.String(),
	}, nil
}
