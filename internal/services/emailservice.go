package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/config"
	"github.com/franzego/coursenotify/internal/notification"
	"github.com/franzego/coursenotify/internal/queue"
	"github.com/franzego/coursenotify/pkg/circuitbreaker"
)

// maxBcc is the provider's recipient limit per request.
const maxBcc = 50

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// ResendMailer delivers course notices through the Resend HTTP API. In mock
// mode it only logs what it would have sent.
type ResendMailer struct {
	url        string
	apiKey     string
	from       string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	renderer   *TemplateRenderer
	mockMode   bool
	log        *zap.Logger
}

func NewResendMailer(cfg config.EmailConfig, mockMode bool, log *zap.Logger) *ResendMailer {
	log = log.With(zap.String("component", "resend_mailer"))
	return &ResendMailer{
		url:    cfg.ResendURL,
		apiKey: cfg.ResendAPIKey,
		from:   cfg.From,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		cb:       circuitbreaker.NewCircuitBreaker("email-provider", log),
		renderer: NewTemplateRenderer(cfg.FrontendURL),
		mockMode: mockMode,
		log:      log,
	}
}

func (m *ResendMailer) SendAnnouncement(ctx context.Context, course notification.CourseSnapshot, recipientEmails []string) error {
	return m.broadcast(ctx, queue.KindAnnouncement, course, recipientEmails)
}

func (m *ResendMailer) SendInstructorNotice(ctx context.Context, course notification.CourseSnapshot, instructorEmails []string) error {
	return m.broadcast(ctx, queue.KindInstructor, course, instructorEmails)
}

func (m *ResendMailer) SendUpdateNotice(ctx context.Context, course notification.CourseSnapshot, changeSummaryHTML string, recipients []notification.Recipient) error {
	return m.personal(ctx, queue.KindUpdate, course, changeSummaryHTML, recipients)
}

func (m *ResendMailer) SendCancellationNotice(ctx context.Context, course notification.CourseSnapshot, recipients []notification.Recipient) error {
	return m.personal(ctx, queue.KindCancellation, course, "", recipients)
}

// broadcast sends one rendered email in blind-copy batches.
func (m *ResendMailer) broadcast(ctx context.Context, kind string, course notification.CourseSnapshot, emails []string) error {
	if len(emails) == 0 {
		return nil
	}
	rendered, err := m.renderer.Render(kind, course, "", "")
	if err != nil {
		return err
	}
	for start := 0; start < len(emails); start += maxBcc {
		end := min(start+maxBcc, len(emails))
		req := sendRequest{From: m.from, To: []string{m.from}, Bcc: emails[start:end], Subject: rendered.Subject, HTML: rendered.HTML}
		if err := m.send(ctx, req); err != nil {
			return errors.Wrapf(err, "send %s to recipients %d-%d", kind, start+1, end)
		}
	}
	return nil
}

// personal sends one addressed email per recipient and keeps going past
// individual failures.
func (m *ResendMailer) personal(ctx context.Context, kind string, course notification.CourseSnapshot, summary string, recipients []notification.Recipient) error {
	var failed int
	var firstErr error
	for _, r := range recipients {
		rendered, err := m.renderer.Render(kind, course, r.DisplayName(), summary)
		if err == nil {
			err = m.send(ctx, sendRequest{From: m.from, To: []string{r.Email}, Subject: rendered.Subject, HTML: rendered.HTML})
		}
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			m.log.Warn("email delivery failed", zap.String("kind", kind), zap.String("course_id", course.ID), zap.Error(err))
		}
	}
	if failed > 0 {
		return errors.Wrapf(firstErr, "%d of %d %s deliveries failed", failed, len(recipients), kind)
	}
	return nil
}

func (m *ResendMailer) send(ctx context.Context, payload sendRequest) error {
	if m.mockMode {
		m.log.Info("mock mode enabled: email not sent",
			zap.String("subject", payload.Subject),
			zap.Strings("to", payload.To),
			zap.Int("bcc", len(payload.Bcc)))
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal email")
	}
	_, err = m.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, nil
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, errors.Newf("email provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	})
	return err
}
