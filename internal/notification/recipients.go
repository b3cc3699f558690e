package notification

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// EnrollmentSource is one enrollment list and the statuses that count as enrolled in it.
type EnrollmentSource struct {
	Bucket   CourseBucket
	Statuses []string
}

var enrolledStatuses = []string{EnrollmentPaid, EnrollmentPromo}

// DefaultEnrollmentSources covers the in-person, live-online and self-paced lists.
var DefaultEnrollmentSources = []EnrollmentSource{
	{Bucket: BucketInPerson, Statuses: enrolledStatuses},
	{Bucket: BucketLiveOnline, Statuses: enrolledStatuses},
	{Bucket: BucketSelfPaced, Statuses: enrolledStatuses},
}

type RecipientResolver struct {
	store   EnrollmentStore
	sources []EnrollmentSource
}

func NewRecipientResolver(store EnrollmentStore, sources ...EnrollmentSource) *RecipientResolver {
	if len(sources) == 0 {
		sources = DefaultEnrollmentSources
	}
	return &RecipientResolver{store: store, sources: sources}
}

// GetRegisteredStudents returns the students enrolled in courseID across all
// sources, one entry per email. Any failing source fails the whole resolution.
func (r *RecipientResolver) GetRegisteredStudents(ctx context.Context, courseID string) ([]Recipient, error) {
	results := make([][]Recipient, len(r.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		i, src := i, src
		g.Go(func() error {
			found, err := r.store.FindEnrolledUsers(gctx, courseID, src.Bucket, src.Statuses)
			if err != nil {
				return errors.Wrapf(err, "find %s enrollments", src.Bucket)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "resolve students of course %s", courseID), ErrRecipientResolution)
	}

	var merged []Recipient
	for _, set := range results {
		merged = append(merged, set...)
	}
	return dedupe(merged), nil
}

// GetAllRecipients returns every user opted in to course-update emails,
// regardless of enrollment.
func (r *RecipientResolver) GetAllRecipients(ctx context.Context) ([]Recipient, error) {
	users, err := r.store.FindOptedInUsers(ctx, BroadcastCriteria)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "resolve broadcast recipients"), ErrRecipientResolution)
	}
	return dedupe(users), nil
}

// dedupe keeps first-seen order; a later duplicate replaces the earlier entry's data.
func dedupe(in []Recipient) []Recipient {
	index := make(map[string]int, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		key := normalizeEmail(r.Email)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}
