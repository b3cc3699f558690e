package repository

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/franzego/coursenotify/internal/notification"
)

const (
	pendingJobsKey = "coursenotify:pending:jobs"
	pendingDueKey  = "coursenotify:pending:due"
)

// RedisPendingStore keeps one scheduled announcement per course: the job
// JSON in a hash and its fire time in a sorted set.
type RedisPendingStore struct {
	client *redis.Client
}

func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client}
}

func (s *RedisPendingStore) Save(ctx context.Context, job notification.ScheduledJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "marshal scheduled job")
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, pendingJobsKey, job.CourseID, body)
		p.ZAdd(ctx, pendingDueKey, redis.Z{Score: float64(job.FireAt.Unix()), Member: job.CourseID})
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save scheduled job for course %s", job.CourseID)
	}
	return nil
}

func (s *RedisPendingStore) Delete(ctx context.Context, courseID string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, pendingJobsKey, courseID)
		p.ZRem(ctx, pendingDueKey, courseID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "delete scheduled job for course %s", courseID)
	}
	return nil
}

// LoadAll returns every persisted job, earliest fire time first. Entries
// whose body is missing or unreadable are dropped from the index.
func (s *RedisPendingStore) LoadAll(ctx context.Context) ([]notification.ScheduledJob, error) {
	ids, err := s.client.ZRange(ctx, pendingDueKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list scheduled jobs")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := s.client.HMGet(ctx, pendingJobsKey, ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load scheduled jobs")
	}

	jobs := make([]notification.ScheduledJob, 0, len(ids))
	for i, raw := range bodies {
		body, ok := raw.(string)
		var job notification.ScheduledJob
		if !ok || json.Unmarshal([]byte(body), &job) != nil {
			_ = s.Delete(ctx, ids[i])
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
