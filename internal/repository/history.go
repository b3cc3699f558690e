package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/franzego/coursenotify/internal/notification"
)

const (
	DefaultHistorySize = 50
	historyTTL         = 30 * 24 * time.Hour
)

// RedisHistory keeps the latest delivery outcomes per course in a capped list.
type RedisHistory struct {
	client *redis.Client
	size   int64
}

func NewRedisHistory(client *redis.Client, size int) *RedisHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &RedisHistory{client: client, size: int64(size)}
}

func historyKey(courseID string) string {
	return fmt.Sprintf("coursenotify:history:%s", courseID)
}

func (h *RedisHistory) Record(ctx context.Context, rec notification.DeliveryRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal delivery record")
	}
	key := historyKey(rec.CourseID)
	_, err = h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, body)
		p.LTrim(ctx, key, 0, h.size-1)
		p.Expire(ctx, key, historyTTL)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "record delivery for course %s", rec.CourseID)
	}
	return nil
}

// List returns the recorded outcomes, newest first.
func (h *RedisHistory) List(ctx context.Context, courseID string) ([]notification.DeliveryRecord, error) {
	raw, err := h.client.LRange(ctx, historyKey(courseID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "list deliveries for course %s", courseID)
	}
	out := make([]notification.DeliveryRecord, 0, len(raw))
	for _, item := range raw {
		var rec notification.DeliveryRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
