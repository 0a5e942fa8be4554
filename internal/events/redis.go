package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/pkg/queue"
)

const (
	channelPrefix = "meeting:"
	channelSuffix = ":events"
	publishTTL    = 5 * time.Second
)

// RedisSink fans each event out to live subscribers on the meeting's
// pub/sub channel and onto the archive queue. Both legs are best-effort.
type RedisSink struct {
	client *redis.Client
	queue  *queue.Queue
	logger *zap.Logger
}

// NewRedisSink creates a Redis-backed event sink.
func NewRedisSink(client *redis.Client, q *queue.Queue, logger *zap.Logger) *RedisSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSink{client: client, queue: q, logger: logger}
}

// Channel returns the pub/sub channel name carrying a meeting's events.
func Channel(meetingID string) string {
	return channelPrefix + meetingID + channelSuffix
}

// Emit publishes ev and queues it for archival. Audit writes outlive the
// request, so the caller's deadline is deliberately not inherited.
func (s *RedisSink) Emit(_ context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal event", zap.Error(err), zap.String("event_type", string(ev.Type)))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTTL)
	defer cancel()

	if ev.MeetingID != nil {
		if err := s.client.Publish(ctx, Channel(ev.MeetingID.String()), body).Err(); err != nil {
			s.logger.Warn("publish event",
				zap.Error(err),
				zap.String("event_type", string(ev.Type)),
				zap.String("meeting_id", ev.MeetingID.String()))
		}
	}
	if err := s.queue.EnqueueAuditEvent(ctx, body); err != nil {
		s.logger.Warn("queue event for archive", zap.Error(err), zap.String("event_type", string(ev.Type)))
	}
}
