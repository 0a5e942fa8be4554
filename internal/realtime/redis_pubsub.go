package realtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/events"
)

// RedisPubSub feeds the hub from the per-meeting channels the event sink
// publishes to. Payloads are the raw event JSON, untouched.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis subscription bridge for meeting events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// SubscribeMeeting subscribes to a meeting's event channel and invokes
// handler with each payload. The returned cancel stops the subscription.
func (r *RedisPubSub) SubscribeMeeting(meetingID uuid.UUID, handler func(payload []byte)) (cancel func(), err error) {
	channel := events.Channel(meetingID.String())
	ctx, cancelCtx := context.WithCancel(context.Background())

	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := pubsub.Channel()
	go func() {
		defer func() { _ = pubsub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	r.logger.Debug("subscribed to meeting events", zap.String("channel", channel))
	return cancelCtx, nil
}
