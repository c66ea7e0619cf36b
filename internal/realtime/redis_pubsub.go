package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

const (
	channelPrefix  = "gracetrack:church:"
	publishTimeout = 5 * time.Second
)

// RedisBus relays change events between API instances over Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus creates a bus on client.
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, logger: logger}
}

// ChannelFor returns the pub/sub channel of a church.
func ChannelFor(churchID string) string {
	return channelPrefix + churchID
}

// Publish sends the event to the church channel.
func (b *RedisBus) Publish(ctx context.Context, event models.ChangeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, ChannelFor(event.ChurchID), body).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe listens on every church channel and calls handler for each event until the returned
// cancel function is called.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(context.Context, models.ChangeEvent)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe change events: %w", err)
	}
	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if event.ChurchID == "" {
					event.ChurchID = strings.TrimPrefix(msg.Channel, channelPrefix)
				}
				handler(ctx, event)
			}
		}
	}()
	return func() {
		cancelCtx()
		<-done
	}, nil
}
