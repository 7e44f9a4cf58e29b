// internal/stores/events.go
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"funding-match-workers/internal/common/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// WeightsInvalidation is the message sent on the invalidation channel after a weight save.
type WeightsInvalidation struct {
	Source    string    `json:"source"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// WeightEvents fans weight-cache invalidations out to every worker process over Redis pub/sub.
type WeightEvents struct {
	redis   *redis.Client
	channel string
	origin  string
	logger  logger.Logger
}

func NewWeightEvents(rdb *redis.Client, channel string, log logger.Logger) *WeightEvents {
	host, _ := os.Hostname()
	return &WeightEvents{
		redis:   rdb,
		channel: channel,
		origin:  fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8]),
		logger:  log.WithFields(map[string]interface{}{"component": "weight-events", "channel": channel}),
	}
}

// Origin identifies this publisher in the messages it sends.
func (e *WeightEvents) Origin() string {
	return e.origin
}

// Publish announces that the stored weights changed.
func (e *WeightEvents) Publish(ctx context.Context, source string) error {
	if e == nil || e.redis == nil {
		return nil
	}
	payload, err := json.Marshal(WeightsInvalidation{
		Source:    source,
		Origin:    e.origin,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := e.redis.Publish(ctx, e.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe calls onInvalidate for every message from another publisher until ctx is done.
// Messages carrying this instance's own origin are skipped: the save that sent them already
// updated the local cache. Unreadable payloads still invalidate. The returned channel is
// closed once the subscription has ended.
func (e *WeightEvents) Subscribe(ctx context.Context, onInvalidate func(WeightsInvalidation)) (<-chan struct{}, error) {
	pubsub := e.redis.Subscribe(ctx, e.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", e.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt WeightsInvalidation
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					e.logger.Warn("unreadable invalidation payload", map[string]interface{}{"error": err})
				}
				if evt.Origin == e.origin {
					continue
				}
				e.logger.Debug("weights invalidated", map[string]interface{}{
					"source": evt.Source,
					"origin": evt.Origin,
				})
				onInvalidate(evt)
			}
		}
	}()

	e.logger.Info("listening for weight invalidations", nil)
	return done, nil
}
