// internal/stores/events_test.go
package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"funding-match-workers/internal/common/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightEvents_PublishAndSubscribe(t *testing.T) {
	rdb, mr := setupRedis(t)
	publisher := NewWeightEvents(rdb, "matching:weights:invalidate", logger.NewTestLogger(t))
	subscriber := NewWeightEvents(rdb, "matching:weights:invalidate", logger.NewTestLogger(t))
	require.NotEqual(t, publisher.Origin(), subscriber.Origin())

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan WeightsInvalidation, 2)
	done, err := subscriber.Subscribe(ctx, func(evt WeightsInvalidation) { received <- evt })
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background(), "admin-api"))
	select {
	case evt := <-received:
		assert.Equal(t, "admin-api", evt.Source)
		assert.Equal(t, publisher.Origin(), evt.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not delivered")
	}

	// the subscriber's own broadcast is skipped, so the next delivery is the garbage payload
	require.NoError(t, subscriber.Publish(context.Background(), "self"))
	mr.Publish("matching:weights:invalidate", "garbage")
	select {
	case evt := <-received:
		assert.Empty(t, evt.Source)
		assert.Empty(t, evt.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("unreadable payload should still invalidate")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
	assert.Empty(t, received)
}

func TestWeightEvents_PublishError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.Regexp().ExpectPublish("matching:weights:invalidate", `.*`).SetErr(errors.New("READONLY"))

	events := NewWeightEvents(rdb, "matching:weights:invalidate", logger.NewNoOpLogger())
	err := events.Publish(context.Background(), "worker")
	assert.ErrorContains(t, err, "READONLY")
}

func TestWeightEvents_NilIsNoOp(t *testing.T) {
	var events *WeightEvents
	assert.NoError(t, events.Publish(context.Background(), "cli"))

	assert.NoError(t, NewWeightEvents(nil, "c", logger.NewNoOpLogger()).Publish(context.Background(), "cli"))
}
