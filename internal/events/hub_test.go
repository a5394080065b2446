package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubDeliversToTopicSubscribers(t *testing.T) {
	h := NewHub()
	var got []Event
	h.Subscribe(TopicChannelResult, func(_ context.Context, ev Event) {
		got = append(got, ev)
	})

	h.Publish(context.Background(), TopicChannelResult, map[string]int{"channel_id": 3}, nil)
	h.Publish(context.Background(), TopicRequestDone, nil, nil)

	assert.Len(t, got, 1)
	assert.Equal(t, TopicChannelResult, got[0].Topic)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	calls := 0
	unsub := h.Subscribe(TopicConfigUpdated, func(context.Context, Event) { calls++ })

	h.Publish(context.Background(), TopicConfigUpdated, nil, nil)
	unsub()
	h.Publish(context.Background(), TopicConfigUpdated, nil, nil)

	assert.Equal(t, 1, calls)
}

func TestHubMultipleSubscribers(t *testing.T) {
	h := NewHub()
	a, b := 0, 0
	h.Subscribe(TopicProxyStatus, func(context.Context, Event) { a++ })
	h.Subscribe(TopicProxyStatus, func(context.Context, Event) { b++ })

	h.Publish(context.Background(), TopicProxyStatus, nil, nil)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
