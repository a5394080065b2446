package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/events"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Session auth already ran; cross-origin console deployments are fine.
	CheckOrigin: func(*http.Request) bool { return true },
}

var feedTopics = []string{
	events.TopicAccountHealth,
	events.TopicChannelResult,
	events.TopicRequestDone,
	events.TopicConfigUpdated,
	events.TopicProxyStatus,
}

// EventFeed streams hub events to the console over a websocket. A slow
// consumer gets dropped rather than backpressuring publishers.
func (h *Admin) EventFeed(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	feed := make(chan events.Event, 64)
	unsubs := make([]func(), 0, len(feedTopics))
	for _, topic := range feedTopics {
		unsubs = append(unsubs, h.Hub.Subscribe(topic, func(_ context.Context, ev events.Event) {
			select {
			case feed <- ev:
			default:
				// Buffer full: the consumer is too slow, skip the event.
			}
		}))
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	// Reader goroutine only watches for the client closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev := <-feed:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
