package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventStatsChanged = "stats-changed"
	RealtimeEventSessionEnded = "session-ended"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "rangedrill-backend"
	realtimeBufferSize        = 16
)

type RealtimeMessage struct {
	UserID      string
	EventType   string
	SessionID   string
	ScenarioIDs []uint
	Timestamp   time.Time
}

type realtimePayload struct {
	SessionID   string `json:"sessionId,omitempty"`
	ScenarioIDs []uint `json:"scenarioIds"`
	Timestamp   string `json:"timestamp"`
	Source      string `json:"source"`
}

// RealtimeDispatcher fans stats events out to the open streams of one player.
// Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the open streams of a player.
func (d *RealtimeDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}

func (h *httpHandler) handleEventStream(c *gin.Context) {
	player, ok := requirePlayer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, player.ID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	h.logger.Debug("realtime stream opened", zap.String("user_id", player.ID))
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("realtime stream closed", zap.String("user_id", player.ID))
			return
		case message, open := <-stream:
			if !open {
				return
			}
			scenarioIDs := message.ScenarioIDs
			if scenarioIDs == nil {
				scenarioIDs = []uint{}
			}
			c.SSEvent(message.EventType, realtimePayload{
				SessionID:   message.SessionID,
				ScenarioIDs: scenarioIDs,
				Timestamp:   message.Timestamp.UTC().Format(time.RFC3339),
				Source:      realtimeSourceBackend,
			})
			c.Writer.Flush()
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{
				ScenarioIDs: []uint{},
				Timestamp:   tick.UTC().Format(time.RFC3339),
				Source:      realtimeSourceBackend,
			})
			c.Writer.Flush()
		}
	}
}
