package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	message := RealtimeMessage{
		UserID:      "user-1",
		EventType:   RealtimeEventStatsChanged,
		ScenarioIDs: []uint{4, 9},
		Timestamp:   time.Now().UTC(),
	}
	dispatcher.Publish(message)

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventStatsChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventStatsChanged, received.EventType)
		}
		if len(received.ScenarioIDs) != 2 {
			t.Fatalf("expected 2 scenario ids, got %d", len(received.ScenarioIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:      "user-3",
		EventType:   RealtimeEventSessionEnded,
		SessionID:   "session-c",
		ScenarioIDs: []uint{2},
		Timestamp:   time.Now().UTC(),
	})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherDropsSubscriberOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-4")
	defer cleanup()
	if got := dispatcher.SubscriberCount("user-4"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount("user-4") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeDispatcherDoesNotBlockOnFullBuffer(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-5")
	defer cleanup()

	for index := 0; index < realtimeBufferSize*2; index++ {
		dispatcher.Publish(RealtimeMessage{UserID: "user-5", EventType: RealtimeEventStatsChanged})
	}
	if got := len(stream); got != realtimeBufferSize {
		t.Fatalf("expected buffer of %d messages, got %d", realtimeBufferSize, got)
	}
}

func TestRealtimeDispatcherIgnoresAnonymousSubscribers(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()
	if _, open := <-stream; open {
		t.Fatal("expected closed stream for empty user id")
	}
}
