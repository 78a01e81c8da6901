package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"pollhub/internal/shared/events"
)

func testEnvelope(eventID, eventType string) events.Envelope {
	return events.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		SourceService: "polling/poll-service",
		OccurredAtUTC: time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC),
		EntityType:    "poll",
		EntityID:      "poll_1",
	}
}

func waitForEnvelope(t *testing.T, received <-chan events.Envelope) events.Envelope {
	t.Helper()
	select {
	case event := <-received:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return events.Envelope{}
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Envelope, 1)
	err := bus.Subscribe(ctx, "poll.closed", "test-group", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, "poll.closed", testEnvelope("evt_1", "poll.closed")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	event := waitForEnvelope(t, received)
	if event.EventID != "evt_1" {
		t.Fatalf("wrong event delivered: %+v", event)
	}
}

func TestPublishRespectsTopicBoundaries(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Envelope, 2)
	err := bus.Subscribe(ctx, "poll.closed", "test-group", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, "vote.cast", testEnvelope("evt_vote", "vote.cast")); err != nil {
		t.Fatalf("publish on other topic failed: %v", err)
	}
	if err := bus.Publish(ctx, "poll.closed", testEnvelope("evt_close", "poll.closed")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	event := waitForEnvelope(t, received)
	if event.EventID != "evt_close" {
		t.Fatalf("subscriber received event from a foreign topic: %+v", event)
	}
}

func TestConsumerLoopSurvivesHandlerError(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Envelope, 2)
	err := bus.Subscribe(ctx, "poll.closed", "test-group", func(_ context.Context, event events.Envelope) error {
		received <- event
		if event.EventID == "evt_1" {
			return errors.New("handler blew up")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, "poll.closed", testEnvelope("evt_1", "poll.closed")); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	if err := bus.Publish(ctx, "poll.closed", testEnvelope("evt_2", "poll.closed")); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}

	first := waitForEnvelope(t, received)
	second := waitForEnvelope(t, received)
	if first.EventID != "evt_1" || second.EventID != "evt_2" {
		t.Fatalf("expected evt_1 then evt_2, got %s then %s", first.EventID, second.EventID)
	}
}

func TestCancelledSubscriberIsRemoved(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())

	err := bus.Subscribe(ctx, "poll.closed", "test-group", func(context.Context, events.Envelope) error {
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.mu.RLock()
		remaining := len(bus.subscribers["poll.closed"])
		bus.mu.RUnlock()
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber still registered after cancel: %d", remaining)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Publishing after removal must not deliver anywhere and must not error.
	if err := bus.Publish(context.Background(), "poll.closed", testEnvelope("evt_late", "poll.closed")); err != nil {
		t.Fatalf("publish after unsubscribe failed: %v", err)
	}
}
