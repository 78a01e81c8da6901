package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"pollhub/contexts/polling/poll-service/adapters/memory"
	"pollhub/internal/shared/events"
)

type recordingPublisher struct {
	published []events.Envelope
	failAfter int
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event events.Envelope) error {
	if p.failAfter > 0 && len(p.published) >= p.failAfter {
		return errors.New("bus unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func appendEnvelope(t *testing.T, store *memory.Store, eventID string, occurredAt time.Time) {
	t.Helper()
	if err := store.AppendOutbox(context.Background(), events.Envelope{
		EventID:        eventID,
		EventType:      "poll.created",
		SourceService:  "polling/poll-service",
		OccurredAtUTC:  occurredAt,
		EntityType:     "poll",
		EntityID:       "poll_1",
		PayloadVersion: 1,
		Payload:        map[string]any{"poll_id": "poll_1"},
	}); err != nil {
		t.Fatalf("append outbox failed: %v", err)
	}
}

func TestRelayPublishesPendingRowsOnce(t *testing.T) {
	store := memory.NewStore(nil)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	appendEnvelope(t, store, "event_1", now)
	appendEnvelope(t, store, "event_2", now.Add(time.Second))

	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay cycle failed: %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.published))
	}
	if publisher.published[0].EventID != "event_1" {
		t.Fatalf("events must publish in creation order, got %s first", publisher.published[0].EventID)
	}

	// A second cycle finds nothing pending.
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("second relay cycle failed: %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("published rows must not be replayed, got %d", len(publisher.published))
	}
}

func TestRelayStopsOnPublishFailureAndRetriesRemainder(t *testing.T) {
	store := memory.NewStore(nil)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	appendEnvelope(t, store, "event_1", now)
	appendEnvelope(t, store, "event_2", now.Add(time.Second))

	publisher := &recordingPublisher{failAfter: 1}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatal("expected failure when the bus rejects a publish")
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 event published before the failure, got %d", len(publisher.published))
	}

	// Bus recovers; the unpublished row goes out on the next cycle.
	publisher.failAfter = 0
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("recovery cycle failed: %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected both events delivered after recovery, got %d", len(publisher.published))
	}
	if publisher.published[1].EventID != "event_2" {
		t.Fatalf("remaining row must be event_2, got %s", publisher.published[1].EventID)
	}
}

func TestRelayRespectsBatchSize(t *testing.T) {
	store := memory.NewStore(nil)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		appendEnvelope(t, store, "event_"+string(rune('a'+i)), now.Add(time.Duration(i)*time.Second))
	}

	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, BatchSize: 2}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay cycle failed: %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(publisher.published))
	}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("second relay cycle failed: %v", err)
	}
	if len(publisher.published) != 3 {
		t.Fatalf("expected remaining row on the next cycle, got %d", len(publisher.published))
	}
}
