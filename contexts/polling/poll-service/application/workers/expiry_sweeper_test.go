package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"pollhub/contexts/polling/poll-service/adapters/memory"
	"pollhub/contexts/polling/poll-service/domain/entities"
)

func seededPoll(pollID string, closesAt *time.Time, createdAt time.Time) entities.Poll {
	return entities.Poll{
		PollID:   pollID,
		Question: "Best color?",
		Status:   entities.PollStatusOpen,
		ClosesAt: closesAt,
		Options: []entities.Option{
			{OptionID: pollID + "_red", PollID: pollID, Text: "Red", Position: 0},
			{OptionID: pollID + "_blue", PollID: pollID, Text: "Blue", Position: 1},
		},
		CreatedBy: "user_admin",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRunOnceClosesExpiredPollsOnly(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	store := memory.NewStore([]entities.Poll{
		seededPoll("poll_expired", &past, now.Add(-time.Hour)),
		seededPoll("poll_future", &future, now.Add(-time.Hour)),
		seededPoll("poll_no_deadline", nil, now.Add(-time.Hour)),
	})
	store.SetNow(now)

	sweeper := ExpirySweeper{Polls: store, Outbox: store, Clock: store, IDGen: store}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	expired, _ := store.GetPoll(context.Background(), "poll_expired")
	if expired.Status != entities.PollStatusClosed {
		t.Fatalf("expired poll must be closed, got %s", expired.Status)
	}
	for _, pollID := range []string{"poll_future", "poll_no_deadline"} {
		poll, _ := store.GetPoll(context.Background(), pollID)
		if poll.Status != entities.PollStatusOpen {
			t.Fatalf("%s must stay open, got %s", pollID, poll.Status)
		}
	}
}

func TestRunOnceTwiceEmitsOneClosedEvent(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	store := memory.NewStore([]entities.Poll{
		seededPoll("poll_expired", &past, now.Add(-time.Hour)),
	})
	store.SetNow(now)

	sweeper := ExpirySweeper{Polls: store, Outbox: store, Clock: store, IDGen: store}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 100)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	closedEvents := 0
	for _, message := range pending {
		if message.EventType == "poll.closed" {
			closedEvents++
		}
	}
	if closedEvents != 1 {
		t.Fatalf("repeated sweeps must emit exactly 1 poll.closed event, got %d", closedEvents)
	}
}

// failingCloser makes CloseIfOpen fail for a chosen poll while the rest of the
// repository behaves normally.
type failingCloser struct {
	*memory.Store
	failPollID string
}

func (f failingCloser) CloseIfOpen(ctx context.Context, pollID string, closedAt time.Time) (bool, error) {
	if pollID == f.failPollID {
		return false, errors.New("storage hiccup")
	}
	return f.Store.CloseIfOpen(ctx, pollID, closedAt)
}

func TestRunOnceSkipsFailingPollAndClosesTheRest(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	store := memory.NewStore([]entities.Poll{
		seededPoll("poll_a", &past, now.Add(-time.Hour)),
		seededPoll("poll_b", &past, now.Add(-time.Hour)),
	})
	store.SetNow(now)

	sweeper := ExpirySweeper{
		Polls:  failingCloser{Store: store, failPollID: "poll_a"},
		Outbox: store,
		Clock:  store,
		IDGen:  store,
	}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("a single failing poll must not fail the sweep: %v", err)
	}

	pollA, _ := store.GetPoll(context.Background(), "poll_a")
	if pollA.Status != entities.PollStatusOpen {
		t.Fatalf("failing poll must stay open for the next run, got %s", pollA.Status)
	}
	pollB, _ := store.GetPoll(context.Background(), "poll_b")
	if pollB.Status != entities.PollStatusClosed {
		t.Fatalf("healthy poll must still be closed, got %s", pollB.Status)
	}
}

func TestRunOnceRaceWithManualCloseKeepsSingleTransition(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	store := memory.NewStore([]entities.Poll{
		seededPoll("poll_expired", &past, now.Add(-time.Hour)),
	})
	store.SetNow(now)

	// Manual close wins the race before the sweep runs.
	if _, err := store.CloseIfOpen(context.Background(), "poll_expired", now); err != nil {
		t.Fatalf("manual close failed: %v", err)
	}

	sweeper := ExpirySweeper{Polls: store, Outbox: store, Clock: store, IDGen: store}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 100)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("losing sweeper must not emit events, got %d", len(pending))
	}
}
