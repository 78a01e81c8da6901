package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"pollhub/contexts/polling/poll-service/adapters/memory"
	"pollhub/contexts/polling/poll-service/domain/entities"
	domainerrors "pollhub/contexts/polling/poll-service/domain/errors"
)

var (
	adminActor = entities.Actor{UserID: "user_admin", Role: entities.RoleAdmin}
	voterActor = entities.Actor{UserID: "user_voter", Role: entities.RoleUser}
)

func newLifecycle(store *memory.Store) LifecycleUseCase {
	return LifecycleUseCase{
		Polls:  store,
		Votes:  store,
		Outbox: store,
		Clock:  store,
		IDGen:  store,
	}
}

func newLedger(store *memory.Store) VoteLedgerUseCase {
	return VoteLedgerUseCase{
		Polls:  store,
		Votes:  store,
		Outbox: store,
		Clock:  store,
		IDGen:  store,
	}
}

func TestCreatePollPersistsOpenPollWithOptions(t *testing.T) {
	store := memory.NewStore(nil)
	store.SetNow(time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC))
	lifecycle := newLifecycle(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue", "Green"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	if poll.Status != entities.PollStatusOpen {
		t.Fatalf("expected open status, got %s", poll.Status)
	}
	if len(poll.Options) != 3 {
		t.Fatalf("expected 3 options, got %d", len(poll.Options))
	}
	for position, option := range poll.Options {
		if option.Position != position {
			t.Fatalf("option %s has position %d, want %d", option.OptionID, option.Position, position)
		}
		if option.PollID != poll.PollID {
			t.Fatalf("option %s bound to poll %s, want %s", option.OptionID, option.PollID, poll.PollID)
		}
	}

	stored, err := store.GetPoll(context.Background(), poll.PollID)
	if err != nil {
		t.Fatalf("stored poll not found: %v", err)
	}
	if stored.Question != "Best color?" {
		t.Fatalf("stored question mismatch: %q", stored.Question)
	}
}

func TestCreatePollRejectsNonAdmin(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	_, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    voterActor,
	})
	if !errors.Is(err, domainerrors.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	polls, err := store.ListPolls(context.Background())
	if err != nil {
		t.Fatalf("list polls failed: %v", err)
	}
	if len(polls) != 0 {
		t.Fatalf("denied create must leave storage unchanged, found %d polls", len(polls))
	}
}

func TestCreatePollRequiresTwoDistinctOptions(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	cases := []struct {
		name    string
		options []string
	}{
		{"single option", []string{"Red"}},
		{"duplicates collapse", []string{"Red", "Red", " Red "}},
		{"blank options dropped", []string{"Red", "  ", ""}},
	}
	for _, tc := range cases {
		_, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
			Question: "Best color?",
			Options:  tc.options,
			Actor:    adminActor,
		})
		if !errors.Is(err, domainerrors.ErrInvalidPollInput) {
			t.Fatalf("%s: expected ErrInvalidPollInput, got %v", tc.name, err)
		}
	}
}

func TestClosePollIsIdempotent(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}

	first, err := lifecycle.ClosePoll(context.Background(), ClosePollCommand{PollID: poll.PollID, Actor: adminActor})
	if err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if first.Status != entities.PollStatusClosed {
		t.Fatalf("expected closed after first close, got %s", first.Status)
	}

	second, err := lifecycle.ClosePoll(context.Background(), ClosePollCommand{PollID: poll.PollID, Actor: adminActor})
	if err != nil {
		t.Fatalf("second close must be a no-op success, got %v", err)
	}
	if second.Status != entities.PollStatusClosed {
		t.Fatalf("expected closed after second close, got %s", second.Status)
	}

	// Only the first close writes a poll.closed event.
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
		t.Fatalf("expected exactly 1 poll.closed event, got %d", closedEvents)
	}
}

func TestClosePollUnknownPollReturnsNotFound(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	_, err := lifecycle.ClosePoll(context.Background(), ClosePollCommand{PollID: "poll_missing", Actor: adminActor})
	if !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestUpdatePollRewritesQuestionAndOptions(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}

	updated, err := lifecycle.UpdatePoll(context.Background(), UpdatePollCommand{
		PollID:   poll.PollID,
		Question: "Best primary color?",
		Options:  []string{"Red", "Blue", "Yellow"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("update poll failed: %v", err)
	}
	if updated.Question != "Best primary color?" {
		t.Fatalf("question not replaced: %q", updated.Question)
	}
	if len(updated.Options) != 3 {
		t.Fatalf("expected 3 options after update, got %d", len(updated.Options))
	}
}

func TestUpdatePollRejectedOnceVotesExist(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)
	ledger := newLedger(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	if _, err := ledger.CastVote(context.Background(), CastVoteCommand{
		PollID:   poll.PollID,
		OptionID: poll.Options[0].OptionID,
		Voter:    voterActor,
	}); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}

	_, err = lifecycle.UpdatePoll(context.Background(), UpdatePollCommand{
		PollID:   poll.PollID,
		Question: "Best primary color?",
		Options:  []string{"Red", "Yellow"},
		Actor:    adminActor,
	})
	if !errors.Is(err, domainerrors.ErrPollHasVotes) {
		t.Fatalf("expected ErrPollHasVotes, got %v", err)
	}
}

// staleVoteReader reports no votes while sneaking one into the store, so the
// use case proceeds past its early check and the replace operation must catch
// the vote on its own.
type staleVoteReader struct {
	*memory.Store
	pollID   string
	optionID string
}

func (r staleVoteReader) HasAnyVotes(ctx context.Context, pollID string) (bool, error) {
	vote := entities.Vote{VoteID: "vote_race", PollID: r.pollID, OptionID: r.optionID, UserID: voterActor.UserID}
	if err := r.Store.InsertVote(ctx, vote); err != nil {
		return false, err
	}
	return false, nil
}

func TestUpdatePollRejectsVoteConcurrentWithCheck(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	lifecycle.Votes = staleVoteReader{Store: store, pollID: poll.PollID, optionID: poll.Options[0].OptionID}

	_, err = lifecycle.UpdatePoll(context.Background(), UpdatePollCommand{
		PollID:   poll.PollID,
		Question: "Best primary color?",
		Options:  []string{"Green", "Yellow"},
		Actor:    adminActor,
	})
	if !errors.Is(err, domainerrors.ErrPollHasVotes) {
		t.Fatalf("expected ErrPollHasVotes, got %v", err)
	}

	// The late vote must survive against the original option set.
	stored, err := store.GetPoll(context.Background(), poll.PollID)
	if err != nil {
		t.Fatalf("get poll failed: %v", err)
	}
	if stored.Question != "Best color?" || stored.Options[0].OptionID != poll.Options[0].OptionID {
		t.Fatalf("rejected update must not rewrite the poll, got %+v", stored)
	}
	counts, err := store.CountVotesByOption(context.Background(), poll.PollID)
	if err != nil {
		t.Fatalf("count votes failed: %v", err)
	}
	if counts[poll.Options[0].OptionID] != 1 {
		t.Fatalf("vote orphaned by rejected update: %+v", counts)
	}
}

func TestUpdatePollRejectedWhenClosed(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	if _, err := lifecycle.ClosePoll(context.Background(), ClosePollCommand{PollID: poll.PollID, Actor: adminActor}); err != nil {
		t.Fatalf("close poll failed: %v", err)
	}

	_, err = lifecycle.UpdatePoll(context.Background(), UpdatePollCommand{
		PollID:   poll.PollID,
		Question: "Best primary color?",
		Options:  []string{"Red", "Yellow"},
		Actor:    adminActor,
	})
	if !errors.Is(err, domainerrors.ErrPollClosed) {
		t.Fatalf("expected ErrPollClosed, got %v", err)
	}
}

func TestDeletePollRemovesVotes(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)
	ledger := newLedger(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	if _, err := ledger.CastVote(context.Background(), CastVoteCommand{
		PollID:   poll.PollID,
		OptionID: poll.Options[0].OptionID,
		Voter:    voterActor,
	}); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}

	if err := lifecycle.DeletePoll(context.Background(), DeletePollCommand{PollID: poll.PollID, Actor: adminActor}); err != nil {
		t.Fatalf("delete poll failed: %v", err)
	}
	if _, err := store.GetPoll(context.Background(), poll.PollID); !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected poll gone, got %v", err)
	}
	voted, err := store.HasAnyVotes(context.Background(), poll.PollID)
	if err != nil {
		t.Fatalf("has any votes failed: %v", err)
	}
	if voted {
		t.Fatal("votes must be removed with the poll")
	}
}

func TestDeletePollRejectsNonAdmin(t *testing.T) {
	store := memory.NewStore(nil)
	lifecycle := newLifecycle(store)

	poll, err := lifecycle.CreatePoll(context.Background(), CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    adminActor,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}

	if err := lifecycle.DeletePoll(context.Background(), DeletePollCommand{PollID: poll.PollID, Actor: voterActor}); !errors.Is(err, domainerrors.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := store.GetPoll(context.Background(), poll.PollID); err != nil {
		t.Fatalf("poll must survive denied delete: %v", err)
	}
}
