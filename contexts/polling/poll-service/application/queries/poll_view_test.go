package queries

import (
	"context"
	"errors"
	"testing"

	"pollhub/contexts/polling/poll-service/adapters/memory"
	"pollhub/contexts/polling/poll-service/application/commands"
	"pollhub/contexts/polling/poll-service/domain/entities"
	domainerrors "pollhub/contexts/polling/poll-service/domain/errors"
)

var admin = entities.Actor{UserID: "user_admin", Role: entities.RoleAdmin}

func setupPoll(t *testing.T, store *memory.Store) entities.Poll {
	t.Helper()
	lifecycle := commands.LifecycleUseCase{Polls: store, Votes: store, Outbox: store, Clock: store, IDGen: store}
	poll, err := lifecycle.CreatePoll(context.Background(), commands.CreatePollCommand{
		Question: "Best color?",
		Options:  []string{"Red", "Blue"},
		Actor:    admin,
	})
	if err != nil {
		t.Fatalf("create poll failed: %v", err)
	}
	return poll
}

func castVote(t *testing.T, store *memory.Store, poll entities.Poll, userID string, optionID string) {
	t.Helper()
	ledger := commands.VoteLedgerUseCase{Polls: store, Votes: store, Outbox: store, Clock: store, IDGen: store}
	if _, err := ledger.CastVote(context.Background(), commands.CastVoteCommand{
		PollID:   poll.PollID,
		OptionID: optionID,
		Voter:    entities.Actor{UserID: userID, Role: entities.RoleUser},
	}); err != nil {
		t.Fatalf("cast vote for %s failed: %v", userID, err)
	}
}

func TestGetPollProjectsLiveCounts(t *testing.T) {
	store := memory.NewStore(nil)
	poll := setupPoll(t, store)
	castVote(t, store, poll, "user_a", poll.Options[0].OptionID)
	castVote(t, store, poll, "user_b", poll.Options[1].OptionID)

	views := PollViewUseCase{Polls: store, Votes: store}
	view, err := views.GetPoll(context.Background(), poll.PollID, "user_a")
	if err != nil {
		t.Fatalf("get poll view failed: %v", err)
	}

	if view.Question != "Best color?" {
		t.Fatalf("question mismatch: %q", view.Question)
	}
	byText := make(map[string]int, len(view.Options))
	for _, option := range view.Options {
		byText[option.Text] = option.Votes
	}
	if byText["Red"] != 1 || byText["Blue"] != 1 {
		t.Fatalf("expected Red:1 Blue:1, got %v", byText)
	}
	if !view.HasVoted {
		t.Fatal("viewer who voted must see has_voted")
	}
	if view.UserVote != poll.Options[0].OptionID {
		t.Fatalf("viewer vote mismatch: %s", view.UserVote)
	}
}

func TestGetPollViewerReadsOwnWriteImmediately(t *testing.T) {
	store := memory.NewStore(nil)
	poll := setupPoll(t, store)
	views := PollViewUseCase{Polls: store, Votes: store}

	before, err := views.GetPoll(context.Background(), poll.PollID, "user_a")
	if err != nil {
		t.Fatalf("view before vote failed: %v", err)
	}
	if before.HasVoted {
		t.Fatal("viewer has not voted yet")
	}

	castVote(t, store, poll, "user_a", poll.Options[0].OptionID)

	after, err := views.GetPoll(context.Background(), poll.PollID, "user_a")
	if err != nil {
		t.Fatalf("view after vote failed: %v", err)
	}
	if !after.HasVoted || after.UserVote != poll.Options[0].OptionID {
		t.Fatalf("acknowledged vote not visible: has_voted=%v user_vote=%s", after.HasVoted, after.UserVote)
	}
	if after.Options[0].Votes != before.Options[0].Votes+1 {
		t.Fatalf("tally did not advance: before=%d after=%d", before.Options[0].Votes, after.Options[0].Votes)
	}
}

func TestGetPollAnonymousViewerHasNoVoteMarkers(t *testing.T) {
	store := memory.NewStore(nil)
	poll := setupPoll(t, store)
	castVote(t, store, poll, "user_a", poll.Options[0].OptionID)

	views := PollViewUseCase{Polls: store, Votes: store}
	view, err := views.GetPoll(context.Background(), poll.PollID, "")
	if err != nil {
		t.Fatalf("anonymous view failed: %v", err)
	}
	if view.HasVoted || view.UserVote != "" {
		t.Fatalf("anonymous viewer must carry no vote markers: has_voted=%v user_vote=%s", view.HasVoted, view.UserVote)
	}
	if view.Options[0].Votes != 1 {
		t.Fatalf("counts must still be visible anonymously, got %d", view.Options[0].Votes)
	}
}

func TestGetPollUnknownPollReturnsNotFound(t *testing.T) {
	store := memory.NewStore(nil)
	views := PollViewUseCase{Polls: store, Votes: store}

	_, err := views.GetPoll(context.Background(), "poll_missing", "user_a")
	if !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestListPollsProjectsEveryPollForViewer(t *testing.T) {
	store := memory.NewStore(nil)
	first := setupPoll(t, store)
	lifecycle := commands.LifecycleUseCase{Polls: store, Votes: store, Outbox: store, Clock: store, IDGen: store}
	second, err := lifecycle.CreatePoll(context.Background(), commands.CreatePollCommand{
		Question: "Best season?",
		Options:  []string{"Summer", "Winter"},
		Actor:    admin,
	})
	if err != nil {
		t.Fatalf("create second poll failed: %v", err)
	}
	castVote(t, store, first, "user_a", first.Options[0].OptionID)

	views := PollViewUseCase{Polls: store, Votes: store}
	items, err := views.ListPolls(context.Background(), "user_a")
	if err != nil {
		t.Fatalf("list polls failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 polls, got %d", len(items))
	}
	for _, item := range items {
		switch item.PollID {
		case first.PollID:
			if !item.HasVoted {
				t.Fatalf("viewer voted on %s, marker missing", first.PollID)
			}
		case second.PollID:
			if item.HasVoted {
				t.Fatalf("viewer did not vote on %s", second.PollID)
			}
		default:
			t.Fatalf("unexpected poll %s in listing", item.PollID)
		}
	}
}
