package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "pollhub/contexts/polling/poll-service/application"
	"pollhub/contexts/polling/poll-service/domain/entities"
	domainerrors "pollhub/contexts/polling/poll-service/domain/errors"
	"pollhub/contexts/polling/poll-service/ports"
	"pollhub/internal/shared/events"
)

type CastVoteCommand struct {
	PollID   string
	OptionID string
	Voter    entities.Actor
}

// VoteLedgerUseCase enforces the one-vote-per-(poll, user) invariant and
// records the chosen option. The pre-insert duplicate check is advisory; the
// repository's atomic InsertVote is what holds the invariant under races.
type VoteLedgerUseCase struct {
	Polls  ports.PollRepository
	Votes  ports.VoteRepository
	Outbox ports.OutboxWriter
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc VoteLedgerUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)
	pollID := strings.TrimSpace(cmd.PollID)
	optionID := strings.TrimSpace(cmd.OptionID)
	userID := strings.TrimSpace(cmd.Voter.UserID)
	if pollID == "" || optionID == "" || userID == "" {
		return entities.Vote{}, domainerrors.ErrInvalidPollInput
	}

	poll, err := uc.Polls.GetPoll(ctx, pollID)
	if err != nil {
		return entities.Vote{}, err
	}
	if !poll.IsOpen() {
		logger.Warn("vote rejected, poll closed",
			"event", "vote_poll_closed",
			"module", "polling/poll-service",
			"layer", "application",
			"poll_id", pollID,
			"user_id", userID,
		)
		return entities.Vote{}, domainerrors.ErrPollClosed
	}
	option, err := uc.Polls.GetOption(ctx, optionID)
	if err != nil {
		return entities.Vote{}, err
	}
	if option.PollID != pollID {
		return entities.Vote{}, domainerrors.ErrOptionMismatch
	}

	if _, found, err := uc.Votes.GetVoteByPollAndUser(ctx, pollID, userID); err != nil {
		return entities.Vote{}, err
	} else if found {
		return entities.Vote{}, domainerrors.ErrAlreadyVoted
	}

	now := uc.now()
	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Vote{}, err
	}
	vote := entities.Vote{
		VoteID:   voteID,
		PollID:   pollID,
		OptionID: optionID,
		UserID:   userID,
		CastAt:   now,
	}
	// InsertVote is atomic against concurrent casts for the same (poll, user);
	// a loser of that race gets ErrAlreadyVoted from the repository.
	if err := uc.Votes.InsertVote(ctx, vote); err != nil {
		return entities.Vote{}, err
	}
	if err := uc.appendVoteEvent(ctx, vote, now); err != nil {
		return entities.Vote{}, err
	}

	logger.Info("vote cast",
		"event", "vote_cast",
		"module", "polling/poll-service",
		"layer", "application",
		"poll_id", pollID,
		"option_id", optionID,
		"user_id", userID,
	)
	return vote, nil
}

func (uc VoteLedgerUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (uc VoteLedgerUseCase) appendVoteEvent(ctx context.Context, vote entities.Vote, occurredAt time.Time) error {
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, events.Envelope{
		EventID:        eventID,
		EventType:      "vote.cast",
		SourceService:  "polling/poll-service",
		OccurredAtUTC:  occurredAt,
		EntityType:     "vote",
		EntityID:       vote.VoteID,
		PayloadVersion: 1,
		Payload: map[string]any{
			"vote_id":   vote.VoteID,
			"poll_id":   vote.PollID,
			"option_id": vote.OptionID,
			"user_id":   vote.UserID,
			"cast_at":   occurredAt.Format(time.RFC3339),
		},
	})
}
