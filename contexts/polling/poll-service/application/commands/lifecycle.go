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

// CreatePollCommand is the write-model input for poll creation.
type CreatePollCommand struct {
	Question string
	Options  []string
	ClosesAt *time.Time
	Actor    entities.Actor
}

type UpdatePollCommand struct {
	PollID   string
	Question string
	Options  []string
	Actor    entities.Actor
}

type ClosePollCommand struct {
	PollID string
	Actor  entities.Actor
}

type DeletePollCommand struct {
	PollID string
	Actor  entities.Actor
}

// LifecycleUseCase owns the open -> closed state machine and every admin
// mutation of the poll aggregate. Closed is terminal; no command reopens.
type LifecycleUseCase struct {
	Polls  ports.PollRepository
	Votes  ports.VoteRepository
	Outbox ports.OutboxWriter
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// CreatePoll persists a new open poll with its options in one transaction.
func (uc LifecycleUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	if !cmd.Actor.IsAdmin() {
		logger.Warn("poll create denied",
			"event", "poll_create_denied",
			"module", "polling/poll-service",
			"layer", "application",
			"user_id", cmd.Actor.UserID,
		)
		return entities.Poll{}, domainerrors.ErrPermissionDenied
	}

	question := strings.TrimSpace(cmd.Question)
	options := normalizeOptions(cmd.Options)
	if question == "" || len(options) < 2 {
		logger.Warn("poll create validation failed",
			"event", "poll_create_validation_failed",
			"module", "polling/poll-service",
			"layer", "application",
			"user_id", cmd.Actor.UserID,
			"option_count", len(options),
		)
		return entities.Poll{}, domainerrors.ErrInvalidPollInput
	}

	now := uc.now()
	pollID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Poll{}, err
	}
	poll := entities.Poll{
		PollID:    pollID,
		Question:  question,
		Status:    entities.PollStatusOpen,
		CreatedBy: strings.TrimSpace(cmd.Actor.UserID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cmd.ClosesAt != nil {
		closesAt := cmd.ClosesAt.UTC()
		poll.ClosesAt = &closesAt
	}
	for position, text := range options {
		optionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.Poll{}, err
		}
		poll.Options = append(poll.Options, entities.Option{
			OptionID: optionID,
			PollID:   pollID,
			Text:     text,
			Position: position,
		})
	}

	if err := uc.Polls.CreatePoll(ctx, poll); err != nil {
		return entities.Poll{}, err
	}
	if err := uc.appendPollEvent(ctx, "poll.created", poll, now, nil); err != nil {
		return entities.Poll{}, err
	}
	logger.Info("poll created",
		"event", "poll_created",
		"module", "polling/poll-service",
		"layer", "application",
		"poll_id", poll.PollID,
		"option_count", len(poll.Options),
		"user_id", poll.CreatedBy,
	)
	return poll, nil
}

// UpdatePoll replaces the question and option set of an open poll. Polls that
// already collected a vote cannot be edited: replacing options would orphan
// the votes bound to them.
func (uc LifecycleUseCase) UpdatePoll(ctx context.Context, cmd UpdatePollCommand) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	if !cmd.Actor.IsAdmin() {
		return entities.Poll{}, domainerrors.ErrPermissionDenied
	}

	question := strings.TrimSpace(cmd.Question)
	options := normalizeOptions(cmd.Options)
	if strings.TrimSpace(cmd.PollID) == "" || question == "" || len(options) < 2 {
		return entities.Poll{}, domainerrors.ErrInvalidPollInput
	}

	poll, err := uc.Polls.GetPoll(ctx, cmd.PollID)
	if err != nil {
		return entities.Poll{}, err
	}
	if !poll.IsOpen() {
		return entities.Poll{}, domainerrors.ErrPollClosed
	}
	// Early check for a friendly rejection. The repository re-checks inside
	// the replace operation, which is what actually guards against a vote
	// racing this read.
	voted, err := uc.Votes.HasAnyVotes(ctx, poll.PollID)
	if err != nil {
		return entities.Poll{}, err
	}
	if voted {
		logger.Warn("poll update rejected, votes already cast",
			"event", "poll_update_has_votes",
			"module", "polling/poll-service",
			"layer", "application",
			"poll_id", poll.PollID,
			"user_id", cmd.Actor.UserID,
		)
		return entities.Poll{}, domainerrors.ErrPollHasVotes
	}

	now := uc.now()
	replacement := make([]entities.Option, 0, len(options))
	for position, text := range options {
		optionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.Poll{}, err
		}
		replacement = append(replacement, entities.Option{
			OptionID: optionID,
			PollID:   poll.PollID,
			Text:     text,
			Position: position,
		})
	}
	if err := uc.Polls.ReplaceQuestionAndOptions(ctx, poll.PollID, question, replacement, now); err != nil {
		return entities.Poll{}, err
	}

	poll.Question = question
	poll.Options = replacement
	poll.UpdatedAt = now
	logger.Info("poll updated",
		"event", "poll_updated",
		"module", "polling/poll-service",
		"layer", "application",
		"poll_id", poll.PollID,
		"user_id", cmd.Actor.UserID,
	)
	return poll, nil
}

// ClosePoll transitions the poll to closed. Closing an already closed poll is
// a successful no-op so admin closes and expiry sweeps can race safely.
func (uc LifecycleUseCase) ClosePoll(ctx context.Context, cmd ClosePollCommand) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	if !cmd.Actor.IsAdmin() {
		return entities.Poll{}, domainerrors.ErrPermissionDenied
	}

	now := uc.now()
	transitioned, err := uc.Polls.CloseIfOpen(ctx, cmd.PollID, now)
	if err != nil {
		return entities.Poll{}, err
	}
	poll, err := uc.Polls.GetPoll(ctx, cmd.PollID)
	if err != nil {
		return entities.Poll{}, err
	}
	if transitioned {
		if err := uc.appendPollEvent(ctx, "poll.closed", poll, now, map[string]any{
			"closed_by": strings.TrimSpace(cmd.Actor.UserID),
		}); err != nil {
			return entities.Poll{}, err
		}
		logger.Info("poll closed",
			"event", "poll_closed",
			"module", "polling/poll-service",
			"layer", "application",
			"poll_id", poll.PollID,
			"user_id", cmd.Actor.UserID,
		)
	}
	return poll, nil
}

// DeletePoll removes the poll with its options and votes in one transaction.
func (uc LifecycleUseCase) DeletePoll(ctx context.Context, cmd DeletePollCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	if !cmd.Actor.IsAdmin() {
		return domainerrors.ErrPermissionDenied
	}
	if err := uc.Polls.DeletePoll(ctx, cmd.PollID); err != nil {
		return err
	}
	logger.Info("poll deleted",
		"event", "poll_deleted",
		"module", "polling/poll-service",
		"layer", "application",
		"poll_id", strings.TrimSpace(cmd.PollID),
		"user_id", cmd.Actor.UserID,
	)
	return nil
}

func (uc LifecycleUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (uc LifecycleUseCase) appendPollEvent(
	ctx context.Context,
	eventType string,
	poll entities.Poll,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"poll_id":  poll.PollID,
		"question": poll.Question,
		"status":   string(poll.Status),
	}
	if poll.ClosesAt != nil {
		payload["closes_at"] = poll.ClosesAt.UTC().Format(time.RFC3339)
	}
	for key, value := range metadata {
		payload[key] = value
	}
	return uc.Outbox.AppendOutbox(ctx, events.Envelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  "polling/poll-service",
		OccurredAtUTC:  occurredAt,
		EntityType:     "poll",
		EntityID:       poll.PollID,
		PayloadVersion: 1,
		Payload:        payload,
	})
}

// normalizeOptions trims, drops empties, and deduplicates case-sensitively
// while preserving the submitted order.
func normalizeOptions(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	options := make([]string, 0, len(raw))
	for _, text := range raw {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		options = append(options, text)
	}
	return options
}
