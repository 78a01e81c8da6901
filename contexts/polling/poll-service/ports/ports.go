package ports

import (
	"context"
	"time"

	"pollhub/contexts/polling/poll-service/domain/entities"
	"pollhub/internal/shared/events"
)

// PollRepository persists the poll aggregate. CreatePoll and
// ReplaceQuestionAndOptions are transactional: either the poll and all of its
// options land, or nothing does. ReplaceQuestionAndOptions must reject the
// rewrite with ErrPollHasVotes when any vote exists for the poll, atomically
// with respect to concurrent casts, so no committed vote is ever orphaned.
// DeletePoll cascades options and votes.
type PollRepository interface {
	CreatePoll(ctx context.Context, poll entities.Poll) error
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	GetOption(ctx context.Context, optionID string) (entities.Option, error)
	ListPolls(ctx context.Context) ([]entities.Poll, error)
	ReplaceQuestionAndOptions(ctx context.Context, pollID string, question string, options []entities.Option, updatedAt time.Time) error
	// CloseIfOpen atomically transitions open -> closed. It reports false
	// without error when the poll was already closed, so concurrent closers
	// and repeated sweeps converge on one terminal state.
	CloseIfOpen(ctx context.Context, pollID string, closedAt time.Time) (bool, error)
	DeletePoll(ctx context.Context, pollID string) error
	FindExpiredOpen(ctx context.Context, now time.Time) ([]entities.Poll, error)
}

// VoteRepository persists the vote relation. InsertVote must reject a second
// vote for the same (poll, user) with ErrAlreadyVoted atomically with respect
// to concurrent inserts.
type VoteRepository interface {
	InsertVote(ctx context.Context, vote entities.Vote) error
	GetVoteByPollAndUser(ctx context.Context, pollID string, userID string) (entities.Vote, bool, error)
	CountVotesByOption(ctx context.Context, pollID string) (map[string]int, error)
	HasAnyVotes(ctx context.Context, pollID string) (bool, error)
}

type OutboxMessage struct {
	OutboxID  string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope events.Envelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event events.Envelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
