package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"pollhub/contexts/polling/poll-service/domain/entities"
	domainerrors "pollhub/contexts/polling/poll-service/domain/errors"
	"pollhub/contexts/polling/poll-service/ports"
	"pollhub/internal/shared/events"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store is the in-memory adapter implementing every poll-service port. The
// single mutex makes check-then-write sequences atomic, mirroring the
// storage-level guarantees the postgres adapter gets from constraints.
type Store struct {
	mu sync.RWMutex

	polls  map[string]entities.Poll
	votes  map[string]entities.Vote // keyed by pollID + "|" + userID
	outbox map[string]outboxRecord

	now time.Time
}

func NewStore(seed []entities.Poll) *Store {
	polls := make(map[string]entities.Poll, len(seed))
	for _, poll := range seed {
		polls[poll.PollID] = clonePoll(poll)
	}
	return &Store{
		polls:  polls,
		votes:  make(map[string]entities.Vote),
		outbox: make(map[string]outboxRecord),
	}
}

// SetNow pins the clock for deadline tests. Zero means wall clock.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) CreatePoll(_ context.Context, poll entities.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[poll.PollID] = clonePoll(poll)
	return nil
}

func (s *Store) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return clonePoll(poll), nil
}

func (s *Store) GetOption(_ context.Context, optionID string) (entities.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	optionID = strings.TrimSpace(optionID)
	for _, poll := range s.polls {
		for _, option := range poll.Options {
			if option.OptionID == optionID {
				return option, nil
			}
		}
	}
	return entities.Option{}, domainerrors.ErrOptionNotFound
}

func (s *Store) ListPolls(_ context.Context) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Poll, 0, len(s.polls))
	for _, poll := range s.polls {
		items = append(items, clonePoll(poll))
	}
	sort.Slice(items, func(a, b int) bool {
		if items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].PollID < items[b].PollID
		}
		return items[a].CreatedAt.Before(items[b].CreatedAt)
	})
	return items, nil
}

func (s *Store) ReplaceQuestionAndOptions(
	_ context.Context,
	pollID string,
	question string,
	options []entities.Option,
	updatedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[strings.TrimSpace(pollID)]
	if !ok {
		return domainerrors.ErrPollNotFound
	}
	// Checked under the same lock as the rewrite: a vote that landed after
	// the caller's pre-check still blocks the replacement.
	for _, vote := range s.votes {
		if vote.PollID == poll.PollID {
			return domainerrors.ErrPollHasVotes
		}
	}
	poll.Question = question
	poll.Options = append([]entities.Option(nil), options...)
	poll.UpdatedAt = updatedAt.UTC()
	s.polls[poll.PollID] = poll
	return nil
}

func (s *Store) CloseIfOpen(_ context.Context, pollID string, closedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[strings.TrimSpace(pollID)]
	if !ok {
		return false, domainerrors.ErrPollNotFound
	}
	if poll.Status == entities.PollStatusClosed {
		return false, nil
	}
	poll.Status = entities.PollStatusClosed
	poll.UpdatedAt = closedAt.UTC()
	s.polls[poll.PollID] = poll
	return true, nil
}

func (s *Store) DeletePoll(_ context.Context, pollID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pollID = strings.TrimSpace(pollID)
	if _, ok := s.polls[pollID]; !ok {
		return domainerrors.ErrPollNotFound
	}
	delete(s.polls, pollID)
	for key, vote := range s.votes {
		if vote.PollID == pollID {
			delete(s.votes, key)
		}
	}
	return nil
}

func (s *Store) FindExpiredOpen(_ context.Context, now time.Time) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Poll, 0)
	for _, poll := range s.polls {
		if poll.IsOpen() && poll.ExpiredAt(now) {
			items = append(items, clonePoll(poll))
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].PollID < items[b].PollID })
	return items, nil
}

func (s *Store) InsertVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey(vote.PollID, vote.UserID)
	if _, exists := s.votes[key]; exists {
		return domainerrors.ErrAlreadyVoted
	}
	s.votes[key] = vote
	return nil
}

func (s *Store) GetVoteByPollAndUser(_ context.Context, pollID string, userID string) (entities.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[voteKey(pollID, userID)]
	if !ok {
		return entities.Vote{}, false, nil
	}
	return vote, true, nil
}

func (s *Store) CountVotesByOption(_ context.Context, pollID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollID = strings.TrimSpace(pollID)
	counts := make(map[string]int)
	for _, vote := range s.votes {
		if vote.PollID == pollID {
			counts[vote.OptionID]++
		}
	}
	return counts, nil
}

func (s *Store) HasAnyVotes(_ context.Context, pollID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollID = strings.TrimSpace(pollID)
	for _, vote := range s.votes {
		if vote.PollID == pollID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope events.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outbox[envelope.EventID]; exists {
		return nil
	}
	s.outbox[envelope.EventID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:  envelope.EventID,
			EventType: envelope.EventType,
			Payload:   payload,
			CreatedAt: envelope.OccurredAtUTC.UTC(),
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0)
	for _, record := range s.outbox {
		if record.published {
			continue
		}
		items = append(items, record.message)
	}
	sort.Slice(items, func(a, b int) bool {
		if items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].OutboxID < items[b].OutboxID
		}
		return items[a].CreatedAt.Before(items[b].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrStorageUnavailable
	}
	record.published = true
	s.outbox[record.message.OutboxID] = record
	return nil
}

func voteKey(pollID string, userID string) string {
	return strings.TrimSpace(pollID) + "|" + strings.TrimSpace(userID)
}

func clonePoll(poll entities.Poll) entities.Poll {
	copied := poll
	copied.Options = append([]entities.Option(nil), poll.Options...)
	if poll.ClosesAt != nil {
		closesAt := *poll.ClosesAt
		copied.ClosesAt = &closesAt
	}
	return copied
}
