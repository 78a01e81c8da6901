package workers

import (
	"context"
	"log/slog"
	"time"

	application "pollhub/contexts/polling/poll-service/application"
	"pollhub/contexts/polling/poll-service/domain/entities"
	"pollhub/contexts/polling/poll-service/ports"
	"pollhub/internal/shared/events"
)

// ExpirySweeper closes open polls whose deadline has passed. Each run is
// independent and idempotent: CloseIfOpen is the same atomic transition the
// admin close uses, so overlapping sweeps or a concurrent manual close leave
// the poll closed exactly once.
type ExpirySweeper struct {
	Polls  ports.PollRepository
	Outbox ports.OutboxWriter
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// RunOnce sweeps the current batch of expired polls. A failure on one poll is
// logged and skipped; the poll is retried on the next scheduled run.
func (s ExpirySweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}

	expired, err := s.Polls.FindExpiredOpen(ctx, now)
	if err != nil {
		logger.Error("expiry sweep listing failed",
			"event", "poll_expiry_sweep_list_failed",
			"module", "polling/poll-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	closed := 0
	for _, poll := range expired {
		transitioned, err := s.Polls.CloseIfOpen(ctx, poll.PollID, now)
		if err != nil {
			logger.Error("expiry sweep close failed",
				"event", "poll_expiry_close_failed",
				"module", "polling/poll-service",
				"layer", "worker",
				"poll_id", poll.PollID,
				"error", err.Error(),
			)
			continue
		}
		if !transitioned {
			continue
		}
		closed++
		if err := s.appendClosedEvent(ctx, poll, now); err != nil {
			logger.Error("expiry sweep event append failed",
				"event", "poll_expiry_event_failed",
				"module", "polling/poll-service",
				"layer", "worker",
				"poll_id", poll.PollID,
				"error", err.Error(),
			)
		}
	}

	if closed > 0 {
		logger.Info("expiry sweep completed",
			"event", "poll_expiry_sweep_completed",
			"module", "polling/poll-service",
			"layer", "worker",
			"expired_count", len(expired),
			"closed_count", closed,
		)
	}
	return nil
}

func (s ExpirySweeper) appendClosedEvent(ctx context.Context, poll entities.Poll, occurredAt time.Time) error {
	if s.Outbox == nil {
		return nil
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, events.Envelope{
		EventID:        eventID,
		EventType:      "poll.closed",
		SourceService:  "polling/poll-service",
		OccurredAtUTC:  occurredAt,
		EntityType:     "poll",
		EntityID:       poll.PollID,
		PayloadVersion: 1,
		Payload: map[string]any{
			"poll_id":   poll.PollID,
			"question":  poll.Question,
			"status":    string(entities.PollStatusClosed),
			"closed_by": "expiry-sweeper",
		},
	})
}
