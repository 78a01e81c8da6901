package queries

import (
	"context"
	"strings"

	"pollhub/contexts/polling/poll-service/domain/entities"
	"pollhub/contexts/polling/poll-service/ports"
)

// PollViewUseCase projects polls into the read-facing shape for one viewer.
// Tallies are computed from committed vote rows on every call, so a viewer
// always sees their own acknowledged vote reflected.
type PollViewUseCase struct {
	Polls ports.PollRepository
	Votes ports.VoteRepository
}

func (uc PollViewUseCase) GetPoll(ctx context.Context, pollID string, viewerID string) (entities.PollView, error) {
	poll, err := uc.Polls.GetPoll(ctx, strings.TrimSpace(pollID))
	if err != nil {
		return entities.PollView{}, err
	}
	return uc.render(ctx, poll, viewerID)
}

func (uc PollViewUseCase) ListPolls(ctx context.Context, viewerID string) ([]entities.PollView, error) {
	polls, err := uc.Polls.ListPolls(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]entities.PollView, 0, len(polls))
	for _, poll := range polls {
		view, err := uc.render(ctx, poll, viewerID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (uc PollViewUseCase) render(ctx context.Context, poll entities.Poll, viewerID string) (entities.PollView, error) {
	counts, err := uc.Votes.CountVotesByOption(ctx, poll.PollID)
	if err != nil {
		return entities.PollView{}, err
	}

	view := entities.PollView{
		PollID:    poll.PollID,
		Question:  poll.Question,
		Status:    poll.Status,
		ClosesAt:  poll.ClosesAt,
		CreatedAt: poll.CreatedAt,
		Options:   make([]entities.OptionView, 0, len(poll.Options)),
	}
	for _, option := range poll.Options {
		view.Options = append(view.Options, entities.OptionView{
			OptionID: option.OptionID,
			Text:     option.Text,
			Votes:    counts[option.OptionID],
		})
	}

	if viewerID = strings.TrimSpace(viewerID); viewerID != "" {
		vote, found, err := uc.Votes.GetVoteByPollAndUser(ctx, poll.PollID, viewerID)
		if err != nil {
			return entities.PollView{}, err
		}
		if found {
			view.HasVoted = true
			view.UserVote = vote.OptionID
		}
	}
	return view, nil
}
