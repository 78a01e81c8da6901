package httpadapter

import (
	"context"
	"log/slog"

	"pollhub/contexts/polling/poll-service/application/commands"
	"pollhub/contexts/polling/poll-service/application/queries"
	"pollhub/contexts/polling/poll-service/domain/entities"
	httptransport "pollhub/contexts/polling/poll-service/transport/http"
)

type Handler struct {
	Lifecycle commands.LifecycleUseCase
	Ledger    commands.VoteLedgerUseCase
	Views     queries.PollViewUseCase
	Logger    *slog.Logger
}

func (h Handler) CreatePollHandler(
	ctx context.Context,
	actor entities.Actor,
	req httptransport.CreatePollRequest,
) (httptransport.PollViewResponse, error) {
	poll, err := h.Lifecycle.CreatePoll(ctx, commands.CreatePollCommand{
		Question: req.Question,
		Options:  req.Options,
		ClosesAt: req.ClosesAt,
		Actor:    actor,
	})
	if err != nil {
		return httptransport.PollViewResponse{}, err
	}
	return h.view(ctx, poll.PollID, actor.UserID)
}

func (h Handler) UpdatePollHandler(
	ctx context.Context,
	actor entities.Actor,
	pollID string,
	req httptransport.UpdatePollRequest,
) (httptransport.PollViewResponse, error) {
	poll, err := h.Lifecycle.UpdatePoll(ctx, commands.UpdatePollCommand{
		PollID:   pollID,
		Question: req.Question,
		Options:  req.Options,
		Actor:    actor,
	})
	if err != nil {
		return httptransport.PollViewResponse{}, err
	}
	return h.view(ctx, poll.PollID, actor.UserID)
}

func (h Handler) ClosePollHandler(
	ctx context.Context,
	actor entities.Actor,
	pollID string,
) (httptransport.PollViewResponse, error) {
	poll, err := h.Lifecycle.ClosePoll(ctx, commands.ClosePollCommand{
		PollID: pollID,
		Actor:  actor,
	})
	if err != nil {
		return httptransport.PollViewResponse{}, err
	}
	return h.view(ctx, poll.PollID, actor.UserID)
}

func (h Handler) DeletePollHandler(ctx context.Context, actor entities.Actor, pollID string) error {
	return h.Lifecycle.DeletePoll(ctx, commands.DeletePollCommand{
		PollID: pollID,
		Actor:  actor,
	})
}

func (h Handler) GetPollHandler(ctx context.Context, viewer entities.Actor, pollID string) (httptransport.PollViewResponse, error) {
	return h.view(ctx, pollID, viewer.UserID)
}

func (h Handler) ListPollsHandler(ctx context.Context, viewer entities.Actor) (httptransport.PollListResponse, error) {
	views, err := h.Views.ListPolls(ctx, viewer.UserID)
	if err != nil {
		return httptransport.PollListResponse{}, err
	}
	items := make([]httptransport.PollViewResponse, 0, len(views))
	for _, view := range views {
		items = append(items, mapPollView(view))
	}
	return httptransport.PollListResponse{Items: items}, nil
}

// CastVoteHandler records the vote and responds with the refreshed view, so
// the casting user immediately reads their own write.
func (h Handler) CastVoteHandler(
	ctx context.Context,
	voter entities.Actor,
	pollID string,
	req httptransport.CastVoteRequest,
) (httptransport.PollViewResponse, error) {
	_, err := h.Ledger.CastVote(ctx, commands.CastVoteCommand{
		PollID:   pollID,
		OptionID: req.OptionID,
		Voter:    voter,
	})
	if err != nil {
		return httptransport.PollViewResponse{}, err
	}
	return h.view(ctx, pollID, voter.UserID)
}

func (h Handler) view(ctx context.Context, pollID string, viewerID string) (httptransport.PollViewResponse, error) {
	view, err := h.Views.GetPoll(ctx, pollID, viewerID)
	if err != nil {
		return httptransport.PollViewResponse{}, err
	}
	return mapPollView(view), nil
}

func mapPollView(view entities.PollView) httptransport.PollViewResponse {
	resp := httptransport.PollViewResponse{
		PollID:    view.PollID,
		Question:  view.Question,
		Status:    string(view.Status),
		ClosesAt:  view.ClosesAt,
		CreatedAt: view.CreatedAt,
		Options:   make([]httptransport.OptionView, 0, len(view.Options)),
		HasVoted:  view.HasVoted,
		UserVote:  view.UserVote,
	}
	for _, option := range view.Options {
		resp.Options = append(resp.Options, httptransport.OptionView{
			OptionID: option.OptionID,
			Text:     option.Text,
			Votes:    option.Votes,
		})
	}
	return resp
}
