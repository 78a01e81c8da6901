package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreatePollRequest struct {
	Question string     `json:"question"`
	Options  []string   `json:"options"`
	ClosesAt *time.Time `json:"closes_at,omitempty"`
}

type UpdatePollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type CastVoteRequest struct {
	OptionID string `json:"option_id"`
}

type OptionView struct {
	OptionID string `json:"option_id"`
	Text     string `json:"text"`
	Votes    int    `json:"votes"`
}

type PollViewResponse struct {
	PollID    string       `json:"poll_id"`
	Question  string       `json:"question"`
	Status    string       `json:"status"`
	ClosesAt  *time.Time   `json:"closes_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Options   []OptionView `json:"options"`
	HasVoted  bool         `json:"has_voted"`
	UserVote  string       `json:"user_vote,omitempty"`
}

type PollListResponse struct {
	Items []PollViewResponse `json:"items"`
}
