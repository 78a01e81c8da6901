package entities

import "time"

// Vote is the authoritative (poll, user) -> option relation. Rows are
// inserted exactly once per successful cast and never mutated; option tallies
// and per-user "has voted" views are always derived from this relation.
type Vote struct {
	VoteID   string
	PollID   string
	OptionID string
	UserID   string
	CastAt   time.Time
}

type OptionView struct {
	OptionID string
	Text     string
	Votes    int
}

// PollView is the read-facing projection for a specific viewer.
type PollView struct {
	PollID    string
	Question  string
	Status    PollStatus
	ClosesAt  *time.Time
	CreatedAt time.Time
	Options   []OptionView
	HasVoted  bool
	UserVote  string
}
