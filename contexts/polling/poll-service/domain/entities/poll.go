package entities

import (
	"strings"
	"time"
)

type PollStatus string

const (
	PollStatusOpen   PollStatus = "open"
	PollStatusClosed PollStatus = "closed"
)

// Roles carried by authenticated callers. The values match the identity
// context's role vocabulary so actors can cross the boundary as plain strings.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Actor is the authenticated caller of a lifecycle or vote operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(a.Role), RoleAdmin)
}

// Option is one selectable answer within a poll. Position preserves the
// option order the creator supplied.
type Option struct {
	OptionID string
	PollID   string
	Text     string
	Position int
}

// Poll is the aggregate root. Status only ever moves open -> closed.
type Poll struct {
	PollID    string
	Question  string
	Status    PollStatus
	ClosesAt  *time.Time
	CreatedBy string
	Options   []Option
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Poll) IsOpen() bool {
	return p.Status == PollStatusOpen
}

// ExpiredAt reports whether the poll's deadline has passed at the given
// instant. Polls without a deadline never expire.
func (p Poll) ExpiredAt(now time.Time) bool {
	if p.ClosesAt == nil {
		return false
	}
	return p.ClosesAt.UTC().Before(now.UTC())
}

// HasOption reports whether the option belongs to this poll.
func (p Poll) HasOption(optionID string) bool {
	for _, option := range p.Options {
		if option.OptionID == strings.TrimSpace(optionID) {
			return true
		}
	}
	return false
}
