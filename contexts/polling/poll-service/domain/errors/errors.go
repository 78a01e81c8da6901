package errors

import "errors"

var (
	ErrPollNotFound       = errors.New("poll not found")
	ErrOptionNotFound     = errors.New("option not found")
	ErrPermissionDenied   = errors.New("caller lacks admin capability")
	ErrInvalidPollInput   = errors.New("invalid poll input")
	ErrOptionMismatch     = errors.New("option does not belong to poll")
	ErrPollClosed         = errors.New("poll is closed")
	ErrPollHasVotes       = errors.New("poll already has votes")
	ErrAlreadyVoted       = errors.New("user has already voted on this poll")
	ErrStorageUnavailable = errors.New("poll storage unavailable")
)
