package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	pollerrors "pollhub/contexts/polling/poll-service/domain/errors"
	pollhttp "pollhub/contexts/polling/poll-service/transport/http"
)

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.resolveViewer(w, r)
	if !ok {
		return
	}

	resp, err := s.polls.Handler.ListPollsHandler(r.Context(), viewer)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.resolveViewer(w, r)
	if !ok {
		return
	}

	pollID := r.PathValue("poll_id")
	resp, err := s.polls.Handler.GetPollHandler(r.Context(), viewer, pollID)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req pollhttp.CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.polls.Handler.CreatePollHandler(r.Context(), actor, req)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req pollhttp.UpdatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	pollID := r.PathValue("poll_id")
	resp, err := s.polls.Handler.UpdatePollHandler(r.Context(), actor, pollID, req)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClosePoll(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	pollID := r.PathValue("poll_id")
	resp, err := s.polls.Handler.ClosePollHandler(r.Context(), actor, pollID)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	pollID := r.PathValue("poll_id")
	if err := s.polls.Handler.DeletePollHandler(r.Context(), actor, pollID); err != nil {
		writePollDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	voter, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req pollhttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	pollID := r.PathValue("poll_id")
	resp, err := s.polls.Handler.CastVoteHandler(r.Context(), voter, pollID, req)
	if err != nil {
		writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func writePollDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pollerrors.ErrPollNotFound):
		writePollError(w, http.StatusNotFound, "poll_not_found", err.Error())
	case errors.Is(err, pollerrors.ErrOptionNotFound):
		writePollError(w, http.StatusNotFound, "option_not_found", err.Error())
	case errors.Is(err, pollerrors.ErrPermissionDenied):
		writePollError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, pollerrors.ErrInvalidPollInput),
		errors.Is(err, pollerrors.ErrOptionMismatch):
		writePollError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, pollerrors.ErrPollClosed):
		writePollError(w, http.StatusConflict, "poll_closed", err.Error())
	case errors.Is(err, pollerrors.ErrPollHasVotes):
		writePollError(w, http.StatusConflict, "poll_has_votes", err.Error())
	case errors.Is(err, pollerrors.ErrAlreadyVoted):
		writePollError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, pollerrors.ErrStorageUnavailable):
		writePollError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		writePollError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writePollError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, pollhttp.ErrorResponse{Code: code, Message: message})
}
