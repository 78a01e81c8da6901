package httpserver

import (
	"encoding/json"
	"net/http"

	identityhttp "pollhub/contexts/identity-access/identity-service/transport/http"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req identityhttp.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIdentityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.identity.Handler.SignupHandler(r.Context(), req)
	if err != nil {
		writeIdentityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req identityhttp.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIdentityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.identity.Handler.LoginHandler(r.Context(), req)
	if err != nil {
		writeIdentityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
