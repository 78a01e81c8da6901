package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	identityservice "pollhub/contexts/identity-access/identity-service"
	identityentities "pollhub/contexts/identity-access/identity-service/domain/entities"
	identityerrors "pollhub/contexts/identity-access/identity-service/domain/errors"
	identityhttp "pollhub/contexts/identity-access/identity-service/transport/http"
	pollservice "pollhub/contexts/polling/poll-service"
	pollentities "pollhub/contexts/polling/poll-service/domain/entities"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "pollhub/internal/platform/httpserver/docs"
)

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	polls    pollservice.Module
	identity identityservice.Module
}

func New(
	polls pollservice.Module,
	identity identityservice.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		polls:    polls,
		identity: identity,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	s.mux.HandleFunc("GET /api/polls", s.handleListPolls)
	s.mux.HandleFunc("POST /api/polls", s.handleCreatePoll)
	s.mux.HandleFunc("GET /api/polls/{poll_id}", s.handleGetPoll)
	s.mux.HandleFunc("PUT /api/polls/{poll_id}", s.handleUpdatePoll)
	s.mux.HandleFunc("DELETE /api/polls/{poll_id}", s.handleDeletePoll)
	s.mux.HandleFunc("POST /api/polls/{poll_id}/close", s.handleClosePoll)
	s.mux.HandleFunc("POST /api/polls/{poll_id}/vote", s.handleCastVote)
}

// requireActor resolves the bearer token into an acting user. Mutating
// routes refuse requests without a valid token.
func (s *Server) requireActor(w http.ResponseWriter, r *http.Request) (pollentities.Actor, bool) {
	token := bearerToken(r)
	if token == "" {
		writeIdentityError(w, http.StatusUnauthorized, "missing_token", "Authorization bearer token is required")
		return pollentities.Actor{}, false
	}

	identity, err := s.identity.Handler.AuthenticateHandler(r.Context(), token)
	if err != nil {
		writeIdentityDomainError(w, err)
		return pollentities.Actor{}, false
	}
	return actorFromIdentity(identity), true
}

// resolveViewer is the read-path variant: an absent token yields an
// anonymous viewer, but a present-and-invalid token is still rejected.
func (s *Server) resolveViewer(w http.ResponseWriter, r *http.Request) (pollentities.Actor, bool) {
	token := bearerToken(r)
	if token == "" {
		return pollentities.Actor{}, true
	}

	identity, err := s.identity.Handler.AuthenticateHandler(r.Context(), token)
	if err != nil {
		writeIdentityDomainError(w, err)
		return pollentities.Actor{}, false
	}
	return actorFromIdentity(identity), true
}

func actorFromIdentity(identity identityentities.Identity) pollentities.Actor {
	return pollentities.Actor{
		UserID: identity.UserID,
		Role:   string(identity.Role),
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func writeIdentityDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identityerrors.ErrInvalidSignupInput):
		writeIdentityError(w, http.StatusBadRequest, "invalid_signup", err.Error())
	case errors.Is(err, identityerrors.ErrEmailTaken):
		writeIdentityError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, identityerrors.ErrInvalidCredentials):
		writeIdentityError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, identityerrors.ErrInvalidToken),
		errors.Is(err, identityerrors.ErrTokenExpired):
		writeIdentityError(w, http.StatusUnauthorized, "invalid_token", err.Error())
	case errors.Is(err, identityerrors.ErrUserNotFound):
		writeIdentityError(w, http.StatusUnauthorized, "invalid_token", "user no longer exists")
	case errors.Is(err, identityerrors.ErrStorageUnavailable):
		writeIdentityError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		writeIdentityError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeIdentityError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, identityhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
