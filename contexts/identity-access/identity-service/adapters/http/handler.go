package httpadapter

import (
	"context"
	"log/slog"

	"pollhub/contexts/identity-access/identity-service/application"
	"pollhub/contexts/identity-access/identity-service/domain/entities"
	httptransport "pollhub/contexts/identity-access/identity-service/transport/http"
)

type Handler struct {
	Identity application.Service
	Logger   *slog.Logger
}

func (h Handler) SignupHandler(ctx context.Context, req httptransport.SignupRequest) (httptransport.AuthResponse, error) {
	result, err := h.Identity.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return httptransport.AuthResponse{}, err
	}
	return mapAuthResult(result), nil
}

func (h Handler) LoginHandler(ctx context.Context, req httptransport.LoginRequest) (httptransport.AuthResponse, error) {
	result, err := h.Identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		return httptransport.AuthResponse{}, err
	}
	return mapAuthResult(result), nil
}

func (h Handler) AuthenticateHandler(ctx context.Context, token string) (entities.Identity, error) {
	return h.Identity.Authenticate(ctx, token)
}

func mapAuthResult(result application.AuthResult) httptransport.AuthResponse {
	return httptransport.AuthResponse{
		Token: result.Token,
		User: httptransport.UserPayload{
			UserID: result.User.UserID,
			Name:   result.User.Name,
			Email:  result.User.Email,
			Role:   string(result.User.Role),
		},
	}
}
