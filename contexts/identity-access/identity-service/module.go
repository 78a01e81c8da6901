package identityservice

import (
	"log/slog"
	"time"

	httpadapter "pollhub/contexts/identity-access/identity-service/adapters/http"
	"pollhub/contexts/identity-access/identity-service/adapters/memory"
	"pollhub/contexts/identity-access/identity-service/application"
	"pollhub/contexts/identity-access/identity-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Users       ports.UserRepository
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	TokenSecret string
	TokenTTL    time.Duration
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Users:       deps.Users,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		TokenSecret: []byte(deps.TokenSecret),
		TokenTTL:    deps.TokenTTL,
		Logger:      deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Identity: service,
			Logger:   deps.Logger,
		},
	}
}

func NewInMemoryModule(tokenSecret string, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Users:       store,
		Clock:       store,
		IDGen:       store,
		TokenSecret: tokenSecret,
		TokenTTL:    24 * time.Hour,
		Logger:      logger,
	})
	module.Store = store
	return module
}
