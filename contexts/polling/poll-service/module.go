package pollservice

import (
	"log/slog"

	httpadapter "pollhub/contexts/polling/poll-service/adapters/http"
	"pollhub/contexts/polling/poll-service/adapters/memory"
	"pollhub/contexts/polling/poll-service/application/commands"
	"pollhub/contexts/polling/poll-service/application/queries"
	"pollhub/contexts/polling/poll-service/application/workers"
	"pollhub/contexts/polling/poll-service/domain/entities"
	"pollhub/contexts/polling/poll-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Sweeper workers.ExpirySweeper
	Relay   workers.OutboxRelay
	Store   *memory.Store
}

type Dependencies struct {
	Polls           ports.PollRepository
	Votes           ports.VoteRepository
	Outbox          ports.OutboxWriter
	OutboxRepo      ports.OutboxRepository
	Publisher       ports.EventPublisher
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	OutboxBatchSize int
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	lifecycle := commands.LifecycleUseCase{
		Polls:  deps.Polls,
		Votes:  deps.Votes,
		Outbox: deps.Outbox,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	ledger := commands.VoteLedgerUseCase{
		Polls:  deps.Polls,
		Votes:  deps.Votes,
		Outbox: deps.Outbox,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	views := queries.PollViewUseCase{
		Polls: deps.Polls,
		Votes: deps.Votes,
	}
	return Module{
		Handler: httpadapter.Handler{
			Lifecycle: lifecycle,
			Ledger:    ledger,
			Views:     views,
			Logger:    deps.Logger,
		},
		Sweeper: workers.ExpirySweeper{
			Polls:  deps.Polls,
			Outbox: deps.Outbox,
			Clock:  deps.Clock,
			IDGen:  deps.IDGen,
			Logger: deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.OutboxRepo,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatchSize,
			Logger:    deps.Logger,
		},
	}
}

func NewInMemoryModule(seed []entities.Poll, publisher ports.EventPublisher, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Polls:      store,
		Votes:      store,
		Outbox:     store,
		OutboxRepo: store,
		Publisher:  publisher,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
