package ballotengine

import (
	"fmt"
	"log/slog"
	"time"

	httpadapter "votingapp/contexts/elections/ballot-engine/adapters/http"
	"votingapp/contexts/elections/ballot-engine/adapters/memory"
	"votingapp/contexts/elections/ballot-engine/application/commands"
	"votingapp/contexts/elections/ballot-engine/application/queries"
	"votingapp/contexts/elections/ballot-engine/application/rpc"
	"votingapp/contexts/elections/ballot-engine/application/workers"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
)

type Backend string

const (
	BackendDirect Backend = "direct"
	BackendBroker Backend = "broker"
)

type Module struct {
	// Dispatcher is bound once to the configured backend.
	Dispatcher ports.Dispatcher
	Handler    httpadapter.Handler
	// Consumer serves the vote queue; it is only meaningful when Broker was
	// provided.
	Consumer workers.VoteQueueConsumer
	Users    ports.UserRegistry
}

type Dependencies struct {
	Backend      Backend
	Store        ports.BallotStore
	Reader       ports.TallyReader
	Users        ports.UserRegistry
	Broker       ports.MessageBroker
	Clock        ports.Clock
	IDGen        ports.IDGenerator
	VoteLimit    int
	Queue        string
	ReplyTimeout time.Duration
	BackOff      ports.BackOff
	Logger       *slog.Logger
}

func NewModule(deps Dependencies) (Module, error) {
	if deps.VoteLimit <= 0 {
		return Module{}, domainerrors.ErrInvalidVoteLimit
	}
	engine := commands.Engine{
		Store:     deps.Store,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		VoteLimit: deps.VoteLimit,
		Logger:    deps.Logger,
	}

	var dispatcher ports.Dispatcher
	switch deps.Backend {
	case BackendDirect:
		dispatcher = commands.NewDirectDispatcher(engine)
	case BackendBroker:
		if deps.Broker == nil {
			return Module{}, fmt.Errorf("%w: broker backend requires a message broker", domainerrors.ErrUnknownBackend)
		}
		dispatcher = rpc.NewClient(rpc.ClientConfig{
			Broker:  deps.Broker,
			IDGen:   deps.IDGen,
			Queue:   deps.Queue,
			Timeout: deps.ReplyTimeout,
			Logger:  deps.Logger,
		})
	default:
		return Module{}, fmt.Errorf("%w: %q", domainerrors.ErrUnknownBackend, deps.Backend)
	}

	tally := queries.TallyUseCase{
		Reader:    deps.Reader,
		VoteLimit: deps.VoteLimit,
	}
	return Module{
		Dispatcher: dispatcher,
		Handler: httpadapter.Handler{
			Dispatcher: dispatcher,
			Tally:      tally,
			Logger:     deps.Logger,
		},
		Consumer: workers.VoteQueueConsumer{
			Broker:  deps.Broker,
			Engine:  engine,
			Queue:   deps.Queue,
			BackOff: deps.BackOff,
			Logger:  deps.Logger,
		},
		Users: deps.Users,
	}, nil
}

// NewInMemoryModule wires the module over a fresh in-memory store and returns
// the store alongside it for seeding and fault injection. broker may be nil
// for the direct backend.
func NewInMemoryModule(
	backend Backend,
	broker ports.MessageBroker,
	voteLimit int,
	logger *slog.Logger,
) (Module, *memory.Store, error) {
	store := memory.NewStore()
	module, err := NewModule(Dependencies{
		Backend:   backend,
		Store:     store,
		Reader:    store,
		Users:     store,
		Broker:    broker,
		Clock:     store,
		IDGen:     store,
		VoteLimit: voteLimit,
		Logger:    logger,
	})
	if err != nil {
		return Module{}, nil, err
	}
	return module, store, nil
}
