package ballotengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	ballotengine "votingapp/contexts/elections/ballot-engine"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
	"votingapp/internal/platform/messaging"
)

type step struct {
	name    string
	run     func(ctx context.Context, d ports.Dispatcher) (entities.Result, error)
	failure entities.Failure
	message string
}

func script() []step {
	cast := func(voter, candidate string) func(context.Context, ports.Dispatcher) (entities.Result, error) {
		return func(ctx context.Context, d ports.Dispatcher) (entities.Result, error) {
			return d.CastVote(ctx, voter, candidate)
		}
	}
	retract := func(voter, candidate string) func(context.Context, ports.Dispatcher) (entities.Result, error) {
		return func(ctx context.Context, d ports.Dispatcher) (entities.Result, error) {
			return d.RetractVote(ctx, voter, candidate)
		}
	}
	return []step{
		{name: "cast", run: cast("v@x.com", "c@x.com"), message: "Vote Added"},
		{name: "cast again", run: cast("v@x.com", "c@x.com"), failure: entities.FailureDuplicateVote, message: "Already voted for that candidate"},
		{name: "cast for unknown", run: cast("v@x.com", "ghost@x.com"), failure: entities.FailureCandidateNotFound, message: "Candidate not found"},
		{
			name: "voter with ballots becomes candidate",
			run: func(ctx context.Context, d ports.Dispatcher) (entities.Result, error) {
				return d.SwitchToCandidate(ctx, "v@x.com")
			},
			failure: entities.FailureHasActiveVotes,
			message: "User has active votes. Remove them before attempting to switch to a candidate.",
		},
		{
			name: "candidate with votes becomes voter",
			run: func(ctx context.Context, d ports.Dispatcher) (entities.Result, error) {
				return d.SwitchToVoter(ctx, "c@x.com")
			},
			failure: entities.FailureHasReceivedVotes,
			message: "User has votes for them",
		},
		{name: "retract", run: retract("v@x.com", "c@x.com"), message: "Vote removed"},
		{name: "retract again", run: retract("v@x.com", "c@x.com"), failure: entities.FailureVoteNotFound, message: "Vote not found"},
		{
			name: "empty candidate becomes voter",
			run: func(ctx context.Context, d ports.Dispatcher) (entities.Result, error) {
				return d.SwitchToVoter(ctx, "c@x.com")
			},
			message: "User became a Voter",
		},
		{name: "cast for former candidate", run: cast("v@x.com", "c@x.com"), failure: entities.FailureNotACandidate, message: "User is not a candidate"},
	}
}

func seed(t *testing.T, module ballotengine.Module) {
	t.Helper()
	ctx := context.Background()
	if _, err := module.Users.RegisterUser(ctx, "v@x.com", entities.RoleVoter); err != nil {
		t.Fatalf("register voter failed: %v", err)
	}
	if _, err := module.Users.RegisterUser(ctx, "c@x.com", entities.RoleCandidate); err != nil {
		t.Fatalf("register candidate failed: %v", err)
	}
}

func runScript(t *testing.T, module ballotengine.Module) {
	t.Helper()
	for _, s := range script() {
		result, err := s.run(context.Background(), module.Dispatcher)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", s.name, err)
		}
		if result.Success != (s.failure == entities.FailureNone) || result.Failure != s.failure {
			t.Fatalf("%s: expected failure %q, got %+v", s.name, s.failure, result)
		}
		if result.Message != s.message {
			t.Fatalf("%s: expected message %q, got %q", s.name, s.message, result.Message)
		}
	}
}

func TestDirectBackend(t *testing.T) {
	module, _, err := ballotengine.NewInMemoryModule(ballotengine.BackendDirect, nil, 3, nil)
	if err != nil {
		t.Fatalf("build module failed: %v", err)
	}
	seed(t, module)
	runScript(t, module)
}

func TestBrokerBackendMatchesDirect(t *testing.T) {
	broker := messaging.NewMemoryBroker(nil)
	module, _, err := ballotengine.NewInMemoryModule(ballotengine.BackendBroker, broker, 3, nil)
	if err != nil {
		t.Fatalf("build module failed: %v", err)
	}
	seed(t, module)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- module.Consumer.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	runScript(t, module)
}

func TestBrokerBackendTimesOutWithoutWorker(t *testing.T) {
	broker := messaging.NewMemoryBroker(nil)
	module, err := ballotengine.NewModule(ballotengine.Dependencies{
		Backend:      ballotengine.BackendBroker,
		Broker:       broker,
		IDGen:        idFunc(func() string { return "corr-fixed" }),
		VoteLimit:    3,
		ReplyTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("build module failed: %v", err)
	}
	result, err := module.Dispatcher.CastVote(context.Background(), "v@x.com", "c@x.com")
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if result.Failure != entities.FailureTimeout || result.CorrelationID != "corr-fixed" {
		t.Fatalf("expected timeout with correlation id, got %+v", result)
	}
}

func TestNewModuleRejectsBadConfiguration(t *testing.T) {
	if _, _, err := ballotengine.NewInMemoryModule("carrier-pigeon", nil, 3, nil); !errors.Is(err, domainerrors.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if _, _, err := ballotengine.NewInMemoryModule(ballotengine.BackendBroker, nil, 3, nil); !errors.Is(err, domainerrors.ErrUnknownBackend) {
		t.Fatalf("expected broker backend without broker to fail, got %v", err)
	}
	if _, _, err := ballotengine.NewInMemoryModule(ballotengine.BackendDirect, nil, 0, nil); !errors.Is(err, domainerrors.ErrInvalidVoteLimit) {
		t.Fatalf("expected ErrInvalidVoteLimit, got %v", err)
	}
}

type idFunc func() string

func (f idFunc) NewID(context.Context) (string, error) { return f(), nil }

func TestInMemoryModuleReturnsBackingStore(t *testing.T) {
	module, store, err := ballotengine.NewInMemoryModule(ballotengine.BackendDirect, nil, 3, nil)
	if err != nil {
		t.Fatalf("build module failed: %v", err)
	}
	seed(t, module)
	if _, err := module.Dispatcher.CastVote(context.Background(), "v@x.com", "c@x.com"); err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	ballots, err := store.ListBallots(context.Background())
	if err != nil {
		t.Fatalf("list ballots failed: %v", err)
	}
	if len(ballots) != 1 {
		t.Fatalf("expected the returned store to hold the ballot, got %d", len(ballots))
	}
}
