package ports

import (
	"context"
	"database/sql"
	"time"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
)

// Dispatcher is the single entry point for state-changing ballot operations.
// Exactly one implementation is bound at startup.
type Dispatcher interface {
	CastVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error)
	RetractVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error)
	SwitchToCandidate(ctx context.Context, email string) (entities.Result, error)
	SwitchToVoter(ctx context.Context, email string) (entities.Result, error)
}

// BallotTx is the view of the store inside one transaction. Identity lookups
// and role mutations share the transaction with ballot writes so they commit
// or roll back together.
type BallotTx interface {
	FindUserByEmail(ctx context.Context, email string) (entities.User, bool, error)
	HasRole(ctx context.Context, userID string, role entities.Role) (bool, error)
	AddRole(ctx context.Context, userID string, role entities.Role) error
	RemoveRole(ctx context.Context, userID string, role entities.Role) error

	ListBallotsByVoter(ctx context.Context, voterID string) ([]entities.Ballot, error)
	FindBallot(ctx context.Context, voterID string, candidateID string) (entities.Ballot, bool, error)
	HasBallotsFromVoter(ctx context.Context, voterID string) (bool, error)
	HasBallotsForCandidate(ctx context.Context, candidateID string) (bool, error)
	InsertBallot(ctx context.Context, ballot entities.Ballot) error
	DeleteBallot(ctx context.Context, ballotID string) error

	AdjustVoteCount(ctx context.Context, userID string, delta int) error
	SetVoteCount(ctx context.Context, userID string, count int) error
}

// BallotStore runs fn inside one transaction at the requested isolation.
// Any error returned by fn rolls the transaction back.
type BallotStore interface {
	WithinTx(
		ctx context.Context,
		isolation sql.IsolationLevel,
		fn func(ctx context.Context, tx BallotTx) error,
	) error
}

// TallyReader serves read-only projections. It never mutates state.
type TallyReader interface {
	FindUserByEmail(ctx context.Context, email string) (entities.User, bool, error)
	FindUserByID(ctx context.Context, userID string) (entities.User, bool, error)
	ListUsersInRole(ctx context.Context, role entities.Role) ([]entities.User, error)
	ListBallots(ctx context.Context) ([]entities.Ballot, error)
	ListBallotsByVoter(ctx context.Context, voterID string) ([]entities.Ballot, error)
}

// UserRegistry provisions identity rows for fixtures and local runs. The
// engine itself never creates users.
type UserRegistry interface {
	RegisterUser(ctx context.Context, email string, role entities.Role) (entities.User, error)
}

type QueueSpec struct {
	// Name may be empty for server-named queues.
	Name       string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
}

type Message struct {
	Body          []byte
	ContentType   string
	CorrelationID string
	ReplyTo       string
	Persistent    bool
}

type Delivery struct {
	Message
	DeliveryTag uint64
}

// BrokerChannel is one logical session with the broker. Deliveries returned by
// Consume must be acknowledged explicitly; the channel closes when the session
// is lost.
type BrokerChannel interface {
	DeclareQueue(ctx context.Context, spec QueueSpec) (string, error)
	Publish(ctx context.Context, queue string, msg Message) error
	Consume(ctx context.Context, queue string, consumer string) (<-chan Delivery, error)
	Ack(ctx context.Context, deliveryTag uint64) error
	Close() error
}

type MessageBroker interface {
	OpenChannel(ctx context.Context) (BrokerChannel, error)
}

// BackOff yields successive waits between reconnect attempts.
type BackOff interface {
	NextBackOff() time.Duration
	Reset()
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
