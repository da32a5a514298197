package commands

import (
	"context"
	"database/sql"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
)

// VoteService casts and retracts ballots synchronously. Every call is one
// serializable transaction; the store retries serialization conflicts and
// surfaces exhausted retries as domainerrors.ErrTransactionConflict.
type VoteService struct {
	Engine Engine
}

// CastVote records one ballot from voterEmail to candidateEmail and bumps both
// cached counters in the same transaction.
func (s VoteService) CastVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error) {
	return s.Engine.CastVote(ctx, sql.LevelSerializable, voterEmail, candidateEmail)
}

// RetractVote removes the ballot and decrements both cached counters.
func (s VoteService) RetractVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error) {
	return s.Engine.RetractVote(ctx, sql.LevelSerializable, voterEmail, candidateEmail)
}
