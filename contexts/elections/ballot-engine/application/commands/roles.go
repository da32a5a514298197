package commands

import (
	"context"
	"database/sql"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
)

// RoleService moves users between the Voter and Candidate roles. A voter with
// outgoing ballots cannot become a candidate and a candidate with incoming
// ballots cannot become a voter.
type RoleService struct {
	Engine Engine
}

func (s RoleService) SwitchToCandidate(ctx context.Context, email string) (entities.Result, error) {
	return s.Engine.SwitchToCandidate(ctx, sql.LevelSerializable, email)
}

func (s RoleService) SwitchToVoter(ctx context.Context, email string) (entities.Result, error) {
	return s.Engine.SwitchToVoter(ctx, sql.LevelSerializable, email)
}
