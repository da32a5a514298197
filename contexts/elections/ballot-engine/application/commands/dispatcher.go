package commands

import (
	"context"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
	"votingapp/contexts/elections/ballot-engine/ports"
)

var _ ports.Dispatcher = DirectDispatcher{}

// DirectDispatcher runs operations in-process against the store.
type DirectDispatcher struct {
	Votes VoteService
	Roles RoleService
}

func NewDirectDispatcher(engine Engine) DirectDispatcher {
	return DirectDispatcher{
		Votes: VoteService{Engine: engine},
		Roles: RoleService{Engine: engine},
	}
}

func (d DirectDispatcher) CastVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error) {
	return d.Votes.CastVote(ctx, voterEmail, candidateEmail)
}

func (d DirectDispatcher) RetractVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error) {
	return d.Votes.RetractVote(ctx, voterEmail, candidateEmail)
}

func (d DirectDispatcher) SwitchToCandidate(ctx context.Context, email string) (entities.Result, error) {
	return d.Roles.SwitchToCandidate(ctx, email)
}

func (d DirectDispatcher) SwitchToVoter(ctx context.Context, email string) (entities.Result, error) {
	return d.Roles.SwitchToVoter(ctx, email)
}
