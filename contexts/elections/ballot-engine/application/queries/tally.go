package queries

import (
	"context"
	"sort"
	"strings"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
)

// TallyUseCase serves the read side. Standings come from the cached counters
// except FinalCount and Audit, which recount the ballot log.
type TallyUseCase struct {
	Reader    ports.TallyReader
	VoteLimit int
}

func (uc TallyUseCase) Candidates(ctx context.Context, viewerEmail string) (entities.CandidateBoard, error) {
	candidates, err := uc.Reader.ListUsersInRole(ctx, entities.RoleCandidate)
	if err != nil {
		return entities.CandidateBoard{}, err
	}
	ballots, err := uc.Reader.ListBallots(ctx)
	if err != nil {
		return entities.CandidateBoard{}, err
	}
	board := entities.CandidateBoard{
		Candidates: standingsFromCache(candidates),
		TotalVotes: len(ballots),
	}

	viewerEmail = normalizeEmail(viewerEmail)
	if viewerEmail == "" {
		return board, nil
	}
	voters, err := uc.Reader.ListUsersInRole(ctx, entities.RoleVoter)
	if err != nil {
		return entities.CandidateBoard{}, err
	}
	for _, voter := range voters {
		if voter.Email == viewerEmail {
			remaining := uc.VoteLimit - voter.VoteCount
			board.ViewerRemaining = &remaining
			break
		}
	}
	return board, nil
}

func (uc TallyUseCase) VoterBallots(ctx context.Context, voterEmail string) (entities.VoterBallots, error) {
	voter, found, err := uc.Reader.FindUserByEmail(ctx, normalizeEmail(voterEmail))
	if err != nil {
		return entities.VoterBallots{}, err
	}
	if !found {
		return entities.VoterBallots{}, domainerrors.ErrUserNotFound
	}
	ballots, err := uc.Reader.ListBallotsByVoter(ctx, voter.UserID)
	if err != nil {
		return entities.VoterBallots{}, err
	}
	emails := make([]string, 0, len(ballots))
	for _, ballot := range ballots {
		candidate, found, err := uc.Reader.FindUserByID(ctx, ballot.CandidateID)
		if err != nil {
			return entities.VoterBallots{}, err
		}
		if found {
			emails = append(emails, candidate.Email)
		}
	}
	sort.Strings(emails)
	return entities.VoterBallots{
		VoterEmail:      voter.Email,
		CandidateEmails: emails,
		Remaining:       uc.VoteLimit - voter.VoteCount,
		Max:             uc.VoteLimit,
	}, nil
}

func (uc TallyUseCase) Remaining(ctx context.Context) (entities.VoteBudget, error) {
	voters, err := uc.Reader.ListUsersInRole(ctx, entities.RoleVoter)
	if err != nil {
		return entities.VoteBudget{}, err
	}
	budget := entities.VoteBudget{Total: len(voters) * uc.VoteLimit}
	for _, voter := range voters {
		budget.Cast += voter.VoteCount
	}
	budget.Remaining = budget.Total - budget.Cast
	return budget, nil
}

func (uc TallyUseCase) Voters(ctx context.Context) (int, error) {
	voters, err := uc.Reader.ListUsersInRole(ctx, entities.RoleVoter)
	if err != nil {
		return 0, err
	}
	return len(voters), nil
}

func (uc TallyUseCase) CandidateVotes(ctx context.Context, email string) (entities.CandidateStanding, error) {
	user, found, err := uc.Reader.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return entities.CandidateStanding{}, err
	}
	if !found {
		return entities.CandidateStanding{}, domainerrors.ErrUserNotFound
	}
	return entities.CandidateStanding{
		UserID: user.UserID,
		Email:  user.Email,
		Votes:  user.VoteCount,
	}, nil
}

// FinalCount recounts every candidate from ballot rows rather than trusting
// the cached counters.
func (uc TallyUseCase) FinalCount(ctx context.Context) (entities.FinalCount, error) {
	candidates, err := uc.Reader.ListUsersInRole(ctx, entities.RoleCandidate)
	if err != nil {
		return entities.FinalCount{}, err
	}
	voters, err := uc.Reader.ListUsersInRole(ctx, entities.RoleVoter)
	if err != nil {
		return entities.FinalCount{}, err
	}
	ballots, err := uc.Reader.ListBallots(ctx)
	if err != nil {
		return entities.FinalCount{}, err
	}
	received, cast := countBallots(ballots)

	standings := make([]entities.CandidateStanding, 0, len(candidates))
	for _, candidate := range candidates {
		standings = append(standings, entities.CandidateStanding{
			UserID: candidate.UserID,
			Email:  candidate.Email,
			Votes:  received[candidate.UserID],
		})
	}
	rank(standings)

	completed := 0
	for _, voter := range voters {
		if cast[voter.UserID] == uc.VoteLimit {
			completed++
		}
	}
	return entities.FinalCount{
		Candidates:      standings,
		CompletedVoters: completed,
		RemainingVoters: len(voters) - completed,
		TotalVoters:     len(voters),
	}, nil
}

// Audit lists every voter and candidate whose cached counter differs from
// the number of ballot rows. An empty result means the cache is consistent.
func (uc TallyUseCase) Audit(ctx context.Context) ([]entities.CountDrift, error) {
	ballots, err := uc.Reader.ListBallots(ctx)
	if err != nil {
		return nil, err
	}
	received, cast := countBallots(ballots)

	var drifts []entities.CountDrift
	for _, check := range []struct {
		role   entities.Role
		counts map[string]int
	}{
		{role: entities.RoleVoter, counts: cast},
		{role: entities.RoleCandidate, counts: received},
	} {
		users, err := uc.Reader.ListUsersInRole(ctx, check.role)
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			if actual := check.counts[user.UserID]; actual != user.VoteCount {
				drifts = append(drifts, entities.CountDrift{
					UserID: user.UserID,
					Email:  user.Email,
					Role:   check.role,
					Cached: user.VoteCount,
					Actual: actual,
				})
			}
		}
	}
	sort.Slice(drifts, func(i, j int) bool {
		return drifts[i].Email < drifts[j].Email
	})
	return drifts, nil
}

func standingsFromCache(users []entities.User) []entities.CandidateStanding {
	standings := make([]entities.CandidateStanding, 0, len(users))
	for _, user := range users {
		standings = append(standings, entities.CandidateStanding{
			UserID: user.UserID,
			Email:  user.Email,
			Votes:  user.VoteCount,
		})
	}
	rank(standings)
	return standings
}

func rank(standings []entities.CandidateStanding) {
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Votes == standings[j].Votes {
			return standings[i].Email < standings[j].Email
		}
		return standings[i].Votes > standings[j].Votes
	})
}

func countBallots(ballots []entities.Ballot) (map[string]int, map[string]int) {
	received := make(map[string]int)
	cast := make(map[string]int)
	for _, ballot := range ballots {
		received[ballot.CandidateID]++
		cast[ballot.VoterID]++
	}
	return received, cast
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
