package commands

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "votingapp/contexts/elections/ballot-engine/application"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
)

// errRejected aborts the transaction after a business precondition failed.
// It never leaves this package.
var errRejected = errors.New("ballot operation rejected")

// Engine holds the ballot invariants. The direct services and the queue
// consumer both execute operations through it, each choosing its own
// isolation level, so the two dispatch paths cannot drift apart.
type Engine struct {
	Store     ports.BallotStore
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	VoteLimit int
	Logger    *slog.Logger
}

func (e Engine) CastVote(
	ctx context.Context,
	isolation sql.IsolationLevel,
	voterEmail string,
	candidateEmail string,
) (entities.Result, error) {
	voterEmail = normalizeEmail(voterEmail)
	candidateEmail = normalizeEmail(candidateEmail)
	if e.VoteLimit <= 0 {
		return entities.Result{}, domainerrors.ErrInvalidVoteLimit
	}
	return e.run(ctx, isolation, entities.OperationCastVote, func(ctx context.Context, tx ports.BallotTx) (entities.Result, error) {
		candidate, voter, rejected, err := resolvePair(ctx, tx, voterEmail, candidateEmail)
		if err != nil || rejected.Failure != entities.FailureNone {
			return rejected, err
		}

		ballots, err := tx.ListBallotsByVoter(ctx, voter.UserID)
		if err != nil {
			return entities.Result{}, err
		}
		if len(ballots) >= e.VoteLimit {
			return entities.Rejected(entities.FailureVoteLimitReached), nil
		}
		for _, ballot := range ballots {
			if ballot.CandidateID == candidate.UserID {
				return entities.Rejected(entities.FailureDuplicateVote), nil
			}
		}

		ballotID, err := e.IDGen.NewID(ctx)
		if err != nil {
			return entities.Result{}, err
		}
		if err := tx.InsertBallot(ctx, entities.Ballot{
			BallotID:    ballotID,
			VoterID:     voter.UserID,
			CandidateID: candidate.UserID,
			CreatedAt:   e.now(),
		}); err != nil {
			if errors.Is(err, domainerrors.ErrDuplicateBallot) {
				return entities.Rejected(entities.FailureDuplicateVote), nil
			}
			return entities.Result{}, err
		}
		if err := tx.AdjustVoteCount(ctx, voter.UserID, 1); err != nil {
			return entities.Result{}, err
		}
		if err := tx.AdjustVoteCount(ctx, candidate.UserID, 1); err != nil {
			return entities.Result{}, err
		}
		return entities.Succeeded(entities.MessageVoteAdded), nil
	},
		"voter_email", voterEmail,
		"candidate_email", candidateEmail,
	)
}

func (e Engine) RetractVote(
	ctx context.Context,
	isolation sql.IsolationLevel,
	voterEmail string,
	candidateEmail string,
) (entities.Result, error) {
	voterEmail = normalizeEmail(voterEmail)
	candidateEmail = normalizeEmail(candidateEmail)
	return e.run(ctx, isolation, entities.OperationRetractVote, func(ctx context.Context, tx ports.BallotTx) (entities.Result, error) {
		candidate, voter, rejected, err := resolvePair(ctx, tx, voterEmail, candidateEmail)
		if err != nil || rejected.Failure != entities.FailureNone {
			return rejected, err
		}

		ballot, found, err := tx.FindBallot(ctx, voter.UserID, candidate.UserID)
		if err != nil {
			return entities.Result{}, err
		}
		if !found {
			return entities.Rejected(entities.FailureVoteNotFound), nil
		}
		if err := tx.DeleteBallot(ctx, ballot.BallotID); err != nil {
			if errors.Is(err, domainerrors.ErrBallotNotFound) {
				return entities.Rejected(entities.FailureVoteNotFound), nil
			}
			return entities.Result{}, err
		}
		if err := tx.AdjustVoteCount(ctx, voter.UserID, -1); err != nil {
			return entities.Result{}, err
		}
		if err := tx.AdjustVoteCount(ctx, candidate.UserID, -1); err != nil {
			return entities.Result{}, err
		}
		return entities.Succeeded(entities.MessageVoteRemoved), nil
	},
		"voter_email", voterEmail,
		"candidate_email", candidateEmail,
	)
}

func (e Engine) SwitchToCandidate(ctx context.Context, isolation sql.IsolationLevel, email string) (entities.Result, error) {
	email = normalizeEmail(email)
	return e.run(ctx, isolation, entities.OperationSwitchToCandidate, func(ctx context.Context, tx ports.BallotTx) (entities.Result, error) {
		user, found, err := tx.FindUserByEmail(ctx, email)
		if err != nil {
			return entities.Result{}, err
		}
		if !found {
			return entities.Rejected(entities.FailureUserNotFound), nil
		}
		hasBallots, err := tx.HasBallotsFromVoter(ctx, user.UserID)
		if err != nil {
			return entities.Result{}, err
		}
		if hasBallots {
			return entities.Rejected(entities.FailureHasActiveVotes), nil
		}
		failure, err := swapRole(ctx, tx, user.UserID, entities.RoleVoter, entities.RoleCandidate, entities.FailureNotAVoter)
		if err != nil {
			return entities.Result{}, err
		}
		if failure != entities.FailureNone {
			return entities.Rejected(failure), nil
		}
		return entities.Succeeded(entities.MessageBecameCandidate), nil
	}, "email", email)
}

func (e Engine) SwitchToVoter(ctx context.Context, isolation sql.IsolationLevel, email string) (entities.Result, error) {
	email = normalizeEmail(email)
	return e.run(ctx, isolation, entities.OperationSwitchToVoter, func(ctx context.Context, tx ports.BallotTx) (entities.Result, error) {
		user, found, err := tx.FindUserByEmail(ctx, email)
		if err != nil {
			return entities.Result{}, err
		}
		if !found {
			return entities.Rejected(entities.FailureUserNotFound), nil
		}
		hasBallots, err := tx.HasBallotsForCandidate(ctx, user.UserID)
		if err != nil {
			return entities.Result{}, err
		}
		if hasBallots {
			return entities.Rejected(entities.FailureHasReceivedVotes), nil
		}
		failure, err := swapRole(ctx, tx, user.UserID, entities.RoleCandidate, entities.RoleVoter, entities.FailureNotACandidate)
		if err != nil {
			return entities.Result{}, err
		}
		if failure != entities.FailureNone {
			return entities.Rejected(failure), nil
		}
		return entities.Succeeded(entities.MessageBecameVoter), nil
	}, "email", email)
}

type txStep func(ctx context.Context, tx ports.BallotTx) (entities.Result, error)

func (e Engine) run(
	ctx context.Context,
	isolation sql.IsolationLevel,
	op entities.Operation,
	step txStep,
	attrs ...any,
) (entities.Result, error) {
	logger := application.ResolveLogger(e.Logger)
	var result entities.Result
	err := e.Store.WithinTx(ctx, isolation, func(ctx context.Context, tx ports.BallotTx) error {
		res, err := step(ctx, tx)
		if err != nil {
			return err
		}
		result = res
		if !res.Success {
			return errRejected
		}
		return nil
	})
	switch {
	case errors.Is(err, errRejected):
		logger.Info("ballot operation rejected",
			append([]any{
				"event", "ballot_operation_rejected",
				"module", "elections/ballot-engine",
				"layer", "application",
				"operation", string(op),
				"isolation", isolation.String(),
				"reason", string(result.Failure),
			}, attrs...)...,
		)
		return result, nil
	case err != nil:
		logger.Error("ballot operation failed",
			append([]any{
				"event", "ballot_operation_failed",
				"module", "elections/ballot-engine",
				"layer", "application",
				"operation", string(op),
				"isolation", isolation.String(),
				"error", err.Error(),
			}, attrs...)...,
		)
		return entities.Result{}, err
	}
	logger.Info("ballot operation committed",
		append([]any{
			"event", "ballot_operation_committed",
			"module", "elections/ballot-engine",
			"layer", "application",
			"operation", string(op),
			"isolation", isolation.String(),
		}, attrs...)...,
	)
	return result, nil
}

// resolvePair checks the candidate before the voter so callers see the same
// failure for the same bad input regardless of backend.
func resolvePair(
	ctx context.Context,
	tx ports.BallotTx,
	voterEmail string,
	candidateEmail string,
) (entities.User, entities.User, entities.Result, error) {
	candidate, found, err := tx.FindUserByEmail(ctx, candidateEmail)
	if err != nil {
		return entities.User{}, entities.User{}, entities.Result{}, err
	}
	if !found {
		return entities.User{}, entities.User{}, entities.Rejected(entities.FailureCandidateNotFound), nil
	}
	isCandidate, err := tx.HasRole(ctx, candidate.UserID, entities.RoleCandidate)
	if err != nil {
		return entities.User{}, entities.User{}, entities.Result{}, err
	}
	if !isCandidate {
		return entities.User{}, entities.User{}, entities.Rejected(entities.FailureNotACandidate), nil
	}

	voter, found, err := tx.FindUserByEmail(ctx, voterEmail)
	if err != nil {
		return entities.User{}, entities.User{}, entities.Result{}, err
	}
	if !found {
		return entities.User{}, entities.User{}, entities.Rejected(entities.FailureVoterNotFound), nil
	}
	isVoter, err := tx.HasRole(ctx, voter.UserID, entities.RoleVoter)
	if err != nil {
		return entities.User{}, entities.User{}, entities.Result{}, err
	}
	if !isVoter {
		return entities.User{}, entities.User{}, entities.Rejected(entities.FailureNotAVoter), nil
	}
	return candidate, voter, entities.Result{}, nil
}

// swapRole replaces from with to and resets the cached counter. A user already
// holding to is left untouched so a candidate's received count survives; a
// user that does not hold from, such as an Admin, is rejected with notHeld.
func swapRole(
	ctx context.Context,
	tx ports.BallotTx,
	userID string,
	from entities.Role,
	to entities.Role,
	notHeld entities.Failure,
) (entities.Failure, error) {
	already, err := tx.HasRole(ctx, userID, to)
	if err != nil {
		return entities.FailureNone, err
	}
	if already {
		return entities.FailureNone, nil
	}
	holds, err := tx.HasRole(ctx, userID, from)
	if err != nil {
		return entities.FailureNone, err
	}
	if !holds {
		return notHeld, nil
	}
	if err := tx.RemoveRole(ctx, userID, from); err != nil {
		return entities.FailureNone, err
	}
	if err := tx.AddRole(ctx, userID, to); err != nil {
		return entities.FailureNone, err
	}
	return entities.FailureNone, tx.SetVoteCount(ctx, userID, 0)
}

func (e Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
