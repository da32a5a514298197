package sqliteadapter

import (
	"context"
	"strings"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
)

type storeTx struct {
	q     querier
	store *Store
}

var _ ports.BallotTx = (*storeTx)(nil)

func (t *storeTx) FindUserByEmail(ctx context.Context, email string) (entities.User, bool, error) {
	user, found, err := findUser(ctx, t.q, "email = ?", normalizeEmail(email))
	if err != nil {
		return entities.User{}, false, t.store.logError("ballot_sqlite_find_user_failed", err)
	}
	return user, found, nil
}

func (t *storeTx) HasRole(ctx context.Context, userID string, role entities.Role) (bool, error) {
	return t.exists(ctx, "ballot_sqlite_has_role_failed",
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = ? AND role = ?)`,
		userID, string(role),
	)
}

func (t *storeTx) AddRole(ctx context.Context, userID string, role entities.Role) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		userID, string(role),
	); err != nil {
		return t.store.logError("ballot_sqlite_add_role_failed", err,
			"user_id", userID,
			"role", string(role),
		)
	}
	return nil
}

func (t *storeTx) RemoveRole(ctx context.Context, userID string, role entities.Role) error {
	if _, err := t.q.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = ? AND role = ?`,
		userID, string(role),
	); err != nil {
		return t.store.logError("ballot_sqlite_remove_role_failed", err,
			"user_id", userID,
			"role", string(role),
		)
	}
	return nil
}

func (t *storeTx) ListBallotsByVoter(ctx context.Context, voterID string) ([]entities.Ballot, error) {
	items, err := listBallots(ctx, t.q, "voter_id = ?", strings.TrimSpace(voterID))
	if err != nil {
		return nil, t.store.logError("ballot_sqlite_list_ballots_failed", err, "voter_id", voterID)
	}
	return items, nil
}

func (t *storeTx) FindBallot(ctx context.Context, voterID string, candidateID string) (entities.Ballot, bool, error) {
	items, err := listBallots(ctx, t.q, "voter_id = ? AND candidate_id = ?", voterID, candidateID)
	if err != nil {
		return entities.Ballot{}, false, t.store.logError("ballot_sqlite_find_ballot_failed", err,
			"voter_id", voterID,
			"candidate_id", candidateID,
		)
	}
	if len(items) == 0 {
		return entities.Ballot{}, false, nil
	}
	return items[0], true, nil
}

func (t *storeTx) HasBallotsFromVoter(ctx context.Context, voterID string) (bool, error) {
	return t.exists(ctx, "ballot_sqlite_count_ballots_failed",
		`SELECT EXISTS (SELECT 1 FROM ballots WHERE voter_id = ?)`, voterID)
}

func (t *storeTx) HasBallotsForCandidate(ctx context.Context, candidateID string) (bool, error) {
	return t.exists(ctx, "ballot_sqlite_count_ballots_failed",
		`SELECT EXISTS (SELECT 1 FROM ballots WHERE candidate_id = ?)`, candidateID)
}

func (t *storeTx) InsertBallot(ctx context.Context, ballot entities.Ballot) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO ballots (id, voter_id, candidate_id, created_at) VALUES (?, ?, ?, ?)`,
		ballot.BallotID, ballot.VoterID, ballot.CandidateID, toMillis(ballot.CreatedAt),
	); err != nil {
		if isConstraintError(err) {
			return domainerrors.ErrDuplicateBallot
		}
		return t.store.logError("ballot_sqlite_insert_ballot_failed", err,
			"ballot_id", ballot.BallotID,
			"voter_id", ballot.VoterID,
			"candidate_id", ballot.CandidateID,
		)
	}
	return nil
}

func (t *storeTx) DeleteBallot(ctx context.Context, ballotID string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM ballots WHERE id = ?`, ballotID)
	if err != nil {
		return t.store.logError("ballot_sqlite_delete_ballot_failed", err, "ballot_id", ballotID)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domainerrors.ErrBallotNotFound
	}
	return nil
}

func (t *storeTx) AdjustVoteCount(ctx context.Context, userID string, delta int) error {
	return t.updateCounter(ctx, userID,
		`UPDATE users SET vote_count = vote_count + ? WHERE id = ?`, delta)
}

func (t *storeTx) SetVoteCount(ctx context.Context, userID string, count int) error {
	return t.updateCounter(ctx, userID,
		`UPDATE users SET vote_count = ? WHERE id = ?`, count)
}

func (t *storeTx) updateCounter(ctx context.Context, userID string, statement string, value int) error {
	result, err := t.q.ExecContext(ctx, statement, value, userID)
	if err != nil {
		return t.store.logError("ballot_sqlite_update_vote_count_failed", err, "user_id", userID)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domainerrors.ErrUserNotFound
	}
	return nil
}

func (t *storeTx) exists(ctx context.Context, event string, query string, args ...any) (bool, error) {
	var found bool
	if err := t.q.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, t.store.logError(event, err)
	}
	return found, nil
}
