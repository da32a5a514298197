package postgresadapter

import (
	"context"
	"strings"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// repoTx binds the BallotTx operations to one open gorm transaction.
type repoTx struct {
	db   *gorm.DB
	repo *Repository
}

var _ ports.BallotTx = (*repoTx)(nil)

func (t *repoTx) FindUserByEmail(ctx context.Context, email string) (entities.User, bool, error) {
	return findUserBy(ctx, t.db, t.repo, "email = ?", normalizeEmail(email))
}

func (t *repoTx) HasRole(ctx context.Context, userID string, role entities.Role) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).
		Model(&userRoleModel{}).
		Where("user_id = ? AND role = ?", userID, string(role)).
		Count(&count).
		Error
	if err != nil {
		return false, t.repo.logError("ballot_repo_has_role_failed", err,
			"user_id", userID,
			"role", string(role),
		)
	}
	return count > 0, nil
}

func (t *repoTx) AddRole(ctx context.Context, userID string, role entities.Role) error {
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userRoleModel{UserID: userID, Role: string(role)}).
		Error
	if err != nil {
		return t.repo.logError("ballot_repo_add_role_failed", err,
			"user_id", userID,
			"role", string(role),
		)
	}
	return nil
}

func (t *repoTx) RemoveRole(ctx context.Context, userID string, role entities.Role) error {
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, string(role)).
		Delete(&userRoleModel{}).
		Error
	if err != nil {
		return t.repo.logError("ballot_repo_remove_role_failed", err,
			"user_id", userID,
			"role", string(role),
		)
	}
	return nil
}

func (t *repoTx) ListBallotsByVoter(ctx context.Context, voterID string) ([]entities.Ballot, error) {
	return listBallots(ctx, t.db, t.repo, "voter_id = ?", strings.TrimSpace(voterID))
}

func (t *repoTx) FindBallot(ctx context.Context, voterID string, candidateID string) (entities.Ballot, bool, error) {
	var rows []ballotModel
	err := t.db.WithContext(ctx).
		Where("voter_id = ? AND candidate_id = ?", voterID, candidateID).
		Limit(1).
		Find(&rows).
		Error
	if err != nil {
		return entities.Ballot{}, false, t.repo.logError("ballot_repo_find_ballot_failed", err,
			"voter_id", voterID,
			"candidate_id", candidateID,
		)
	}
	if len(rows) == 0 {
		return entities.Ballot{}, false, nil
	}
	return rows[0].toEntity(), true, nil
}

func (t *repoTx) HasBallotsFromVoter(ctx context.Context, voterID string) (bool, error) {
	return t.hasBallots(ctx, "voter_id = ?", voterID)
}

func (t *repoTx) HasBallotsForCandidate(ctx context.Context, candidateID string) (bool, error) {
	return t.hasBallots(ctx, "candidate_id = ?", candidateID)
}

func (t *repoTx) hasBallots(ctx context.Context, query string, userID string) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).Model(&ballotModel{}).Where(query, userID).Count(&count).Error
	if err != nil {
		return false, t.repo.logError("ballot_repo_count_ballots_failed", err, "user_id", userID)
	}
	return count > 0, nil
}

func (t *repoTx) InsertBallot(ctx context.Context, ballot entities.Ballot) error {
	row := ballotModelFromEntity(ballot)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateBallot
		}
		return t.repo.logError("ballot_repo_insert_ballot_failed", err,
			"ballot_id", row.ID,
			"voter_id", row.VoterID,
			"candidate_id", row.CandidateID,
		)
	}
	return nil
}

func (t *repoTx) DeleteBallot(ctx context.Context, ballotID string) error {
	result := t.db.WithContext(ctx).Where("id = ?", ballotID).Delete(&ballotModel{})
	if result.Error != nil {
		return t.repo.logError("ballot_repo_delete_ballot_failed", result.Error, "ballot_id", ballotID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrBallotNotFound
	}
	return nil
}

func (t *repoTx) AdjustVoteCount(ctx context.Context, userID string, delta int) error {
	result := t.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", userID).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", delta))
	return t.checkCounterUpdate(result, userID)
}

func (t *repoTx) SetVoteCount(ctx context.Context, userID string, count int) error {
	result := t.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", userID).
		UpdateColumn("vote_count", count)
	return t.checkCounterUpdate(result, userID)
}

func (t *repoTx) checkCounterUpdate(result *gorm.DB, userID string) error {
	if result.Error != nil {
		return t.repo.logError("ballot_repo_update_vote_count_failed", result.Error, "user_id", userID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrUserNotFound
	}
	return nil
}
