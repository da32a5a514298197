package postgresadapter

import (
	"strings"
	"time"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
)

type userModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	Email     string `gorm:"column:email;uniqueIndex;not null"`
	VoteCount int    `gorm:"column:vote_count;not null;default:0"`
}

func (userModel) TableName() string {
	return "users"
}

func (m userModel) toEntity() entities.User {
	return entities.User{
		UserID:    m.ID,
		Email:     m.Email,
		VoteCount: m.VoteCount,
	}
}

type userRoleModel struct {
	UserID string `gorm:"column:user_id;primaryKey"`
	Role   string `gorm:"column:role;primaryKey"`
}

func (userRoleModel) TableName() string {
	return "user_roles"
}

type ballotModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	VoterID     string    `gorm:"column:voter_id;not null;uniqueIndex:ux_ballots_voter_candidate"`
	CandidateID string    `gorm:"column:candidate_id;not null;uniqueIndex:ux_ballots_voter_candidate;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (ballotModel) TableName() string {
	return "ballots"
}

func ballotModelFromEntity(ballot entities.Ballot) ballotModel {
	return ballotModel{
		ID:          strings.TrimSpace(ballot.BallotID),
		VoterID:     strings.TrimSpace(ballot.VoterID),
		CandidateID: strings.TrimSpace(ballot.CandidateID),
		CreatedAt:   ballot.CreatedAt.UTC(),
	}
}

func (m ballotModel) toEntity() entities.Ballot {
	return entities.Ballot{
		BallotID:    m.ID,
		VoterID:     m.VoterID,
		CandidateID: m.CandidateID,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}
