package entities

import "time"

type Role string

const (
	RoleVoter     Role = "Voter"
	RoleCandidate Role = "Candidate"
	RoleAdmin     Role = "Admin"
)

// User is the slice of an identity record the engine reads and mutates.
// VoteCount is ballots cast for voters and ballots received for candidates.
type User struct {
	UserID    string
	Email     string
	VoteCount int
}

// Ballot is an append-only record of one voter backing one candidate.
type Ballot struct {
	BallotID    string
	VoterID     string
	CandidateID string
	CreatedAt   time.Time
}

type Operation string

const (
	OperationCastVote          Operation = "cast_vote"
	OperationRetractVote       Operation = "retract_vote"
	OperationSwitchToCandidate Operation = "switch_to_candidate"
	OperationSwitchToVoter     Operation = "switch_to_voter"
)
