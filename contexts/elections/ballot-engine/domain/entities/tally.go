package entities

type CandidateStanding struct {
	UserID string
	Email  string
	Votes  int
}

type CandidateBoard struct {
	Candidates []CandidateStanding
	TotalVotes int
	// ViewerRemaining is set only when the viewer is a voter.
	ViewerRemaining *int
}

type VoterBallots struct {
	VoterEmail      string
	CandidateEmails []string
	Remaining       int
	Max             int
}

type VoteBudget struct {
	Total     int
	Cast      int
	Remaining int
}

type FinalCount struct {
	Candidates      []CandidateStanding
	CompletedVoters int
	RemainingVoters int
	TotalVoters     int
}

// CountDrift is a user whose cached VoteCount disagrees with the ballot log.
type CountDrift struct {
	UserID string
	Email  string
	Role   Role
	Cached int
	Actual int
}
