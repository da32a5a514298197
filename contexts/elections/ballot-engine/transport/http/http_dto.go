package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type VoteRequest struct {
	CandidateEmail string `json:"candidate_email"`
}

type CandidateCountRequest struct {
	Email string `json:"email"`
}

// OperationResponse mirrors one dispatched operation. Reason is empty when
// Success is true.
type OperationResponse struct {
	Success       bool   `json:"success"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type CandidateItem struct {
	Email string `json:"email"`
	Votes int    `json:"votes"`
}

type CandidatesResponse struct {
	Candidates         []CandidateItem `json:"candidates"`
	TotalVotes         int             `json:"total_votes"`
	RemainingUserVotes *int            `json:"remaining_user_votes,omitempty"`
}

type VoterBallotsResponse struct {
	Votes     []string `json:"votes"`
	Remaining int      `json:"remaining"`
	Max       int      `json:"max"`
}

type RemainingResponse struct {
	Total     int `json:"total"`
	Cast      int `json:"cast"`
	Remaining int `json:"remaining"`
}

type VotersResponse struct {
	Voters int `json:"voters"`
}

type CandidateCountResponse struct {
	Email string `json:"email"`
	Votes int    `json:"votes"`
}

type FinalCountResponse struct {
	Candidates      []CandidateItem `json:"candidates"`
	CompletedVoters int             `json:"completed_voters"`
	RemainingVoters int             `json:"remaining_voters"`
	TotalVoters     int             `json:"total_voters"`
}

type AuditItem struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	Cached int    `json:"cached"`
	Actual int    `json:"actual"`
}

type AuditResponse struct {
	Consistent bool        `json:"consistent"`
	Drifts     []AuditItem `json:"drifts"`
}
