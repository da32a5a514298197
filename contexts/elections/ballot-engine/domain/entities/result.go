package entities

// Failure is the business reason an operation was rejected. The zero value
// means the operation succeeded.
type Failure string

const (
	FailureNone              Failure = ""
	FailureUserNotFound      Failure = "user_not_found"
	FailureVoterNotFound     Failure = "voter_not_found"
	FailureCandidateNotFound Failure = "candidate_not_found"
	FailureNotACandidate     Failure = "not_a_candidate"
	FailureNotAVoter         Failure = "not_a_voter"
	FailureVoteLimitReached  Failure = "vote_limit_reached"
	FailureDuplicateVote     Failure = "duplicate_vote"
	FailureVoteNotFound      Failure = "vote_not_found"
	FailureHasActiveVotes    Failure = "has_active_votes"
	FailureHasReceivedVotes  Failure = "has_received_votes"
	FailureTimeout           Failure = "timeout"
	FailureUnhandled         Failure = "unhandled"
)

var failureMessages = map[Failure]string{
	FailureUserNotFound:      "User not found",
	FailureVoterNotFound:     "Voter not found",
	FailureCandidateNotFound: "Candidate not found",
	FailureNotACandidate:     "User is not a candidate",
	FailureNotAVoter:         "User is not a voter",
	FailureVoteLimitReached:  "Vote limit reached",
	FailureDuplicateVote:     "Already voted for that candidate",
	FailureVoteNotFound:      "Vote not found",
	FailureHasActiveVotes:    "User has active votes. Remove them before attempting to switch to a candidate.",
	FailureHasReceivedVotes:  "User has votes for them",
	FailureTimeout:           "Timeout",
	FailureUnhandled:         "The request could not be handled",
}

// Message returns the human-readable text both backends report for f.
func (f Failure) Message() string {
	if msg, ok := failureMessages[f]; ok {
		return msg
	}
	return string(f)
}

func ParseFailure(raw string) Failure {
	f := Failure(raw)
	if _, ok := failureMessages[f]; ok {
		return f
	}
	return FailureUnhandled
}

const (
	MessageVoteAdded       = "Vote Added"
	MessageVoteRemoved     = "Vote removed"
	MessageBecameCandidate = "User became a Candidate"
	MessageBecameVoter     = "User became a Voter"
)

// Result is the outcome of one state-changing operation. Business rejections
// are carried here; infrastructure failures are returned as errors instead.
type Result struct {
	Success       bool
	Failure       Failure
	Message       string
	CorrelationID string
}

func Succeeded(message string) Result {
	return Result{Success: true, Message: message}
}

func Rejected(failure Failure) Result {
	return Result{Failure: failure, Message: failure.Message()}
}
