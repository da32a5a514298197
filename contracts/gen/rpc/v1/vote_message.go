package v1

// VoteMessage is the request body published to the vote queue.
// Field names are part of the wire contract and must stay backward compatible.
type VoteMessage struct {
	VoterEmail     string `json:"VoterEmail"`
	CandidateEmail string `json:"CandidateEmail,omitempty"`
	Action         string `json:"Action"`
	CorrelationID  string `json:"CorrelationId"`
}

// VoteReply is published to the caller's reply queue once per request.
// Reason carries the machine-readable failure kind and is empty on success.
type VoteReply struct {
	CorrelationID string `json:"CorrelationId"`
	Status        string `json:"Status"`
	Message       string `json:"Message"`
	Reason        string `json:"Reason,omitempty"`
}

const (
	ActionAdd               = "Add"
	ActionRemove            = "Remove"
	ActionSwitchToCandidate = "SwitchToCandidate"
	ActionSwitchToVoter     = "SwitchToVoter"
)

const (
	StatusSuccess   = "Success"
	StatusFailed    = "Failed"
	StatusUnhandled = "Unhandled"
)

// ReasonUnavailable marks a reply produced because the worker could not reach
// its store. Callers treat it as a transient error, not a business outcome.
const ReasonUnavailable = "unavailable"

const ContentTypeJSON = "application/json"
