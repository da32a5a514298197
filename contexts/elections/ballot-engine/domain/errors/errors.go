package errors

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid ballot input")
	ErrInvalidVoteLimit    = errors.New("vote limit must be positive")
	ErrUserNotFound        = errors.New("user not found")
	ErrBallotNotFound      = errors.New("ballot not found")
	ErrDuplicateBallot     = errors.New("ballot already exists for voter and candidate")
	ErrTransactionConflict = errors.New("ballot transaction conflict")
	ErrBackendUnavailable  = errors.New("ballot backend unavailable")
	ErrUnknownBackend      = errors.New("unknown dispatch backend")
	ErrRoleConflict        = errors.New("user already holds a different role")
)
