package postgresadapter

import (
	"context"
	"time"

	"votingapp/contexts/elections/ballot-engine/ports"

	"github.com/google/uuid"
)

var (
	_ ports.Clock       = SystemClock{}
	_ ports.IDGenerator = UUIDGenerator{}
)

// SystemClock stamps ballots with wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator issues ballot ids and RPC correlation ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
