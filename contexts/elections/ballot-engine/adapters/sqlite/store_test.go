package sqliteadapter_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqliteadapter "votingapp/contexts/elections/ballot-engine/adapters/sqlite"
	"votingapp/contexts/elections/ballot-engine/application/commands"
	"votingapp/contexts/elections/ballot-engine/application/queries"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
	"votingapp/internal/platform/db"
)

func newStore(t *testing.T) *sqliteadapter.Store {
	t.Helper()
	sq, err := db.OpenSQLite(filepath.Join(t.TempDir(), "votes.db"))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	store := sqliteadapter.NewStore(sq.DB, nil)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
	return store
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type counterIDs struct {
	mu   sync.Mutex
	next int
}

func (c *counterIDs) NewID(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return fmt.Sprintf("ballot-%03d", c.next), nil
}

func newEngine(store *sqliteadapter.Store, limit int) commands.Engine {
	return commands.Engine{
		Store:     store,
		Clock:     fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		IDGen:     &counterIDs{},
		VoteLimit: limit,
	}
}

func mustRegister(t *testing.T, store *sqliteadapter.Store, email string, role entities.Role) entities.User {
	t.Helper()
	user, err := store.RegisterUser(context.Background(), email, role)
	if err != nil {
		t.Fatalf("register %s failed: %v", email, err)
	}
	return user
}

func TestSQLiteRegisterUserIsIdempotent(t *testing.T) {
	store := newStore(t)
	first := mustRegister(t, store, "V@x.com", entities.RoleVoter)
	second := mustRegister(t, store, "v@x.com", entities.RoleVoter)
	if first.UserID != second.UserID {
		t.Fatalf("expected same user id, got %s and %s", first.UserID, second.UserID)
	}
	voters, err := store.ListUsersInRole(context.Background(), entities.RoleVoter)
	if err != nil {
		t.Fatalf("list voters failed: %v", err)
	}
	if len(voters) != 1 || voters[0].Email != "v@x.com" {
		t.Fatalf("expected one normalized voter, got %+v", voters)
	}
}

func TestSQLiteRegisterUserRejectsSecondRole(t *testing.T) {
	store := newStore(t)
	mustRegister(t, store, "v@x.com", entities.RoleVoter)

	if _, err := store.RegisterUser(context.Background(), "v@x.com", entities.RoleCandidate); !errors.Is(err, domainerrors.ErrRoleConflict) {
		t.Fatalf("expected ErrRoleConflict, got %v", err)
	}
	candidates, err := store.ListUsersInRole(context.Background(), entities.RoleCandidate)
	if err != nil {
		t.Fatalf("list candidates failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", candidates)
	}
}

func TestSQLiteCastRetractKeepsCountersConsistent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	mustRegister(t, store, "v@x.com", entities.RoleVoter)
	mustRegister(t, store, "c1@x.com", entities.RoleCandidate)
	mustRegister(t, store, "c2@x.com", entities.RoleCandidate)
	votes := commands.VoteService{Engine: newEngine(store, 3)}

	for _, candidate := range []string{"c1@x.com", "c2@x.com"} {
		result, err := votes.CastVote(ctx, "v@x.com", candidate)
		if err != nil || !result.Success {
			t.Fatalf("cast %s: result=%+v err=%v", candidate, result, err)
		}
	}
	result, err := votes.CastVote(ctx, "v@x.com", "c1@x.com")
	if err != nil || result.Failure != entities.FailureDuplicateVote {
		t.Fatalf("expected duplicate_vote, got %+v err=%v", result, err)
	}
	result, err = votes.RetractVote(ctx, "v@x.com", "c2@x.com")
	if err != nil || !result.Success {
		t.Fatalf("retract: result=%+v err=%v", result, err)
	}

	voter, _, _ := store.FindUserByEmail(ctx, "v@x.com")
	if voter.VoteCount != 1 {
		t.Fatalf("expected voter count 1, got %d", voter.VoteCount)
	}
	ballots, err := store.ListBallotsByVoter(ctx, voter.UserID)
	if err != nil {
		t.Fatalf("list ballots failed: %v", err)
	}
	if len(ballots) != 1 || ballots[0].BallotID != "ballot-001" {
		t.Fatalf("expected only the first ballot to remain, got %+v", ballots)
	}
	if !ballots[0].CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected created_at to round trip, got %s", ballots[0].CreatedAt)
	}

	tally := queries.TallyUseCase{Reader: store, VoteLimit: 3}
	drifts, err := tally.Audit(ctx)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("expected consistent counters, got %+v", drifts)
	}
}

func TestSQLiteRejectedOperationRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	mustRegister(t, store, "c@x.com", entities.RoleCandidate)
	engine := newEngine(store, 3)

	result, err := engine.SwitchToVoter(ctx, sql.LevelSerializable, "c@x.com")
	if err != nil || !result.Success {
		t.Fatalf("switch to voter: result=%+v err=%v", result, err)
	}
	result, err = engine.CastVote(ctx, sql.LevelSerializable, "c@x.com", "c@x.com")
	if err != nil || result.Failure != entities.FailureNotACandidate {
		t.Fatalf("expected not_a_candidate, got %+v err=%v", result, err)
	}
	ballots, _ := store.ListBallots(ctx)
	if len(ballots) != 0 {
		t.Fatalf("expected no ballots, got %d", len(ballots))
	}
}

func TestSQLiteUniqueBallotConstraint(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	voter := mustRegister(t, store, "v@x.com", entities.RoleVoter)
	candidate := mustRegister(t, store, "c@x.com", entities.RoleCandidate)

	insert := func(id string) error {
		return store.WithinTx(ctx, sql.LevelSerializable, func(ctx context.Context, tx ports.BallotTx) error {
			return tx.InsertBallot(ctx, entities.Ballot{
				BallotID:    id,
				VoterID:     voter.UserID,
				CandidateID: candidate.UserID,
				CreatedAt:   time.Now(),
			})
		})
	}
	if err := insert("ballot-a"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := insert("ballot-b"); !errors.Is(err, domainerrors.ErrDuplicateBallot) {
		t.Fatalf("expected ErrDuplicateBallot, got %v", err)
	}
}

func TestSQLiteConcurrentCastsRespectLimit(t *testing.T) {
	const limit = 3
	ctx := context.Background()
	store := newStore(t)
	mustRegister(t, store, "v@x.com", entities.RoleVoter)
	for i := 0; i <= limit; i++ {
		mustRegister(t, store, fmt.Sprintf("c%d@x.com", i), entities.RoleCandidate)
	}
	votes := commands.VoteService{Engine: newEngine(store, limit)}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i <= limit; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := votes.CastVote(ctx, "v@x.com", fmt.Sprintf("c%d@x.com", i))
			if err != nil {
				t.Errorf("cast %d failed: %v", i, err)
				return
			}
			if result.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if successes != limit {
		t.Fatalf("expected %d successful casts, got %d", limit, successes)
	}
	ballots, _ := store.ListBallots(ctx)
	if len(ballots) != limit {
		t.Fatalf("expected %d ballots, got %d", limit, len(ballots))
	}
	voter, _, _ := store.FindUserByEmail(ctx, "v@x.com")
	if voter.VoteCount != limit {
		t.Fatalf("expected voter count %d, got %d", limit, voter.VoteCount)
	}
}
