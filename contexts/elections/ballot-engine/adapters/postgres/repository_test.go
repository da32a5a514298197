package postgresadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"votingapp/contexts/elections/ballot-engine/application/commands"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestPgErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		unique    bool
		retryable bool
	}{
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, unique: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, retryable: true},
		{name: "deadlock", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"}), retryable: true},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}},
		{name: "plain error", err: sql.ErrConnDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.unique {
				t.Fatalf("isUniqueViolation = %v, want %v", got, tc.unique)
			}
			if got := isRetryableConflict(tc.err); got != tc.retryable {
				t.Fatalf("isRetryableConflict = %v, want %v", got, tc.retryable)
			}
		})
	}
}

// TestRepositoryAgainstPostgres runs only when BALLOT_TEST_POSTGRES_DSN
// points at a disposable database.
func TestRepositoryAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("BALLOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BALLOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}
	repo := NewRepository(db, nil)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("TRUNCATE ballots, user_roles, users")
	})

	if _, err := repo.RegisterUser(ctx, "pg-voter@x.com", entities.RoleVoter); err != nil {
		t.Fatalf("register voter failed: %v", err)
	}
	if _, err := repo.RegisterUser(ctx, "pg-candidate@x.com", entities.RoleCandidate); err != nil {
		t.Fatalf("register candidate failed: %v", err)
	}
	votes := commands.VoteService{Engine: commands.Engine{
		Store:     repo,
		Clock:     SystemClock{},
		IDGen:     UUIDGenerator{},
		VoteLimit: 3,
	}}

	result, err := votes.CastVote(ctx, "pg-voter@x.com", "pg-candidate@x.com")
	if err != nil || !result.Success {
		t.Fatalf("cast: result=%+v err=%v", result, err)
	}
	result, err = votes.CastVote(ctx, "pg-voter@x.com", "pg-candidate@x.com")
	if err != nil || result.Failure != entities.FailureDuplicateVote {
		t.Fatalf("expected duplicate_vote, got %+v err=%v", result, err)
	}
	candidate, found, err := repo.FindUserByEmail(ctx, "pg-candidate@x.com")
	if err != nil || !found || candidate.VoteCount != 1 {
		t.Fatalf("expected candidate count 1, got %+v found=%v err=%v", candidate, found, err)
	}
	if _, err := repo.RegisterUser(ctx, "pg-candidate@x.com", entities.RoleVoter); !errors.Is(err, domainerrors.ErrRoleConflict) {
		t.Fatalf("expected ErrRoleConflict, got %v", err)
	}

	// Serializable transactions with conflict retry keep concurrent casts
	// inside the limit without explicit row locks.
	for i := 0; i < 3; i++ {
		if _, err := repo.RegisterUser(ctx, fmt.Sprintf("pg-c%d@x.com", i), entities.RoleCandidate); err != nil {
			t.Fatalf("register candidate %d failed: %v", i, err)
		}
	}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := votes.CastVote(ctx, "pg-voter@x.com", fmt.Sprintf("pg-c%d@x.com", i))
			if err != nil {
				t.Errorf("concurrent cast %d failed: %v", i, err)
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
	if successes != 2 {
		t.Fatalf("expected 2 successful casts up to the limit, got %d", successes)
	}
	voter, _, err := repo.FindUserByEmail(ctx, "pg-voter@x.com")
	if err != nil || voter.VoteCount != 3 {
		t.Fatalf("expected voter count 3, got %+v err=%v", voter, err)
	}
}
