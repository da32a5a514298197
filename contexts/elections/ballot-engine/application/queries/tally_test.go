package queries_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"votingapp/contexts/elections/ballot-engine/adapters/memory"
	"votingapp/contexts/elections/ballot-engine/application/commands"
	"votingapp/contexts/elections/ballot-engine/application/queries"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
)

const testLimit = 2

func seedElection(t *testing.T) (*memory.Store, queries.TallyUseCase) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	for _, email := range []string{"v1@x.com", "v2@x.com", "v3@x.com"} {
		if _, err := store.RegisterUser(ctx, email, entities.RoleVoter); err != nil {
			t.Fatalf("register voter failed: %v", err)
		}
	}
	for _, email := range []string{"alice@x.com", "bob@x.com", "carol@x.com"} {
		if _, err := store.RegisterUser(ctx, email, entities.RoleCandidate); err != nil {
			t.Fatalf("register candidate failed: %v", err)
		}
	}

	engine := commands.Engine{Store: store, Clock: store, IDGen: store, VoteLimit: testLimit}
	for _, pair := range [][2]string{
		{"v1@x.com", "bob@x.com"},
		{"v1@x.com", "alice@x.com"},
		{"v2@x.com", "bob@x.com"},
	} {
		result, err := engine.CastVote(ctx, sql.LevelSerializable, pair[0], pair[1])
		if err != nil || !result.Success {
			t.Fatalf("cast %v: result=%+v err=%v", pair, result, err)
		}
	}
	return store, queries.TallyUseCase{Reader: store, VoteLimit: testLimit}
}

func TestCandidatesRankedByVotesThenEmail(t *testing.T) {
	_, tally := seedElection(t)

	board, err := tally.Candidates(context.Background(), "")
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	want := []struct {
		email string
		votes int
	}{{"bob@x.com", 2}, {"alice@x.com", 1}, {"carol@x.com", 0}}
	if len(board.Candidates) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(board.Candidates))
	}
	for i, w := range want {
		if board.Candidates[i].Email != w.email || board.Candidates[i].Votes != w.votes {
			t.Fatalf("position %d: expected %s/%d, got %+v", i, w.email, w.votes, board.Candidates[i])
		}
	}
	if board.TotalVotes != 3 {
		t.Fatalf("expected 3 total votes, got %d", board.TotalVotes)
	}
	if board.ViewerRemaining != nil {
		t.Fatalf("expected no viewer remaining without a viewer")
	}
}

func TestCandidatesReportsViewerRemaining(t *testing.T) {
	_, tally := seedElection(t)

	board, err := tally.Candidates(context.Background(), "V2@x.com")
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if board.ViewerRemaining == nil || *board.ViewerRemaining != 1 {
		t.Fatalf("expected viewer remaining 1, got %v", board.ViewerRemaining)
	}

	board, err = tally.Candidates(context.Background(), "alice@x.com")
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if board.ViewerRemaining != nil {
		t.Fatalf("expected candidate viewer to get no remaining count")
	}
}

func TestVoterBallotsAndRemaining(t *testing.T) {
	_, tally := seedElection(t)

	ballots, err := tally.VoterBallots(context.Background(), "v1@x.com")
	if err != nil {
		t.Fatalf("voter ballots failed: %v", err)
	}
	if len(ballots.CandidateEmails) != 2 || ballots.CandidateEmails[0] != "alice@x.com" || ballots.CandidateEmails[1] != "bob@x.com" {
		t.Fatalf("unexpected candidate emails %v", ballots.CandidateEmails)
	}
	if ballots.Remaining != 0 || ballots.Max != testLimit {
		t.Fatalf("expected remaining 0 of %d, got %+v", testLimit, ballots)
	}

	if _, err := tally.VoterBallots(context.Background(), "ghost@x.com"); !errors.Is(err, domainerrors.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	budget, err := tally.Remaining(context.Background())
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if budget.Total != 6 || budget.Cast != 3 || budget.Remaining != 3 {
		t.Fatalf("unexpected budget %+v", budget)
	}

	voters, err := tally.Voters(context.Background())
	if err != nil || voters != 3 {
		t.Fatalf("expected 3 voters, got %d err=%v", voters, err)
	}
}

func TestCandidateVotes(t *testing.T) {
	_, tally := seedElection(t)

	standing, err := tally.CandidateVotes(context.Background(), "bob@x.com")
	if err != nil {
		t.Fatalf("candidate votes failed: %v", err)
	}
	if standing.Votes != 2 {
		t.Fatalf("expected 2 votes, got %d", standing.Votes)
	}
	if _, err := tally.CandidateVotes(context.Background(), "ghost@x.com"); !errors.Is(err, domainerrors.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestFinalCountRecountsFromBallots(t *testing.T) {
	store, tally := seedElection(t)
	corruptCounter(t, store, "bob@x.com", 9)

	count, err := tally.FinalCount(context.Background())
	if err != nil {
		t.Fatalf("final count failed: %v", err)
	}
	if count.Candidates[0].Email != "bob@x.com" || count.Candidates[0].Votes != 2 {
		t.Fatalf("expected bob recounted to 2, got %+v", count.Candidates[0])
	}
	if count.CompletedVoters != 1 || count.RemainingVoters != 2 || count.TotalVoters != 3 {
		t.Fatalf("unexpected voter split %+v", count)
	}
}

func TestAuditReportsDrift(t *testing.T) {
	store, tally := seedElection(t)

	drifts, err := tally.Audit(context.Background())
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("expected consistent counters, got %+v", drifts)
	}

	corruptCounter(t, store, "bob@x.com", 9)
	drifts, err = tally.Audit(context.Background())
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift, got %+v", drifts)
	}
	if drifts[0].Email != "bob@x.com" || drifts[0].Cached != 9 || drifts[0].Actual != 2 || drifts[0].Role != entities.RoleCandidate {
		t.Fatalf("unexpected drift %+v", drifts[0])
	}
}

func corruptCounter(t *testing.T, store *memory.Store, email string, count int) {
	t.Helper()
	err := store.WithinTx(context.Background(), sql.LevelSerializable, func(ctx context.Context, tx ports.BallotTx) error {
		user, found, err := tx.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrUserNotFound
		}
		return tx.SetVoteCount(ctx, user.UserID, count)
	})
	if err != nil {
		t.Fatalf("corrupt counter failed: %v", err)
	}
}
