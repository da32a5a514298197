package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"votingapp/contexts/elections/ballot-engine/application/queries"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
	httptransport "votingapp/contexts/elections/ballot-engine/transport/http"
)

type Handler struct {
	Dispatcher ports.Dispatcher
	Tally      queries.TallyUseCase
	Logger     *slog.Logger
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	userEmail string,
	req httptransport.VoteRequest,
) (httptransport.OperationResponse, error) {
	if strings.TrimSpace(req.CandidateEmail) == "" {
		return httptransport.OperationResponse{}, fmt.Errorf("%w: candidate_email is required", domainerrors.ErrInvalidInput)
	}
	result, err := h.Dispatcher.CastVote(ctx, userEmail, req.CandidateEmail)
	if err != nil {
		return httptransport.OperationResponse{}, err
	}
	return mapResult(result), nil
}

func (h Handler) RetractVoteHandler(
	ctx context.Context,
	userEmail string,
	req httptransport.VoteRequest,
) (httptransport.OperationResponse, error) {
	if strings.TrimSpace(req.CandidateEmail) == "" {
		return httptransport.OperationResponse{}, fmt.Errorf("%w: candidate_email is required", domainerrors.ErrInvalidInput)
	}
	result, err := h.Dispatcher.RetractVote(ctx, userEmail, req.CandidateEmail)
	if err != nil {
		return httptransport.OperationResponse{}, err
	}
	return mapResult(result), nil
}

func (h Handler) BecomeCandidateHandler(ctx context.Context, userEmail string) (httptransport.OperationResponse, error) {
	result, err := h.Dispatcher.SwitchToCandidate(ctx, userEmail)
	if err != nil {
		return httptransport.OperationResponse{}, err
	}
	return mapResult(result), nil
}

func (h Handler) BecomeVoterHandler(ctx context.Context, userEmail string) (httptransport.OperationResponse, error) {
	result, err := h.Dispatcher.SwitchToVoter(ctx, userEmail)
	if err != nil {
		return httptransport.OperationResponse{}, err
	}
	return mapResult(result), nil
}

func (h Handler) CandidatesHandler(ctx context.Context, viewerEmail string) (httptransport.CandidatesResponse, error) {
	board, err := h.Tally.Candidates(ctx, viewerEmail)
	if err != nil {
		return httptransport.CandidatesResponse{}, err
	}
	return httptransport.CandidatesResponse{
		Candidates:         mapStandings(board.Candidates),
		TotalVotes:         board.TotalVotes,
		RemainingUserVotes: board.ViewerRemaining,
	}, nil
}

func (h Handler) VoterBallotsHandler(ctx context.Context, voterEmail string) (httptransport.VoterBallotsResponse, error) {
	ballots, err := h.Tally.VoterBallots(ctx, voterEmail)
	if err != nil {
		return httptransport.VoterBallotsResponse{}, err
	}
	votes := ballots.CandidateEmails
	if votes == nil {
		votes = []string{}
	}
	return httptransport.VoterBallotsResponse{
		Votes:     votes,
		Remaining: ballots.Remaining,
		Max:       ballots.Max,
	}, nil
}

func (h Handler) RemainingHandler(ctx context.Context) (httptransport.RemainingResponse, error) {
	budget, err := h.Tally.Remaining(ctx)
	if err != nil {
		return httptransport.RemainingResponse{}, err
	}
	return httptransport.RemainingResponse{
		Total:     budget.Total,
		Cast:      budget.Cast,
		Remaining: budget.Remaining,
	}, nil
}

func (h Handler) VotersHandler(ctx context.Context) (httptransport.VotersResponse, error) {
	voters, err := h.Tally.Voters(ctx)
	if err != nil {
		return httptransport.VotersResponse{}, err
	}
	return httptransport.VotersResponse{Voters: voters}, nil
}

func (h Handler) CandidateCountHandler(
	ctx context.Context,
	req httptransport.CandidateCountRequest,
) (httptransport.CandidateCountResponse, error) {
	if strings.TrimSpace(req.Email) == "" {
		return httptransport.CandidateCountResponse{}, fmt.Errorf("%w: email is required", domainerrors.ErrInvalidInput)
	}
	standing, err := h.Tally.CandidateVotes(ctx, req.Email)
	if err != nil {
		return httptransport.CandidateCountResponse{}, err
	}
	return httptransport.CandidateCountResponse{
		Email: standing.Email,
		Votes: standing.Votes,
	}, nil
}

func (h Handler) FinalCountHandler(ctx context.Context) (httptransport.FinalCountResponse, error) {
	count, err := h.Tally.FinalCount(ctx)
	if err != nil {
		return httptransport.FinalCountResponse{}, err
	}
	return httptransport.FinalCountResponse{
		Candidates:      mapStandings(count.Candidates),
		CompletedVoters: count.CompletedVoters,
		RemainingVoters: count.RemainingVoters,
		TotalVoters:     count.TotalVoters,
	}, nil
}

func (h Handler) AuditHandler(ctx context.Context) (httptransport.AuditResponse, error) {
	drifts, err := h.Tally.Audit(ctx)
	if err != nil {
		return httptransport.AuditResponse{}, err
	}
	items := make([]httptransport.AuditItem, 0, len(drifts))
	for _, drift := range drifts {
		items = append(items, httptransport.AuditItem{
			Email:  drift.Email,
			Role:   string(drift.Role),
			Cached: drift.Cached,
			Actual: drift.Actual,
		})
	}
	if len(items) > 0 {
		h.logger().Warn("vote counters drifted from ballot log",
			"event", "ballot_audit_drift_detected",
			"module", "elections/ballot-engine",
			"layer", "adapter",
			"drift_count", len(items),
		)
	}
	return httptransport.AuditResponse{
		Consistent: len(items) == 0,
		Drifts:     items,
	}, nil
}

func (h Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func mapResult(result entities.Result) httptransport.OperationResponse {
	return httptransport.OperationResponse{
		Success:       result.Success,
		Reason:        string(result.Failure),
		Message:       result.Message,
		CorrelationID: result.CorrelationID,
	}
}

func mapStandings(standings []entities.CandidateStanding) []httptransport.CandidateItem {
	items := make([]httptransport.CandidateItem, 0, len(standings))
	for _, standing := range standings {
		items = append(items, httptransport.CandidateItem{
			Email: standing.Email,
			Votes: standing.Votes,
		})
	}
	return items
}
