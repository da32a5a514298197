package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ballotengine "votingapp/contexts/elections/ballot-engine"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	ballothttp "votingapp/contexts/elections/ballot-engine/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "votingapp/internal/platform/httpserver/docs"
)

const userEmailHeader = "X-User-Email"

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	ballots ballotengine.Module
}

func New(ballots ballotengine.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		ballots: ballots,
	}
	s.registerRoutes()
	return s
}

// Run serves until ctx is cancelled and then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped",
		"event", "http_server_stopped",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/votes", s.handleCastVote)
	s.mux.HandleFunc("DELETE /api/votes", s.handleRetractVote)
	s.mux.HandleFunc("GET /api/votes", s.handleVoterBallots)
	s.mux.HandleFunc("POST /api/roles/candidate", s.handleBecomeCandidate)
	s.mux.HandleFunc("POST /api/roles/voter", s.handleBecomeVoter)

	s.mux.HandleFunc("GET /api/candidates", s.handleCandidates)
	s.mux.HandleFunc("GET /api/remaining", s.handleRemaining)
	s.mux.HandleFunc("GET /api/voters", s.handleVoters)
	s.mux.HandleFunc("POST /api/count", s.handleCandidateCount)
	s.mux.HandleFunc("POST /api/final-count", s.handleFinalCount)
	s.mux.HandleFunc("GET /api/audit", s.handleAudit)
}

// handleCastVote godoc
// @Summary Cast a vote
// @Tags votes
// @Accept json
// @Produce json
// @Param X-User-Email header string true "Voter email"
// @Param request body ballothttp.VoteRequest true "Candidate"
// @Success 200 {object} ballothttp.OperationResponse
// @Failure 409 {object} ballothttp.OperationResponse
// @Router /api/votes [post]
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	userEmail, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ballothttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ballots.Handler.CastVoteHandler(r.Context(), userEmail, req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOperation(w, resp)
}

// handleRetractVote godoc
// @Summary Retract a vote
// @Tags votes
// @Accept json
// @Produce json
// @Param X-User-Email header string true "Voter email"
// @Param request body ballothttp.VoteRequest true "Candidate"
// @Success 200 {object} ballothttp.OperationResponse
// @Failure 404 {object} ballothttp.OperationResponse
// @Router /api/votes [delete]
func (s *Server) handleRetractVote(w http.ResponseWriter, r *http.Request) {
	userEmail, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ballothttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ballots.Handler.RetractVoteHandler(r.Context(), userEmail, req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOperation(w, resp)
}

// handleBecomeCandidate godoc
// @Summary Switch the caller to the Candidate role
// @Tags roles
// @Produce json
// @Param X-User-Email header string true "User email"
// @Success 200 {object} ballothttp.OperationResponse
// @Failure 409 {object} ballothttp.OperationResponse
// @Router /api/roles/candidate [post]
func (s *Server) handleBecomeCandidate(w http.ResponseWriter, r *http.Request) {
	userEmail, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.ballots.Handler.BecomeCandidateHandler(r.Context(), userEmail)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOperation(w, resp)
}

// handleBecomeVoter godoc
// @Summary Switch the caller to the Voter role
// @Tags roles
// @Produce json
// @Param X-User-Email header string true "User email"
// @Success 200 {object} ballothttp.OperationResponse
// @Failure 409 {object} ballothttp.OperationResponse
// @Router /api/roles/voter [post]
func (s *Server) handleBecomeVoter(w http.ResponseWriter, r *http.Request) {
	userEmail, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.ballots.Handler.BecomeVoterHandler(r.Context(), userEmail)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOperation(w, resp)
}

// handleVoterBallots godoc
// @Summary List the caller's ballots
// @Tags votes
// @Produce json
// @Param X-User-Email header string true "Voter email"
// @Success 200 {object} ballothttp.VoterBallotsResponse
// @Failure 404 {object} ballothttp.ErrorResponse
// @Router /api/votes [get]
func (s *Server) handleVoterBallots(w http.ResponseWriter, r *http.Request) {
	userEmail, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := s.ballots.Handler.VoterBallotsHandler(r.Context(), userEmail)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCandidates godoc
// @Summary Rank candidates by votes received
// @Tags tally
// @Produce json
// @Param X-User-Email header string false "Viewer email"
// @Success 200 {object} ballothttp.CandidatesResponse
// @Router /api/candidates [get]
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	// The viewer header is optional here; without it no remaining count is
	// reported.
	viewer := strings.TrimSpace(r.Header.Get(userEmailHeader))
	resp, err := s.ballots.Handler.CandidatesHandler(r.Context(), viewer)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRemaining godoc
// @Summary Remaining vote budget across all voters
// @Tags tally
// @Produce json
// @Success 200 {object} ballothttp.RemainingResponse
// @Router /api/remaining [get]
func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ballots.Handler.RemainingHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVoters godoc
// @Summary Count voters
// @Tags tally
// @Produce json
// @Success 200 {object} ballothttp.VotersResponse
// @Router /api/voters [get]
func (s *Server) handleVoters(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ballots.Handler.VotersHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCandidateCount godoc
// @Summary Votes received by one candidate
// @Tags tally
// @Accept json
// @Produce json
// @Param request body ballothttp.CandidateCountRequest true "Candidate"
// @Success 200 {object} ballothttp.CandidateCountResponse
// @Failure 404 {object} ballothttp.ErrorResponse
// @Router /api/count [post]
func (s *Server) handleCandidateCount(w http.ResponseWriter, r *http.Request) {
	var req ballothttp.CandidateCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ballots.Handler.CandidateCountHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFinalCount godoc
// @Summary Recount every candidate from ballot rows
// @Tags tally
// @Produce json
// @Success 200 {object} ballothttp.FinalCountResponse
// @Router /api/final-count [post]
func (s *Server) handleFinalCount(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ballots.Handler.FinalCountHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAudit godoc
// @Summary Compare cached counters with ballot rows
// @Tags tally
// @Produce json
// @Success 200 {object} ballothttp.AuditResponse
// @Router /api/audit [get]
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ballots.Handler.AuditHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domainerrors.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrBackendUnavailable),
		errors.Is(err, domainerrors.ErrTransactionConflict):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		s.logger.Error("ballot request failed",
			"event", "http_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userEmail := strings.TrimSpace(r.Header.Get(userEmailHeader))
	if userEmail == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", userEmailHeader+" header is required")
		return "", false
	}
	return userEmail, true
}

func writeOperation(w http.ResponseWriter, resp ballothttp.OperationResponse) {
	writeJSON(w, statusForFailure(entities.Failure(resp.Reason)), resp)
}

func statusForFailure(failure entities.Failure) int {
	switch failure {
	case entities.FailureNone:
		return http.StatusOK
	case entities.FailureUserNotFound,
		entities.FailureVoterNotFound,
		entities.FailureCandidateNotFound,
		entities.FailureVoteNotFound:
		return http.StatusNotFound
	case entities.FailureNotACandidate,
		entities.FailureNotAVoter:
		return http.StatusForbidden
	case entities.FailureVoteLimitReached,
		entities.FailureDuplicateVote,
		entities.FailureHasActiveVotes,
		entities.FailureHasReceivedVotes:
		return http.StatusConflict
	case entities.FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ballothttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
