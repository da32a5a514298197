package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"

	"github.com/google/uuid"
)

var (
	_ ports.BallotStore  = (*Store)(nil)
	_ ports.TallyReader  = (*Store)(nil)
	_ ports.UserRegistry = (*Store)(nil)
	_ ports.Clock        = (*Store)(nil)
	_ ports.IDGenerator  = (*Store)(nil)
)

type state struct {
	users   map[string]entities.User
	emails  map[string]string
	roles   map[string]map[entities.Role]bool
	ballots map[string]entities.Ballot
}

func newState() state {
	return state{
		users:   make(map[string]entities.User),
		emails:  make(map[string]string),
		roles:   make(map[string]map[entities.Role]bool),
		ballots: make(map[string]entities.Ballot),
	}
}

func (s state) clone() state {
	next := newState()
	for id, user := range s.users {
		next.users[id] = user
	}
	for email, id := range s.emails {
		next.emails[email] = id
	}
	for id, roles := range s.roles {
		copied := make(map[entities.Role]bool, len(roles))
		for role, held := range roles {
			copied[role] = held
		}
		next.roles[id] = copied
	}
	for id, ballot := range s.ballots {
		next.ballots[id] = ballot
	}
	return next
}

// Store keeps users, roles and ballots in process memory. Transactions hold
// the write lock for their whole duration and work on a copy of the state
// that replaces the live state only on commit, so every isolation level
// behaves as serializable.
type Store struct {
	mu          sync.RWMutex
	state       state
	unavailable error
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// SetUnavailable makes every later transaction fail with err until it is
// cleared with nil.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

func (s *Store) WithinTx(
	ctx context.Context,
	_ sql.IsolationLevel,
	fn func(ctx context.Context, tx ports.BallotTx) error,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.unavailable != nil {
		return s.unavailable
	}
	working := s.state.clone()
	if err := fn(ctx, &tx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) RegisterUser(_ context.Context, email string, role entities.Role) (entities.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return entities.User{}, domainerrors.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, exists := s.state.emails[email]; exists {
		for held := range s.state.roles[id] {
			if held != role {
				return entities.User{}, fmt.Errorf("%w: %s is %s", domainerrors.ErrRoleConflict, email, held)
			}
		}
		s.state.roles[id][role] = true
		return s.state.users[id], nil
	}
	user := entities.User{UserID: uuid.NewString(), Email: email}
	s.state.users[user.UserID] = user
	s.state.emails[email] = user.UserID
	s.state.roles[user.UserID] = map[entities.Role]bool{role: true}
	return user, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (entities.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.state.userByEmail(email)
	return user, ok, nil
}

func (s *Store) FindUserByID(_ context.Context, userID string) (entities.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.state.users[userID]
	return user, ok, nil
}

func (s *Store) ListUsersInRole(_ context.Context, role entities.Role) ([]entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.User, 0)
	for id, roles := range s.state.roles {
		if roles[role] {
			items = append(items, s.state.users[id])
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Email < items[j].Email
	})
	return items, nil
}

func (s *Store) ListBallots(_ context.Context) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ballotsWhere(func(entities.Ballot) bool { return true }), nil
}

func (s *Store) ListBallotsByVoter(_ context.Context, voterID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ballotsWhere(func(b entities.Ballot) bool { return b.VoterID == voterID }), nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s state) userByEmail(email string) (entities.User, bool) {
	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return entities.User{}, false
	}
	user, ok := s.users[id]
	return user, ok
}

func (s state) ballotsWhere(match func(entities.Ballot) bool) []entities.Ballot {
	items := make([]entities.Ballot, 0)
	for _, ballot := range s.ballots {
		if match(ballot) {
			items = append(items, ballot)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].BallotID < items[j].BallotID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

type tx struct {
	state state
}

func (t *tx) FindUserByEmail(_ context.Context, email string) (entities.User, bool, error) {
	user, ok := t.state.userByEmail(email)
	return user, ok, nil
}

func (t *tx) HasRole(_ context.Context, userID string, role entities.Role) (bool, error) {
	return t.state.roles[userID][role], nil
}

func (t *tx) AddRole(_ context.Context, userID string, role entities.Role) error {
	roles, ok := t.state.roles[userID]
	if !ok {
		return domainerrors.ErrUserNotFound
	}
	roles[role] = true
	return nil
}

func (t *tx) RemoveRole(_ context.Context, userID string, role entities.Role) error {
	roles, ok := t.state.roles[userID]
	if !ok {
		return domainerrors.ErrUserNotFound
	}
	delete(roles, role)
	return nil
}

func (t *tx) ListBallotsByVoter(_ context.Context, voterID string) ([]entities.Ballot, error) {
	return t.state.ballotsWhere(func(b entities.Ballot) bool { return b.VoterID == voterID }), nil
}

func (t *tx) FindBallot(_ context.Context, voterID string, candidateID string) (entities.Ballot, bool, error) {
	for _, ballot := range t.state.ballots {
		if ballot.VoterID == voterID && ballot.CandidateID == candidateID {
			return ballot, true, nil
		}
	}
	return entities.Ballot{}, false, nil
}

func (t *tx) HasBallotsFromVoter(_ context.Context, voterID string) (bool, error) {
	for _, ballot := range t.state.ballots {
		if ballot.VoterID == voterID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) HasBallotsForCandidate(_ context.Context, candidateID string) (bool, error) {
	for _, ballot := range t.state.ballots {
		if ballot.CandidateID == candidateID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertBallot(_ context.Context, ballot entities.Ballot) error {
	for _, existing := range t.state.ballots {
		if existing.VoterID == ballot.VoterID && existing.CandidateID == ballot.CandidateID {
			return domainerrors.ErrDuplicateBallot
		}
	}
	t.state.ballots[ballot.BallotID] = ballot
	return nil
}

func (t *tx) DeleteBallot(_ context.Context, ballotID string) error {
	if _, ok := t.state.ballots[ballotID]; !ok {
		return domainerrors.ErrBallotNotFound
	}
	delete(t.state.ballots, ballotID)
	return nil
}

func (t *tx) AdjustVoteCount(_ context.Context, userID string, delta int) error {
	user, ok := t.state.users[userID]
	if !ok {
		return domainerrors.ErrUserNotFound
	}
	user.VoteCount += delta
	t.state.users[userID] = user
	return nil
}

func (t *tx) SetVoteCount(_ context.Context, userID string, count int) error {
	user, ok := t.state.users[userID]
	if !ok {
		return domainerrors.ErrUserNotFound
	}
	user.VoteCount = count
	t.state.users[userID] = user
	return nil
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
