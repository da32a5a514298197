package sqliteadapter

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

const defaultMaxTxAttempts = 5

var (
	_ ports.BallotStore  = (*Store)(nil)
	_ ports.TallyReader  = (*Store)(nil)
	_ ports.UserRegistry = (*Store)(nil)
)

// Store persists users, roles and ballots in SQLite. SQLite transactions are
// always serializable, so the requested isolation level only shows up in logs.
type Store struct {
	sqlDB         *sql.DB
	logger        *slog.Logger
	maxTxAttempts uint
}

func NewStore(sqlDB *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sqlDB:         sqlDB,
		logger:        logger,
		maxTxAttempts: defaultMaxTxAttempts,
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return s.logError("ballot_sqlite_migrate_failed", err)
	}
	return nil
}

func (s *Store) WithinTx(
	ctx context.Context,
	isolation sql.IsolationLevel,
	fn func(ctx context.Context, tx ports.BallotTx) error,
) error {
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := s.runTx(ctx, func(ctx context.Context, tx *storeTx) error {
			return fn(ctx, tx)
		})
		if err == nil {
			return struct{}{}, nil
		}
		if isBusy(err) {
			s.logger.Warn("ballot transaction busy, retrying",
				"event", "ballot_sqlite_tx_busy",
				"module", "elections/ballot-engine",
				"layer", "adapter",
				"attempt", attempt,
				"isolation", isolation.String(),
				"error", err.Error(),
			)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.maxTxAttempts),
	)
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return fmt.Errorf("%w: %v", domainerrors.ErrTransactionConflict, err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx *storeTx) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	if err := fn(ctx, &storeTx{q: sqlTx, store: s}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func (s *Store) RegisterUser(ctx context.Context, email string, role entities.Role) (entities.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return entities.User{}, domainerrors.ErrInvalidInput
	}
	var user entities.User
	err := s.runTx(ctx, func(ctx context.Context, tx *storeTx) error {
		existing, found, err := findUser(ctx, tx.q, "email = ?", email)
		if err != nil {
			return err
		}
		if found {
			var other int
			if err := tx.q.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role <> ?`,
				existing.UserID, string(role),
			).Scan(&other); err != nil {
				return err
			}
			if other > 0 {
				return fmt.Errorf("%w: %s", domainerrors.ErrRoleConflict, email)
			}
		} else {
			existing = entities.User{UserID: uuid.NewString(), Email: email}
			if _, err := tx.q.ExecContext(ctx,
				`INSERT INTO users (id, email, vote_count) VALUES (?, ?, 0)`,
				existing.UserID, existing.Email,
			); err != nil {
				return err
			}
		}
		user = existing
		return tx.AddRole(ctx, existing.UserID, role)
	})
	if err != nil {
		return entities.User{}, s.logError("ballot_sqlite_register_user_failed", err,
			"email", email,
			"role", string(role),
		)
	}
	return user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (entities.User, bool, error) {
	user, found, err := findUser(ctx, s.sqlDB, "email = ?", normalizeEmail(email))
	if err != nil {
		return entities.User{}, false, s.logError("ballot_sqlite_find_user_failed", err)
	}
	return user, found, nil
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (entities.User, bool, error) {
	user, found, err := findUser(ctx, s.sqlDB, "id = ?", strings.TrimSpace(userID))
	if err != nil {
		return entities.User{}, false, s.logError("ballot_sqlite_find_user_failed", err)
	}
	return user, found, nil
}

func (s *Store) ListUsersInRole(ctx context.Context, role entities.Role) ([]entities.User, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT u.id, u.email, u.vote_count
FROM users u
JOIN user_roles r ON r.user_id = u.id
WHERE r.role = ?
ORDER BY u.email ASC`, string(role))
	if err != nil {
		return nil, s.logError("ballot_sqlite_list_users_failed", err, "role", string(role))
	}
	defer rows.Close()

	var items []entities.User
	for rows.Next() {
		var user entities.User
		if err := rows.Scan(&user.UserID, &user.Email, &user.VoteCount); err != nil {
			return nil, s.logError("ballot_sqlite_scan_user_failed", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, s.logError("ballot_sqlite_list_users_failed", err, "role", string(role))
	}
	return items, nil
}

func (s *Store) ListBallots(ctx context.Context) ([]entities.Ballot, error) {
	items, err := listBallots(ctx, s.sqlDB, "")
	if err != nil {
		return nil, s.logError("ballot_sqlite_list_ballots_failed", err)
	}
	return items, nil
}

func (s *Store) ListBallotsByVoter(ctx context.Context, voterID string) ([]entities.Ballot, error) {
	items, err := listBallots(ctx, s.sqlDB, "voter_id = ?", strings.TrimSpace(voterID))
	if err != nil {
		return nil, s.logError("ballot_sqlite_list_ballots_failed", err, "voter_id", voterID)
	}
	return items, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findUser(ctx context.Context, q querier, where string, arg string) (entities.User, bool, error) {
	var user entities.User
	err := q.QueryRowContext(ctx,
		`SELECT id, email, vote_count FROM users WHERE `+where,
		arg,
	).Scan(&user.UserID, &user.Email, &user.VoteCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.User{}, false, nil
		}
		return entities.User{}, false, err
	}
	return user, true, nil
}

func listBallots(ctx context.Context, q querier, where string, args ...any) ([]entities.Ballot, error) {
	query := `SELECT id, voter_id, candidate_id, created_at FROM ballots`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []entities.Ballot
	for rows.Next() {
		var (
			ballot    entities.Ballot
			createdAt int64
		)
		if err := rows.Scan(&ballot.BallotID, &ballot.VoterID, &ballot.CandidateID, &createdAt); err != nil {
			return nil, err
		}
		ballot.CreatedAt = fromMillis(createdAt)
		items = append(items, ballot)
	}
	return items, rows.Err()
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "elections/ballot-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("ballot sqlite operation failed", fields...)
	return err
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
