package postgresadapter

import (
	"context"
	"database/sql"
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
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultMaxTxAttempts = 5

type Repository struct {
	db            *gorm.DB
	logger        *slog.Logger
	maxTxAttempts uint
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:            db,
		logger:        logger,
		maxTxAttempts: defaultMaxTxAttempts,
	}
}

// EnsureSchema creates the identity, role and ballot tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&userModel{}, &userRoleModel{}, &ballotModel{}); err != nil {
		return r.logError("ballot_repo_migrate_failed", err)
	}
	return nil
}

// WithinTx runs fn in one transaction at isolation. Serialization failures
// and deadlocks are retried with exponential backoff; once attempts run out
// the caller gets domainerrors.ErrTransactionConflict.
func (r *Repository) WithinTx(
	ctx context.Context,
	isolation sql.IsolationLevel,
	fn func(ctx context.Context, tx ports.BallotTx) error,
) error {
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(ctx, &repoTx{db: db, repo: r})
		}, &sql.TxOptions{Isolation: isolation})
		if err == nil {
			return struct{}{}, nil
		}
		if isRetryableConflict(err) {
			r.logger.Warn("ballot transaction conflict, retrying",
				"event", "ballot_repo_tx_conflict",
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
		backoff.WithBackOff(newTxBackOff()),
		backoff.WithMaxTries(r.maxTxAttempts),
	)
	if err == nil {
		return nil
	}
	if isRetryableConflict(err) {
		return fmt.Errorf("%w: %v", domainerrors.ErrTransactionConflict, err)
	}
	return err
}

func (r *Repository) RegisterUser(ctx context.Context, email string, role entities.Role) (entities.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return entities.User{}, domainerrors.ErrInvalidInput
	}
	var user entities.User
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var row userModel
		err := db.Where("email = ?", email).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = userModel{ID: uuid.NewString(), Email: email}
			if err := db.Create(&row).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			var other int64
			if err := db.Model(&userRoleModel{}).
				Where("user_id = ? AND role <> ?", row.ID, string(role)).
				Count(&other).Error; err != nil {
				return err
			}
			if other > 0 {
				return fmt.Errorf("%w: %s", domainerrors.ErrRoleConflict, email)
			}
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&userRoleModel{UserID: row.ID, Role: string(role)}).Error; err != nil {
			return err
		}
		user = row.toEntity()
		return nil
	})
	if err != nil {
		return entities.User{}, r.logError("ballot_repo_register_user_failed", err,
			"email", email,
			"role", string(role),
		)
	}
	return user, nil
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (entities.User, bool, error) {
	return findUserBy(ctx, r.db, r, "email = ?", normalizeEmail(email))
}

func (r *Repository) FindUserByID(ctx context.Context, userID string) (entities.User, bool, error) {
	return findUserBy(ctx, r.db, r, "id = ?", strings.TrimSpace(userID))
}

func (r *Repository) ListUsersInRole(ctx context.Context, role entities.Role) ([]entities.User, error) {
	var rows []userModel
	err := r.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("user_roles.role = ?", string(role)).
		Order("users.email ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("ballot_repo_list_users_in_role_failed", err, "role", string(role))
	}
	items := make([]entities.User, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ListBallots(ctx context.Context) ([]entities.Ballot, error) {
	return listBallots(ctx, r.db, r)
}

func (r *Repository) ListBallotsByVoter(ctx context.Context, voterID string) ([]entities.Ballot, error) {
	return listBallots(ctx, r.db, r, "voter_id = ?", strings.TrimSpace(voterID))
}

func findUserBy(ctx context.Context, db *gorm.DB, r *Repository, query string, arg string) (entities.User, bool, error) {
	var row userModel
	err := db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.User{}, false, nil
		}
		return entities.User{}, false, r.logError("ballot_repo_find_user_failed", err, "lookup", arg)
	}
	return row.toEntity(), true, nil
}

func listBallots(ctx context.Context, db *gorm.DB, r *Repository, where ...any) ([]entities.Ballot, error) {
	var rows []ballotModel
	query := db.WithContext(ctx)
	if len(where) > 0 {
		query = query.Where(where[0], where[1:]...)
	}
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("ballot_repo_list_ballots_failed", err)
	}
	items := make([]entities.Ballot, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "elections/ballot-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ballot repository operation failed", fields...)
	return err
}

func newTxBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return b
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isRetryableConflict matches serialization_failure and deadlock_detected.
func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

var _ ports.BallotStore = (*Repository)(nil)
var _ ports.TallyReader = (*Repository)(nil)
var _ ports.UserRegistry = (*Repository)(nil)
