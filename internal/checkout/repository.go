package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/money"
	"github.com/fjod/storefront/internal/postgres"
)

// ErrStaleAttempt is returned by SaveState when the stored status no longer
// matches the status the caller advanced from.
var ErrStaleAttempt = errors.New("checkout attempt was modified concurrently")

type Repository interface {
	GetAttemptByIdempotencyKey(ctx context.Context, userID, key string) (domain.Attempt, bool, error)
	GetAttemptBySessionID(ctx context.Context, sessionID string) (domain.Attempt, bool, error)
	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	SaveState(ctx context.Context, a *domain.Attempt, from domain.CheckoutStatus) error
	RecordResolution(ctx context.Context, attemptID, resolution, detail string, event *domain.OutboxEvent) (bool, error)
}

// RecoveredAttempt is an attempt moved out of an in-flight status by RecoverStuckAttempts.
type RecoveredAttempt struct {
	ID     string
	UserID string
	Status domain.CheckoutStatus
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const attemptColumns = `
	id, user_id, idempotency_key, status, COALESCE(session_id, ''), session_url,
	failure_reason, total_amount, currency, resolution, created_at, updated_at
`

func (r *PostgresRepository) GetAttemptByIdempotencyKey(ctx context.Context, userID, key string) (domain.Attempt, bool, error) {
	query := `SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE user_id = $1 AND idempotency_key = $2
	`
	return r.getAttempt(ctx, query, userID, key)
}

func (r *PostgresRepository) GetAttemptBySessionID(ctx context.Context, sessionID string) (domain.Attempt, bool, error) {
	query := `SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE session_id = $1
	`
	return r.getAttempt(ctx, query, sessionID)
}

func (r *PostgresRepository) getAttempt(ctx context.Context, query string, args ...any) (domain.Attempt, bool, error) {
	var (
		a                             domain.Attempt
		status                        string
		sessionID, sessionURL, reason string
		total                         int64
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.UserID, &a.IdempotencyKey, &status, &sessionID, &sessionURL,
		&reason, &total, &a.Currency, &a.Resolution, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("failed to get checkout attempt: %w", err)
	}

	state, err := domain.StateFromRecord(domain.CheckoutStatus(status), sessionID, sessionURL, reason)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	a.State = state
	a.TotalAmount = money.Cents(total)
	return a, true, nil
}

// CreateAttempt inserts a new attempt. A second attempt with the same user and
// idempotency key fails with domain.ErrAttemptInProgress.
func (r *PostgresRepository) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	query := `
		INSERT INTO checkout_attempts (id, user_id, idempotency_key, status, total_amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.IdempotencyKey, string(a.State.Status()), int64(a.TotalAmount), a.Currency,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return domain.ErrAttemptInProgress
	}
	if err != nil {
		return fmt.Errorf("failed to create checkout attempt: %w", err)
	}
	return nil
}

// SaveState persists a.State, provided the stored status is still from.
func (r *PostgresRepository) SaveState(ctx context.Context, a *domain.Attempt, from domain.CheckoutStatus) error {
	var (
		sessionID  sql.NullString
		sessionURL string
		reason     string
	)
	switch st := a.State.(type) {
	case domain.NotStarted:
		reason = st.LastError
	case domain.Completed:
		sessionID = sql.NullString{String: st.SessionID, Valid: st.SessionID != ""}
		sessionURL = st.RedirectURL
	case domain.Failed:
		reason = st.Reason
	}

	query := `
		UPDATE checkout_attempts
		SET status = $1, session_id = $2, session_url = $3, failure_reason = $4,
			total_amount = $5, updated_at = NOW()
		WHERE id = $6 AND status = $7
	`

	res, err := r.db.ExecContext(ctx, query,
		string(a.State.Status()), sessionID, sessionURL, reason, int64(a.TotalAmount), a.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update checkout attempt status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update checkout attempt status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: attempt %s is no longer %s", ErrStaleAttempt, a.ID, from)
	}
	return nil
}

// RecordResolution stores the provider outcome of an attempt, together with
// event when it is non-nil. A paid outcome replaces a failed one, since a
// declined card can be retried on the same session; otherwise the first
// outcome stands. The bool is false when nothing was recorded.
func (r *PostgresRepository) RecordResolution(ctx context.Context, attemptID, resolution, detail string, event *domain.OutboxEvent) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE checkout_attempts
		SET resolution = $1, resolution_detail = $2, updated_at = NOW()
		WHERE id = $3 AND (resolution = '' OR (resolution = $4 AND $1 = $5))
	`, resolution, detail, attemptID, ResolutionFailed, ResolutionPaid)
	if err != nil {
		return false, fmt.Errorf("failed to record resolution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record resolution: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if event != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, NOW())
		`, event.AggregateId, event.EventType, []byte(event.Payload))
		if err != nil {
			return false, fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit resolution: %w", err)
	}
	return true, nil
}

// RecoverStuckAttempts moves attempts that have not changed since before
// cutoff out of their in-flight status. An interrupted profile save returns to
// NOT_STARTED so its key can be resumed. Anything past the profile save is
// failed, since a session may or may not exist for it.
func (r *PostgresRepository) RecoverStuckAttempts(ctx context.Context, cutoff time.Time, reason string) ([]RecoveredAttempt, error) {
	query := `
		UPDATE checkout_attempts
		SET status = CASE WHEN status = $1 THEN $2 ELSE $3 END,
			failure_reason = $4,
			updated_at = NOW()
		WHERE status IN ($1, $5, $6) AND updated_at < $7
		RETURNING id, user_id, status
	`

	rows, err := r.db.QueryContext(ctx, query,
		string(domain.CheckoutStatusProfileSaving),
		string(domain.CheckoutStatusNotStarted),
		string(domain.CheckoutStatusFailed),
		reason,
		string(domain.CheckoutStatusProfileSaved),
		string(domain.CheckoutStatusSessionRequested),
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recover stuck attempts: %w", err)
	}
	defer rows.Close()

	var recovered []RecoveredAttempt
	for rows.Next() {
		var a RecoveredAttempt
		var status string
		if err := rows.Scan(&a.ID, &a.UserID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan recovered attempt: %w", err)
		}
		a.Status = domain.CheckoutStatus(status)
		recovered = append(recovered, a)
	}
	return recovered, rows.Err()
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unprocessed events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateId, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event %d as processed: %w", id, err)
	}
	return nil
}
