package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/livechat-service/internal/domain"
)

// SessionFilter captures search parameters for session listings.
type SessionFilter struct {
	RequesterID *string
	OperatorID  *string
	Statuses    []domain.SessionStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// SessionRepository encapsulates session persistence. UpdateStatus is guarded
// by the caller's last observed status so a raced transition affects zero
// rows instead of overwriting a concurrent writer.
type SessionRepository interface {
	Create(ctx context.Context, sess *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	UpdateStatus(ctx context.Context, sess *domain.Session, prev domain.SessionStatus) (bool, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	NextWaiting(ctx context.Context) (*domain.Session, error)
	ListActiveByOperator(ctx context.Context, operatorID string) ([]domain.Session, error)
	ListWithFilter(ctx context.Context, filter SessionFilter) ([]domain.Session, error)
	CountActiveByOperator(ctx context.Context, operatorID string) (int, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository instantiates repository.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionColumns = `id, external_key, requester_user_id, operator_id, subject, status, priority, created_at, updated_at, closed_at`

func (r *sessionRepository) Create(ctx context.Context, sess *domain.Session) error {
	const query = `
        INSERT INTO sessions (external_key, requester_user_id, operator_id, subject, status, priority)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		sess.ExternalKey,
		sess.RequesterID,
		sess.OperatorID,
		sess.Subject,
		sess.Status,
		sess.Priority,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id=$1`

	var sess domain.Session
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID,
		&sess.ExternalKey,
		&sess.RequesterID,
		&sess.OperatorID,
		&sess.Subject,
		&sess.Status,
		&sess.Priority,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&sess.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateStatus persists the session's status, operator and closed_at, but only
// while the stored row is still in prev. Returns false when another writer
// transitioned the row first.
func (r *sessionRepository) UpdateStatus(ctx context.Context, sess *domain.Session, prev domain.SessionStatus) (bool, error) {
	const query = `
        UPDATE sessions
        SET status=$1, operator_id=$2, closed_at=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5`

	cmd, err := r.pool.Exec(ctx, query,
		sess.Status,
		sess.OperatorID,
		sess.ClosedAt,
		sess.ID,
		prev,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// Touch advances updated_at, used when a message is appended.
func (r *sessionRepository) Touch(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET updated_at=NOW() WHERE id=$1`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id=$1`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// NextWaiting returns the most deserving OPEN session: highest priority first,
// earliest creation as tie-break. Returns nil when the backlog is empty.
func (r *sessionRepository) NextWaiting(ctx context.Context) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
        FROM sessions
        WHERE status=$1
        ORDER BY CASE priority
            WHEN 'URGENT' THEN 4
            WHEN 'HIGH' THEN 3
            WHEN 'NORMAL' THEN 2
            ELSE 1
        END DESC, created_at ASC
        LIMIT 1`

	var sess domain.Session
	err := r.pool.QueryRow(ctx, query, domain.SessionStatusOpen).Scan(
		&sess.ID,
		&sess.ExternalKey,
		&sess.RequesterID,
		&sess.OperatorID,
		&sess.Subject,
		&sess.Status,
		&sess.Priority,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&sess.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *sessionRepository) ListActiveByOperator(ctx context.Context, operatorID string) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
        FROM sessions WHERE operator_id=$1 AND status=$2 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, operatorID, domain.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *sessionRepository) ListWithFilter(ctx context.Context, filter SessionFilter) ([]domain.Session, error) {
	base := `SELECT ` + sessionColumns + ` FROM sessions`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_user_id=$%d", len(args)))
	}
	if filter.OperatorID != nil {
		args = append(args, *filter.OperatorID)
		clauses = append(clauses, fmt.Sprintf("operator_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// CountActiveByOperator supports the ledger invariant check
// (load == count of ACTIVE sessions).
func (r *sessionRepository) CountActiveByOperator(ctx context.Context, operatorID string) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE operator_id=$1 AND status=$2`

	var count int
	if err := r.pool.QueryRow(ctx, query, operatorID, domain.SessionStatusActive).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanSessions(rows pgx.Rows) ([]domain.Session, error) {
	var result []domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(
			&sess.ID,
			&sess.ExternalKey,
			&sess.RequesterID,
			&sess.OperatorID,
			&sess.Subject,
			&sess.Status,
			&sess.Priority,
			&sess.CreatedAt,
			&sess.UpdatedAt,
			&sess.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}
