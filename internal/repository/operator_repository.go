package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/livechat-service/internal/domain"
)

// OperatorRepository handles persistence for operators. ReserveSlot and
// ReleaseSlot are the only writers of current_load; both are single
// conditional UPDATE statements so concurrent assignments cannot lose
// updates.
type OperatorRepository interface {
	Create(ctx context.Context, op *domain.Operator) error
	Update(ctx context.Context, op *domain.Operator) error
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
	List(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error)
	ListAssignable(ctx context.Context) ([]domain.Operator, error)
	ListByStatuses(ctx context.Context, statuses []domain.OperatorStatus) ([]domain.Operator, error)
	ReserveSlot(ctx context.Context, id string) (bool, error)
	ReleaseSlot(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status domain.OperatorStatus) error
	Touch(ctx context.Context, id string) error
}

// OperatorFilter defines query params for operator listing.
type OperatorFilter struct {
	Role   *domain.OperatorRole
	Status *domain.OperatorStatus
	Limit  int
	Offset int
}

type operatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository instantiates the repository.
func NewOperatorRepository(pool *pgxpool.Pool) OperatorRepository {
	return &operatorRepository{pool: pool}
}

const operatorColumns = `id, name, email, password_hash, role, status, max_sessions, current_load, last_active, created_at, updated_at`

func (r *operatorRepository) Create(ctx context.Context, op *domain.Operator) error {
	const query = `
        INSERT INTO operators (name, email, password_hash, role, status, max_sessions, current_load)
        VALUES ($1,$2,$3,$4,$5,$6,0)
        RETURNING id, last_active, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		op.Name,
		op.Email,
		op.PasswordHash,
		op.Role,
		op.Status,
		op.MaxSessions,
	).Scan(&op.ID, &op.LastActive, &op.CreatedAt, &op.UpdatedAt)
}

// Update persists profile fields. Status and current_load are exclusively
// written through SetStatus/ReserveSlot/ReleaseSlot.
func (r *operatorRepository) Update(ctx context.Context, op *domain.Operator) error {
	const query = `
        UPDATE operators
        SET name=$1, email=$2, password_hash=$3, role=$4, max_sessions=$5, updated_at=NOW()
        WHERE id=$6`

	cmd, err := r.pool.Exec(ctx, query,
		op.Name,
		op.Email,
		op.PasswordHash,
		op.Role,
		op.MaxSessions,
		op.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *operatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *operatorRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Operator, error) {
	var op domain.Operator
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&op.ID,
		&op.Name,
		&op.Email,
		&op.PasswordHash,
		&op.Role,
		&op.Status,
		&op.MaxSessions,
		&op.CurrentLoad,
		&op.LastActive,
		&op.CreatedAt,
		&op.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operatorRepository) List(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOperators(rows)
}

// ListAssignable returns ONLINE operators with spare capacity, least loaded
// first, stale heartbeat last within the same load.
func (r *operatorRepository) ListAssignable(ctx context.Context) ([]domain.Operator, error) {
	query := `SELECT ` + operatorColumns + `
        FROM operators
        WHERE status=$1 AND current_load < max_sessions
        ORDER BY current_load ASC, last_active ASC`

	rows, err := r.pool.Query(ctx, query, domain.OperatorStatusOnline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOperators(rows)
}

func (r *operatorRepository) ListByStatuses(ctx context.Context, statuses []domain.OperatorStatus) ([]domain.Operator, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE status IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY last_active ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOperators(rows)
}

// ReserveSlot atomically increments current_load iff the operator is not
// OFFLINE and below capacity. Returns false without mutation otherwise.
func (r *operatorRepository) ReserveSlot(ctx context.Context, id string) (bool, error) {
	const query = `
        UPDATE operators
        SET current_load = current_load + 1, last_active=NOW(), updated_at=NOW()
        WHERE id=$1 AND status <> $2 AND current_load < max_sessions`

	cmd, err := r.pool.Exec(ctx, query, id, domain.OperatorStatusOffline)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// ReleaseSlot atomically decrements current_load, floored at zero. Releasing
// an already-zero load is a no-op, never an error.
func (r *operatorRepository) ReleaseSlot(ctx context.Context, id string) error {
	const query = `
        UPDATE operators
        SET current_load = current_load - 1, last_active=NOW(), updated_at=NOW()
        WHERE id=$1 AND current_load > 0`

	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *operatorRepository) SetStatus(ctx context.Context, id string, status domain.OperatorStatus) error {
	const query = `
        UPDATE operators SET status=$1, last_active=NOW(), updated_at=NOW() WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Touch advances last_active without any other change.
func (r *operatorRepository) Touch(ctx context.Context, id string) error {
	const query = `UPDATE operators SET last_active=NOW() WHERE id=$1`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanOperators(rows pgx.Rows) ([]domain.Operator, error) {
	var result []domain.Operator
	for rows.Next() {
		var op domain.Operator
		if err := rows.Scan(
			&op.ID,
			&op.Name,
			&op.Email,
			&op.PasswordHash,
			&op.Role,
			&op.Status,
			&op.MaxSessions,
			&op.CurrentLoad,
			&op.LastActive,
			&op.CreatedAt,
			&op.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, rows.Err()
}
