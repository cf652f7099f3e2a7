package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/livechat-service/internal/domain"
)

// SessionHistoryRepository stores audit entries.
type SessionHistoryRepository interface {
	Create(ctx context.Context, history *domain.SessionHistory) error
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]domain.SessionHistory, error)
}

type sessionHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewSessionHistoryRepository builds repository.
func NewSessionHistoryRepository(pool *pgxpool.Pool) SessionHistoryRepository {
	return &sessionHistoryRepository{pool: pool}
}

func (r *sessionHistoryRepository) Create(ctx context.Context, history *domain.SessionHistory) error {
	const query = `
        INSERT INTO session_history (session_id, changed_by_type, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.SessionID,
		history.ChangedByType,
		history.ChangedByID,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *sessionHistoryRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]domain.SessionHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, session_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM session_history WHERE session_id=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SessionHistory
	for rows.Next() {
		var history domain.SessionHistory
		if err := rows.Scan(
			&history.ID,
			&history.SessionID,
			&history.ChangedByType,
			&history.ChangedByID,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
