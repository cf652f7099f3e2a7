package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/livechat-service/internal/domain"
)

// ErrDuplicateRating is returned when the unique session constraint rejects a
// second rating row.
var ErrDuplicateRating = errors.New("rating already exists for session")

// RatingRepository stores terminal session ratings.
type RatingRepository interface {
	Create(ctx context.Context, rating *domain.Rating) error
	GetBySession(ctx context.Context, sessionID string) (*domain.Rating, error)
	ListByOperator(ctx context.Context, operatorID string, limit, offset int) ([]domain.Rating, error)
}

type ratingRepository struct {
	pool *pgxpool.Pool
}

// NewRatingRepository builds repository.
func NewRatingRepository(pool *pgxpool.Pool) RatingRepository {
	return &ratingRepository{pool: pool}
}

func (r *ratingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	const query = `
        INSERT INTO session_ratings (session_id, requester_user_id, operator_id, value, comment)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		rating.SessionID,
		rating.RequesterID,
		rating.OperatorID,
		rating.Value,
		rating.Comment,
	).Scan(&rating.ID, &rating.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRating
		}
		return err
	}
	return nil
}

func (r *ratingRepository) GetBySession(ctx context.Context, sessionID string) (*domain.Rating, error) {
	const query = `
        SELECT id, session_id, requester_user_id, operator_id, value, comment, created_at
        FROM session_ratings WHERE session_id=$1`

	var rating domain.Rating
	if err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&rating.ID,
		&rating.SessionID,
		&rating.RequesterID,
		&rating.OperatorID,
		&rating.Value,
		&rating.Comment,
		&rating.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rating, nil
}

func (r *ratingRepository) ListByOperator(ctx context.Context, operatorID string, limit, offset int) ([]domain.Rating, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, session_id, requester_user_id, operator_id, value, comment, created_at
        FROM session_ratings WHERE operator_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, operatorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Rating
	for rows.Next() {
		var rating domain.Rating
		if err := rows.Scan(
			&rating.ID,
			&rating.SessionID,
			&rating.RequesterID,
			&rating.OperatorID,
			&rating.Value,
			&rating.Comment,
			&rating.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rating)
	}
	return result, rows.Err()
}
