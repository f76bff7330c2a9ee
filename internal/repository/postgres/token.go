package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
)

// sessionRepository stores login sessions keyed by token hash.
type sessionRepository struct {
	BaseRepository
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, query, session.ID, session.UserID, session.ExpiresAt, session.CreatedAt)
	return mapError(err, "create session")
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1`
	var session model.Session
	if err := sqlx.GetContext(ctx, r.q, &session, query, id); err != nil {
		return nil, mapError(err, "get session")
	}
	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return mapError(err, "delete session")
}

func (r *sessionRepository) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return mapError(err, "delete user sessions")
}
