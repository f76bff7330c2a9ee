package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

const userColumns = `
	id, email, password_hash, first_name, last_name, phone, user_type, is_guest,
	gdpr_consent_given, gdpr_consent_date, data_retention_date,
	failed_attempts, locked_until, last_login_at, erased_at, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			email, password_hash, first_name, last_name, phone, user_type, is_guest,
			gdpr_consent_given, gdpr_consent_date, data_retention_date,
			failed_attempts, locked_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING id
	`
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	err := sqlx.GetContext(ctx, r.q, &user.ID, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.UserType,
		user.IsGuest,
		user.GDPRConsentGiven,
		user.GDPRConsentDate,
		user.DataRetentionDate,
		user.FailedAttempts,
		user.LockedUntil,
		user.CreatedAt,
	)
	return mapError(err, "create user")
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) GetForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *userRepository) get(ctx context.Context, query string, id int64) (*model.User, error) {
	var user model.User
	if err := sqlx.GetContext(ctx, r.q, &user, query, id); err != nil {
		return nil, mapError(err, "get user")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := sqlx.GetContext(ctx, r.q, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, mapError(err, "get user by email")
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			email = $1, password_hash = $2, first_name = $3, last_name = $4, phone = $5,
			user_type = $6, is_guest = $7, gdpr_consent_given = $8, gdpr_consent_date = $9,
			data_retention_date = $10, failed_attempts = $11, locked_until = $12,
			last_login_at = $13, erased_at = $14, updated_at = $15
		WHERE id = $16
	`
	user.UpdatedAt = time.Now().UTC()

	res, err := r.q.ExecContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.UserType,
		user.IsGuest,
		user.GDPRConsentGiven,
		user.GDPRConsentDate,
		user.DataRetentionDate,
		user.FailedAttempts,
		user.LockedUntil,
		user.LastLoginAt,
		user.ErasedAt,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return mapError(err, "update user")
	}
	if err := expectOne(res, "update user"); err != nil {
		return repository.ErrNotFound
	}
	return nil
}
