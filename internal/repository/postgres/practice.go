package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
)

type practiceRepository struct {
	BaseRepository
}

func (r *practiceRepository) Create(ctx context.Context, practice *model.Practice) error {
	query := `
		INSERT INTO practices (name, address, phone, connection_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`
	practice.CreatedAt = time.Now().UTC()
	practice.UpdatedAt = practice.CreatedAt

	err := sqlx.GetContext(ctx, r.q, &practice.ID, query,
		practice.Name, practice.Address, practice.Phone, practice.ConnectionTag, practice.CreatedAt)
	return mapError(err, "create practice")
}

func (r *practiceRepository) Get(ctx context.Context, id int64) (*model.Practice, error) {
	query := `
		SELECT id, name, address, phone, connection_tag, created_at, updated_at
		FROM practices
		WHERE id = $1
	`
	var practice model.Practice
	if err := sqlx.GetContext(ctx, r.q, &practice, query, id); err != nil {
		return nil, mapError(err, "get practice")
	}
	return &practice, nil
}

func (r *practiceRepository) List(ctx context.Context, connectionTag string) ([]*model.Practice, error) {
	query := `
		SELECT id, name, address, phone, connection_tag, created_at, updated_at
		FROM practices
		WHERE ($1 = '' OR connection_tag = $1)
		ORDER BY id
	`
	var practices []*model.Practice
	if err := sqlx.SelectContext(ctx, r.q, &practices, query, connectionTag); err != nil {
		return nil, mapError(err, "list practices")
	}
	return practices, nil
}

func (r *practiceRepository) AddStaff(ctx context.Context, practiceID, userID int64) error {
	query := `
		INSERT INTO practice_staff (practice_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (practice_id, user_id) DO NOTHING
	`
	_, err := r.q.ExecContext(ctx, query, practiceID, userID, time.Now().UTC())
	return mapError(err, "add practice staff")
}

func (r *practiceRepository) IsStaff(ctx context.Context, practiceID, userID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM practice_staff WHERE practice_id = $1 AND user_id = $2)`
	var ok bool
	if err := sqlx.GetContext(ctx, r.q, &ok, query, practiceID, userID); err != nil {
		return false, mapError(err, "check practice staff")
	}
	return ok, nil
}

type dentistRepository struct {
	BaseRepository
}

func (r *dentistRepository) Create(ctx context.Context, dentist *model.Dentist) error {
	query := `
		INSERT INTO dentists (practice_id, name, specialization, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`
	dentist.CreatedAt = time.Now().UTC()
	dentist.UpdatedAt = dentist.CreatedAt

	err := sqlx.GetContext(ctx, r.q, &dentist.ID, query,
		dentist.PracticeID, dentist.Name, dentist.Specialization, dentist.CreatedAt)
	return mapError(err, "create dentist")
}

func (r *dentistRepository) Get(ctx context.Context, id int64) (*model.Dentist, error) {
	query := `
		SELECT id, practice_id, name, specialization, created_at, updated_at
		FROM dentists
		WHERE id = $1
	`
	var dentist model.Dentist
	if err := sqlx.GetContext(ctx, r.q, &dentist, query, id); err != nil {
		return nil, mapError(err, "get dentist")
	}
	return &dentist, nil
}

func (r *dentistRepository) ListByPractice(ctx context.Context, practiceID int64) ([]*model.Dentist, error) {
	query := `
		SELECT id, practice_id, name, specialization, created_at, updated_at
		FROM dentists
		WHERE practice_id = $1
		ORDER BY id
	`
	var dentists []*model.Dentist
	if err := sqlx.SelectContext(ctx, r.q, &dentists, query, practiceID); err != nil {
		return nil, mapError(err, "list dentists")
	}
	return dentists, nil
}
