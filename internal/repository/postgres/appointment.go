package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
)

const appointmentColumns = `
	id, practice_id, dentist_id, treatment_id,
	to_char(appointment_date, 'YYYY-MM-DD') AS appointment_date,
	to_char(appointment_time, 'HH24:MI') AS appointment_time,
	duration, status, user_id, created_at, updated_at`

type appointmentRepository struct {
	BaseRepository
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			practice_id, dentist_id, treatment_id, appointment_date, appointment_time,
			duration, status, user_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8, $9, $9)
		RETURNING id
	`
	appointment.CreatedAt = time.Now().UTC()
	appointment.UpdatedAt = appointment.CreatedAt

	err := sqlx.GetContext(ctx, r.q, &appointment.ID, query,
		appointment.PracticeID,
		appointment.DentistID,
		appointment.TreatmentID,
		appointment.AppointmentDate,
		appointment.AppointmentTime,
		appointment.Duration,
		appointment.Status,
		appointment.UserID,
		appointment.CreatedAt,
	)
	return mapError(err, "create appointment")
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	return r.get(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
}

func (r *appointmentRepository) GetForUpdate(ctx context.Context, id int64) (*model.Appointment, error) {
	return r.get(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
}

func (r *appointmentRepository) get(ctx context.Context, query string, id int64) (*model.Appointment, error) {
	var appointment model.Appointment
	if err := sqlx.GetContext(ctx, r.q, &appointment, query, id); err != nil {
		return nil, mapError(err, "get appointment")
	}
	return &appointment, nil
}

func (r *appointmentRepository) ListAvailable(ctx context.Context, practiceID int64, date string) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE practice_id = $1
		AND status = 'available'
		AND ($2 = '' OR appointment_date = NULLIF($2, '')::date)
		ORDER BY appointment_date, appointment_time, id
	`
	var appointments []*model.Appointment
	if err := sqlx.SelectContext(ctx, r.q, &appointments, query, practiceID, date); err != nil {
		return nil, mapError(err, "list available appointments")
	}
	return appointments, nil
}

// MarkBooked is guarded on status so two writers cannot both book the slot.
func (r *appointmentRepository) MarkBooked(ctx context.Context, id, userID int64, at time.Time) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'booked', user_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'available'
	`
	res, err := r.q.ExecContext(ctx, query, id, userID, at)
	if err != nil {
		return nil, mapError(err, "book appointment")
	}
	if err := expectOne(res, "book appointment"); err != nil {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, err
	}
	return r.Get(ctx, id)
}
