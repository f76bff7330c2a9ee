package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

const bookingColumns = `
	id, user_id, appointment_id, triage_assessment_id, status, approval_status,
	approved_by, approved_at, treatment_category, special_requests, accessibility_needs,
	created_at, updated_at`

const bookingDetailQuery = `
	SELECT
		b.id, b.user_id, b.appointment_id, b.triage_assessment_id, b.status, b.approval_status,
		b.approved_by, b.approved_at, b.treatment_category, b.special_requests,
		b.accessibility_needs, b.created_at, b.updated_at,
		a.practice_id, a.dentist_id, a.treatment_id,
		to_char(a.appointment_date, 'YYYY-MM-DD') AS appointment_date,
		to_char(a.appointment_time, 'HH24:MI') AS appointment_time,
		a.duration,
		u.first_name AS patient_first_name, u.last_name AS patient_last_name,
		u.email AS patient_email, u.phone AS patient_phone
	FROM bookings b
	JOIN appointments a ON a.id = b.appointment_id
	JOIN users u ON u.id = b.user_id`

type bookingRepository struct {
	BaseRepository
}

func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (
			user_id, appointment_id, triage_assessment_id, status, approval_status,
			treatment_category, special_requests, accessibility_needs, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`
	booking.CreatedAt = time.Now().UTC()
	booking.UpdatedAt = booking.CreatedAt

	err := sqlx.GetContext(ctx, r.q, &booking.ID, query,
		booking.UserID,
		booking.AppointmentID,
		booking.TriageAssessmentID,
		booking.Status,
		booking.ApprovalStatus,
		booking.TreatmentCategory,
		booking.SpecialRequests,
		booking.AccessibilityNeeds,
		booking.CreatedAt,
	)
	return mapError(err, "create booking")
}

func (r *bookingRepository) Get(ctx context.Context, id int64) (*model.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *bookingRepository) GetForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *bookingRepository) get(ctx context.Context, query string, id int64) (*model.Booking, error) {
	var booking model.Booking
	if err := sqlx.GetContext(ctx, r.q, &booking, query, id); err != nil {
		return nil, mapError(err, "get booking")
	}
	return &booking, nil
}

func (r *bookingRepository) HasActiveForAppointment(ctx context.Context, appointmentID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE appointment_id = $1 AND status IN ('pending_approval', 'approved')
		)
	`
	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, query, appointmentID); err != nil {
		return false, mapError(err, "check active booking")
	}
	return exists, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id int64, change model.StatusChange) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $2, approval_status = $2,
			approved_by = COALESCE($3, approved_by),
			approved_at = COALESCE($4, approved_at),
			updated_at = $5
		WHERE id = $1 AND status = $6
	`
	res, err := r.q.ExecContext(ctx, query, id, change.To, change.ApprovedBy, change.ApprovedAt, change.At, change.From)
	if err != nil {
		return nil, mapError(err, "update booking status")
	}
	if err := expectOne(res, "update booking status"); err != nil {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *bookingRepository) GetDetail(ctx context.Context, id int64) (*model.BookingDetail, error) {
	var detail model.BookingDetail
	if err := sqlx.GetContext(ctx, r.q, &detail, bookingDetailQuery+` WHERE b.id = $1`, id); err != nil {
		return nil, mapError(err, "get booking detail")
	}
	if err := r.attachTriage(ctx, []*model.BookingDetail{&detail}); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (r *bookingRepository) ListByPractice(ctx context.Context, practiceID int64, status model.BookingStatus) ([]*model.BookingDetail, error) {
	query := bookingDetailQuery + `
		WHERE a.practice_id = $1 AND b.status = $2
		ORDER BY a.appointment_date, a.appointment_time, b.id
	`
	var details []*model.BookingDetail
	if err := sqlx.SelectContext(ctx, r.q, &details, query, practiceID, status); err != nil {
		return nil, mapError(err, "list practice bookings")
	}
	return details, r.attachTriage(ctx, details)
}

func (r *bookingRepository) ListByUser(ctx context.Context, userID int64) ([]*model.BookingDetail, error) {
	query := bookingDetailQuery + `
		WHERE b.user_id = $1
		ORDER BY b.id DESC
	`
	var details []*model.BookingDetail
	if err := sqlx.SelectContext(ctx, r.q, &details, query, userID); err != nil {
		return nil, mapError(err, "list user bookings")
	}
	return details, r.attachTriage(ctx, details)
}

func (r *bookingRepository) RedactFreeText(ctx context.Context, userID int64, at time.Time) error {
	query := `
		UPDATE bookings
		SET special_requests = NULL, accessibility_needs = NULL, updated_at = $2
		WHERE user_id = $1
	`
	_, err := r.q.ExecContext(ctx, query, userID, at)
	return mapError(err, "redact bookings")
}

func (r *bookingRepository) attachTriage(ctx context.Context, details []*model.BookingDetail) error {
	triage := &triageRepository{r.BaseRepository}
	for _, d := range details {
		if d.TriageAssessmentID == nil {
			continue
		}
		t, err := triage.Get(ctx, *d.TriageAssessmentID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		d.Triage = t
	}
	return nil
}
