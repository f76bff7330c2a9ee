package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dentalbook/marketplace-api/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned on a unique violation or when a conditional
	// update finds its precondition no longer holds.
	ErrConflict = errors.New("record conflict")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id int64) (*model.User, error)
		// GetForUpdate locks the row until the surrounding transaction ends.
		// Read-modify-write of a user must go through it.
		GetForUpdate(ctx context.Context, id int64) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
	}

	PracticeRepository interface {
		Create(ctx context.Context, practice *model.Practice) error
		Get(ctx context.Context, id int64) (*model.Practice, error)
		// List returns all practices, or the one carrying connectionTag
		// when it is non-empty.
		List(ctx context.Context, connectionTag string) ([]*model.Practice, error)
		// AddStaff links a user to a practice. Adding an existing link is a
		// no-op; an unknown practice or user is ErrNotFound.
		AddStaff(ctx context.Context, practiceID, userID int64) error
		IsStaff(ctx context.Context, practiceID, userID int64) (bool, error)
	}

	DentistRepository interface {
		Create(ctx context.Context, dentist *model.Dentist) error
		Get(ctx context.Context, id int64) (*model.Dentist, error)
		ListByPractice(ctx context.Context, practiceID int64) ([]*model.Dentist, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id int64) (*model.Appointment, error)
		// GetForUpdate locks the row until the surrounding transaction ends.
		GetForUpdate(ctx context.Context, id int64) (*model.Appointment, error)
		// ListAvailable filters by practice and, when date is non-empty, by
		// exact calendar day.
		ListAvailable(ctx context.Context, practiceID int64, date string) ([]*model.Appointment, error)
		// MarkBooked flips an available slot to booked. ErrConflict when the
		// slot is no longer available.
		MarkBooked(ctx context.Context, id, userID int64, at time.Time) (*model.Appointment, error)
	}

	BookingRepository interface {
		Create(ctx context.Context, booking *model.Booking) error
		Get(ctx context.Context, id int64) (*model.Booking, error)
		GetForUpdate(ctx context.Context, id int64) (*model.Booking, error)
		HasActiveForAppointment(ctx context.Context, appointmentID int64) (bool, error)
		// UpdateStatus applies change only while the booking is still in
		// change.From. ErrConflict otherwise.
		UpdateStatus(ctx context.Context, id int64, change model.StatusChange) (*model.Booking, error)
		GetDetail(ctx context.Context, id int64) (*model.BookingDetail, error)
		ListByPractice(ctx context.Context, practiceID int64, status model.BookingStatus) ([]*model.BookingDetail, error)
		ListByUser(ctx context.Context, userID int64) ([]*model.BookingDetail, error)
		// RedactFreeText clears patient supplied text on every booking of a user.
		RedactFreeText(ctx context.Context, userID int64, at time.Time) error
	}

	TriageRepository interface {
		Create(ctx context.Context, assessment *model.TriageAssessment) error
		Get(ctx context.Context, id int64) (*model.TriageAssessment, error)
	}

	SessionRepository interface {
		Create(ctx context.Context, session *model.Session) error
		Get(ctx context.Context, id string) (*model.Session, error)
		Delete(ctx context.Context, id string) error
		DeleteByUser(ctx context.Context, userID int64) error
	}

	AuditRepository interface {
		Create(ctx context.Context, entry *model.AuditLog) error
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ListPending returns pending events due at or before now, oldest first.
		ListPending(ctx context.Context, limit int, now time.Time) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
		// MarkFailed records a failed attempt. A nil retryAt makes the
		// failure final.
		MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAt *time.Time) error
	}
)

// Repositories is the set of repositories sharing one unit of work.
type Repositories interface {
	Users() UserRepository
	Practices() PracticeRepository
	Dentists() DentistRepository
	Appointments() AppointmentRepository
	Bookings() BookingRepository
	Triage() TriageRepository
	Sessions() SessionRepository
	Audit() AuditRepository
	Outbox() OutboxRepository
}

// Store is a storage backend. WithTx runs fn atomically: every write made
// through the Repositories passed to fn is committed together, or not at all
// when fn returns an error.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
