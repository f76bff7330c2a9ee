package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/internal/service/practice"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/logger"
)

const (
	MinDuration = 5
	MaxDuration = 8 * 60
)

type Service struct {
	store  repository.Store
	logger *logger.Logger
	now    func() time.Time
}

func NewService(store repository.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListAvailable returns a practice's open slots, restricted to one
// calendar day when date is set.
func (s *Service) ListAvailable(ctx context.Context, practiceID int64, date string) ([]*model.Appointment, error) {
	if date != "" {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			return nil, errors.Validation("invalid date",
				errors.FieldError{Field: "date", Message: "must be a date in YYYY-MM-DD format"})
		}
	}
	list, err := s.store.Appointments().ListAvailable(ctx, practiceID, date)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list available appointments: %w", err))
	}
	if list == nil {
		list = []*model.Appointment{}
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	a, err := s.store.Appointments().Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return a, nil
}

// ReserveSlot books an available slot for userID in its own transaction.
func (s *Service) ReserveSlot(ctx context.Context, appointmentID, userID int64) (*model.Appointment, error) {
	var out *model.Appointment
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		var err error
		out, err = Reserve(ctx, r.Appointments(), appointmentID, userID, s.now())
		return err
	})
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.Internal(err)
	}
	return out, nil
}

// Reserve flips an available slot to booked by userID through repo, so it
// can join a caller's transaction. The slot must still be available.
func Reserve(ctx context.Context, repo repository.AppointmentRepository, appointmentID, userID int64, at time.Time) (*model.Appointment, error) {
	a, err := repo.MarkBooked(ctx, appointmentID, userID, at)
	switch {
	case err == nil:
		return a, nil
	case stderrors.Is(err, repository.ErrNotFound):
		return nil, errors.NotFound("appointment", err)
	case stderrors.Is(err, repository.ErrConflict):
		return nil, errors.Conflict("appointment is no longer available", err)
	default:
		return nil, fmt.Errorf("reserve appointment %d: %w", appointmentID, err)
	}
}

// CreateSlot publishes a new available slot at a practice. Only the
// practice's staff may do so.
func (s *Service) CreateSlot(ctx context.Context, practiceID, callerID int64, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	if err := practice.RequireStaff(ctx, s.store.Practices(), practiceID, callerID); err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.Internal(err)
	}

	var fields []errors.FieldError
	if _, err := time.Parse(model.DateLayout, req.AppointmentDate); err != nil {
		fields = append(fields, errors.FieldError{Field: "appointmentDate", Message: "must be a date in YYYY-MM-DD format"})
	}
	if _, err := time.Parse(model.TimeLayout, req.AppointmentTime); err != nil {
		fields = append(fields, errors.FieldError{Field: "appointmentTime", Message: "must be a time in HH:MM format"})
	}
	if req.Duration < MinDuration || req.Duration > MaxDuration {
		fields = append(fields, errors.FieldError{Field: "duration", Message: fmt.Sprintf("must be between %d and %d minutes", MinDuration, MaxDuration)})
	}
	if len(fields) > 0 {
		return nil, errors.Validation("invalid appointment", fields...)
	}

	dentist, err := s.store.Dentists().Get(ctx, req.DentistID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("dentist", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if dentist.PracticeID != practiceID {
		return nil, errors.Validation("dentist does not work at this practice",
			errors.FieldError{Field: "dentistId", Message: "must belong to the practice"})
	}

	appt := &model.Appointment{
		PracticeID:      practiceID,
		DentistID:       req.DentistID,
		TreatmentID:     req.TreatmentID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		Duration:        req.Duration,
		Status:          model.AppointmentStatusAvailable,
	}
	if err := s.store.Appointments().Create(ctx, appt); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("practice", err)
		}
		return nil, errors.Internal(fmt.Errorf("create appointment: %w", err))
	}

	s.logger.Info("Appointment slot created",
		"appointment_id", appt.ID,
		"practice_id", practiceID,
		"date", appt.AppointmentDate)
	return appt, nil
}
