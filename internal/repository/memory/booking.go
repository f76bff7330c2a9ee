package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

type bookingRepository struct {
	repos
}

func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	return r.a.update(ctx, func(s *state) error {
		if _, ok := s.appointments[booking.AppointmentID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := s.users[booking.UserID]; !ok {
			return repository.ErrNotFound
		}
		// Mirrors the partial unique index of the postgres schema.
		if !booking.Status.Terminal() && hasActive(s, booking.AppointmentID) {
			return repository.ErrConflict
		}
		booking.ID = s.nextID()
		booking.CreatedAt = r.now()
		booking.UpdatedAt = booking.CreatedAt
		s.bookings[booking.ID] = *booking
		return nil
	})
}

func (r *bookingRepository) Get(ctx context.Context, id int64) (*model.Booking, error) {
	var out model.Booking
	err := r.a.view(ctx, func(s *state) error {
		b, ok := s.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *bookingRepository) GetForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	return r.Get(ctx, id)
}

func (r *bookingRepository) HasActiveForAppointment(ctx context.Context, appointmentID int64) (bool, error) {
	var found bool
	err := r.a.view(ctx, func(s *state) error {
		found = hasActive(s, appointmentID)
		return nil
	})
	return found, err
}

func hasActive(s *state, appointmentID int64) bool {
	for _, b := range s.bookings {
		if b.AppointmentID == appointmentID && b.Status != model.BookingStatusRejected {
			return true
		}
	}
	return false
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id int64, change model.StatusChange) (*model.Booking, error) {
	var out model.Booking
	err := r.a.update(ctx, func(s *state) error {
		b, ok := s.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		if b.Status != change.From {
			return repository.ErrConflict
		}
		change.Apply(&b)
		s.bookings[id] = b
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *bookingRepository) GetDetail(ctx context.Context, id int64) (*model.BookingDetail, error) {
	var out *model.BookingDetail
	err := r.a.view(ctx, func(s *state) error {
		b, ok := s.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = detail(s, b)
		return nil
	})
	return out, err
}

func (r *bookingRepository) ListByPractice(ctx context.Context, practiceID int64, status model.BookingStatus) ([]*model.BookingDetail, error) {
	var out []*model.BookingDetail
	err := r.a.view(ctx, func(s *state) error {
		for _, b := range s.bookings {
			if b.Status != status {
				continue
			}
			if a, ok := s.appointments[b.AppointmentID]; !ok || a.PracticeID != practiceID {
				continue
			}
			out = append(out, detail(s, b))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AppointmentDate != b.AppointmentDate {
			return a.AppointmentDate < b.AppointmentDate
		}
		if a.AppointmentTime != b.AppointmentTime {
			return a.AppointmentTime < b.AppointmentTime
		}
		return a.ID < b.ID
	})
	return out, err
}

func (r *bookingRepository) ListByUser(ctx context.Context, userID int64) ([]*model.BookingDetail, error) {
	var out []*model.BookingDetail
	err := r.a.view(ctx, func(s *state) error {
		for _, b := range s.bookings {
			if b.UserID == userID {
				out = append(out, detail(s, b))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r *bookingRepository) RedactFreeText(ctx context.Context, userID int64, at time.Time) error {
	return r.a.update(ctx, func(s *state) error {
		for id, b := range s.bookings {
			if b.UserID != userID {
				continue
			}
			b.SpecialRequests = nil
			b.AccessibilityNeeds = nil
			b.UpdatedAt = at
			s.bookings[id] = b
		}
		return nil
	})
}

func detail(s *state, b model.Booking) *model.BookingDetail {
	d := &model.BookingDetail{Booking: b}
	if a, ok := s.appointments[b.AppointmentID]; ok {
		d.PracticeID = a.PracticeID
		d.DentistID = a.DentistID
		d.TreatmentID = a.TreatmentID
		d.AppointmentDate = a.AppointmentDate
		d.AppointmentTime = a.AppointmentTime
		d.Duration = a.Duration
	}
	if u, ok := s.users[b.UserID]; ok {
		d.PatientFirstName = u.FirstName
		d.PatientLastName = u.LastName
		d.PatientEmail = u.Email
		d.PatientPhone = u.Phone
	}
	if b.TriageAssessmentID != nil {
		if t, ok := s.triage[*b.TriageAssessmentID]; ok {
			d.Triage = &t
		}
	}
	return d
}
