package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

type appointmentRepository struct {
	repos
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	return r.a.update(ctx, func(s *state) error {
		if _, ok := s.practices[appointment.PracticeID]; !ok {
			return repository.ErrNotFound
		}
		appointment.ID = s.nextID()
		appointment.CreatedAt = r.now()
		appointment.UpdatedAt = appointment.CreatedAt
		s.appointments[appointment.ID] = *appointment
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	var out model.Appointment
	err := r.a.view(ctx, func(s *state) error {
		a, ok := s.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate needs no extra locking: transactions hold the store lock.
func (r *appointmentRepository) GetForUpdate(ctx context.Context, id int64) (*model.Appointment, error) {
	return r.Get(ctx, id)
}

func (r *appointmentRepository) ListAvailable(ctx context.Context, practiceID int64, date string) ([]*model.Appointment, error) {
	var out []*model.Appointment
	err := r.a.view(ctx, func(s *state) error {
		for _, a := range s.appointments {
			if a.PracticeID != practiceID || !a.IsAvailable() {
				continue
			}
			if date != "" && a.AppointmentDate != date {
				continue
			}
			a := a
			out = append(out, &a)
		}
		return nil
	})
	sortAppointments(out)
	return out, err
}

func (r *appointmentRepository) MarkBooked(ctx context.Context, id, userID int64, at time.Time) (*model.Appointment, error) {
	var out model.Appointment
	err := r.a.update(ctx, func(s *state) error {
		a, ok := s.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		if !a.IsAvailable() {
			return repository.ErrConflict
		}
		a.Status = model.AppointmentStatusBooked
		a.UserID = &userID
		a.UpdatedAt = at
		s.appointments[id] = a
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func sortAppointments(list []*model.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.AppointmentDate != b.AppointmentDate {
			return a.AppointmentDate < b.AppointmentDate
		}
		if a.AppointmentTime != b.AppointmentTime {
			return a.AppointmentTime < b.AppointmentTime
		}
		return a.ID < b.ID
	})
}
