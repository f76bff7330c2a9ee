// Package booking drives bookings through their lifecycle:
//
//	pending_approval -> approved | rejected
//
// Both decisions are final. Approval books the underlying slot in the same
// transaction.
package booking

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/internal/service/appointment"
	"github.com/dentalbook/marketplace-api/internal/service/practice"
	"github.com/dentalbook/marketplace-api/internal/service/triage"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
	"github.com/dentalbook/marketplace-api/pkg/security"
)

type Service struct {
	store     repository.Store
	triage    *triage.Service
	logger    *logger.Logger
	metrics   *metrics.Metrics
	retention time.Duration
	now       func() time.Time
}

func NewService(store repository.Store, triageSvc *triage.Service, retention time.Duration,
	log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		triage:    triageSvc,
		logger:    log,
		metrics:   m,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitInput is a booking request plus what the HTTP layer knows about
// the caller.
type SubmitInput struct {
	model.SubmitBookingRequest
	// GDPRConsent is set when the request carried the consent header.
	GDPRConsent bool
	// Caller is the authenticated user, nil for anonymous requests.
	Caller *model.User
}

// Submit creates a pending booking. The slot is only checked here; it is
// booked when the booking is approved. A slot holds at most one pending or
// approved booking.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*model.Booking, error) {
	if in.Triage != nil {
		if err := s.triage.Validate(in.Triage); err != nil {
			s.metrics.ObserveBooking("submit", "invalid")
			return nil, err
		}
	}
	if in.UserID == nil && in.Guest == nil {
		s.metrics.ObserveBooking("submit", "invalid")
		return nil, errors.Validation("guest details are required when userId is absent",
			errors.FieldError{Field: "guest", Message: "field is required"})
	}

	now := s.now()
	var booking *model.Booking
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		user, created, err := s.resolveUser(ctx, r, in)
		if err != nil {
			return err
		}

		appt, err := r.Appointments().GetForUpdate(ctx, in.AppointmentID)
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("appointment", err)
		}
		if err != nil {
			return err
		}
		if in.Caller != nil && in.Caller.ID != user.ID {
			if err := practice.RequireStaff(ctx, r.Practices(), appt.PracticeID, in.Caller.ID); err != nil {
				return err
			}
		}
		if !appt.IsAvailable() {
			return errors.Conflict("appointment is no longer available", nil)
		}
		active, err := r.Bookings().HasActiveForAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if active {
			return errors.Conflict("appointment already has a booking awaiting a decision", nil)
		}

		booking = &model.Booking{
			UserID:             user.ID,
			AppointmentID:      appt.ID,
			Status:             model.BookingStatusPending,
			TreatmentCategory:  in.TreatmentCategory,
			SpecialRequests:    in.SpecialRequests,
			AccessibilityNeeds: in.AccessibilityNeeds,
		}
		if in.Triage != nil {
			assessment, err := s.triage.CreateAssessment(ctx, r.Triage(), in.Triage)
			if err != nil {
				return err
			}
			booking.TriageAssessmentID = &assessment.ID
		}
		if err := r.Bookings().Create(ctx, booking); err != nil {
			if stderrors.Is(err, repository.ErrConflict) {
				return errors.Conflict("appointment already has a booking awaiting a decision", err)
			}
			return fmt.Errorf("create booking: %w", err)
		}

		// Consent only counts when it comes from the person it is about.
		self := in.Caller != nil && in.Caller.ID == user.ID
		if in.GDPRConsent && !user.GDPRConsentGiven && (self || created) {
			user.RecordConsent(now, s.retention)
			if err := r.Users().Update(ctx, user); err != nil {
				return fmt.Errorf("record consent: %w", err)
			}
		}

		return s.emit(ctx, r, model.EventBookingSubmitted, booking, nil, now)
	})
	if err != nil {
		s.metrics.ObserveBooking("submit", outcome(err))
		return nil, wrap(err)
	}

	s.metrics.ObserveBooking("submit", "success")
	s.logger.Info("Booking submitted",
		"booking_id", booking.ID,
		"appointment_id", booking.AppointmentID,
		"user_id", booking.UserID)
	return booking, nil
}

// resolveUser returns the patient the booking is for and whether it was
// created by this request. Booking for an existing account requires a
// caller allowed to act for it; guests never take over a registered account.
func (s *Service) resolveUser(ctx context.Context, r repository.Repositories, in SubmitInput) (*model.User, bool, error) {
	if in.UserID != nil {
		switch {
		case in.Caller == nil:
			return nil, false, errors.Authentication("sign in to book for an existing account")
		case !in.Caller.IsDentist() && in.Caller.ID != *in.UserID:
			return nil, false, errors.Authorization("cannot book on behalf of another user")
		}
		user, err := r.Users().GetForUpdate(ctx, *in.UserID)
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, false, errors.NotFound("user", err)
		}
		if err != nil {
			return nil, false, err
		}
		if user.IsErased() {
			return nil, false, errors.NotFound("user", nil)
		}
		return user, false, nil
	}

	g := in.Guest
	email := model.NormalizeEmail(g.Email)
	if email != "" {
		existing, err := r.Users().GetByEmail(ctx, email)
		switch {
		case err == nil && !existing.IsGuest:
			return nil, false, errors.Conflict("email belongs to a registered account; sign in to book", nil)
		case err == nil && !existing.IsErased():
			user, err := r.Users().GetForUpdate(ctx, existing.ID)
			if err != nil {
				return nil, false, err
			}
			return user, false, nil
		case err != nil && !stderrors.Is(err, repository.ErrNotFound):
			return nil, false, err
		}
	} else {
		suffix, err := security.RandomHex(8)
		if err != nil {
			return nil, false, err
		}
		email = fmt.Sprintf("guest-%s@%s", suffix, model.GuestEmailDomain)
	}

	guest := &model.User{
		Email:     email,
		FirstName: g.FirstName,
		LastName:  g.LastName,
		Phone:     g.Phone,
		UserType:  model.UserTypePatient,
		IsGuest:   true,
	}
	if err := r.Users().Create(ctx, guest); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			return nil, false, errors.Conflict("email already registered", err)
		}
		return nil, false, fmt.Errorf("create guest user: %w", err)
	}
	s.logger.Debug("Guest user created", "user_id", guest.ID)
	return guest, true, nil
}

// Approve accepts a pending booking and books its slot for the patient.
// Of two concurrent approvals exactly one succeeds.
func (s *Service) Approve(ctx context.Context, bookingID, approverID int64) (*model.Booking, error) {
	now := s.now()
	var out *model.Booking
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		b, err := s.lockPending(ctx, r, bookingID, approverID)
		if err != nil {
			return err
		}
		if _, err := appointment.Reserve(ctx, r.Appointments(), b.AppointmentID, b.UserID, now); err != nil {
			return err
		}
		out, err = s.decide(ctx, r, b, model.BookingStatusApproved, approverID, now)
		if err != nil {
			return err
		}
		return s.emit(ctx, r, model.EventBookingApproved, out, &approverID, now)
	})
	if err != nil {
		s.metrics.ObserveBooking("approve", outcome(err))
		return nil, wrap(err)
	}

	s.metrics.ObserveBooking("approve", "success")
	s.logger.Info("Booking approved", "booking_id", out.ID, "approved_by", approverID)
	return out, nil
}

// Reject declines a pending booking. The slot is left untouched.
func (s *Service) Reject(ctx context.Context, bookingID, approverID int64) (*model.Booking, error) {
	now := s.now()
	var out *model.Booking
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		b, err := s.lockPending(ctx, r, bookingID, approverID)
		if err != nil {
			return err
		}
		out, err = s.decide(ctx, r, b, model.BookingStatusRejected, approverID, now)
		if err != nil {
			return err
		}
		return s.emit(ctx, r, model.EventBookingRejected, out, &approverID, now)
	})
	if err != nil {
		s.metrics.ObserveBooking("reject", outcome(err))
		return nil, wrap(err)
	}

	s.metrics.ObserveBooking("reject", "success")
	s.logger.Info("Booking rejected", "booking_id", out.ID, "rejected_by", approverID)
	return out, nil
}

// lockPending locks a booking the decider may act on. Only staff of the
// slot's practice may decide, and they learn nothing about other bookings.
func (s *Service) lockPending(ctx context.Context, r repository.Repositories, id, deciderID int64) (*model.Booking, error) {
	b, err := r.Bookings().GetForUpdate(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("booking", err)
	}
	if err != nil {
		return nil, err
	}
	slot, err := r.Appointments().Get(ctx, b.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load booking slot: %w", err)
	}
	if err := practice.RequireStaff(ctx, r.Practices(), slot.PracticeID, deciderID); err != nil {
		if errors.IsCode(err, errors.ErrAuthorization) {
			return nil, errors.NotFound("booking", nil)
		}
		return nil, err
	}
	if !b.IsPending() {
		return nil, errors.InvalidState(fmt.Sprintf("booking is %s, only pending bookings can be decided", b.Status))
	}
	return b, nil
}

func (s *Service) decide(ctx context.Context, r repository.Repositories, b *model.Booking,
	to model.BookingStatus, deciderID int64, now time.Time) (*model.Booking, error) {
	updated, err := r.Bookings().UpdateStatus(ctx, b.ID, model.StatusChange{
		From:       model.BookingStatusPending,
		To:         to,
		ApprovedBy: &deciderID,
		ApprovedAt: &now,
		At:         now,
	})
	if stderrors.Is(err, repository.ErrConflict) {
		return nil, errors.InvalidState("booking was decided concurrently")
	}
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	return updated, nil
}

func (s *Service) emit(ctx context.Context, r repository.Repositories, eventType string,
	b *model.Booking, decidedBy *int64, now time.Time) error {
	event, err := model.NewBookingEvent(eventType, b, decidedBy, now)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	if err := r.Outbox().Create(ctx, event); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}
	return nil
}

// Get returns a booking to its patient or to staff of its practice.
// Anyone else is told it does not exist.
func (s *Service) Get(ctx context.Context, id int64, caller *model.User) (*model.BookingDetail, error) {
	d, err := s.store.Bookings().GetDetail(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("booking", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if caller == nil {
		return nil, errors.NotFound("booking", nil)
	}
	if d.UserID != caller.ID {
		if !caller.IsDentist() {
			return nil, errors.NotFound("booking", nil)
		}
		if err := practice.RequireStaff(ctx, s.store.Practices(), d.PracticeID, caller.ID); err != nil {
			if errors.IsCode(err, errors.ErrAuthorization) {
				return nil, errors.NotFound("booking", nil)
			}
			return nil, wrap(err)
		}
	}
	if err := s.reveal(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListPending(ctx context.Context, practiceID, callerID int64) ([]*model.BookingDetail, error) {
	return s.listByPractice(ctx, practiceID, callerID, model.BookingStatusPending)
}

func (s *Service) ListApproved(ctx context.Context, practiceID, callerID int64) ([]*model.BookingDetail, error) {
	return s.listByPractice(ctx, practiceID, callerID, model.BookingStatusApproved)
}

func (s *Service) listByPractice(ctx context.Context, practiceID, callerID int64, status model.BookingStatus) ([]*model.BookingDetail, error) {
	if err := practice.RequireStaff(ctx, s.store.Practices(), practiceID, callerID); err != nil {
		return nil, wrap(err)
	}
	list, err := s.store.Bookings().ListByPractice(ctx, practiceID, status)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list %s bookings: %w", status, err))
	}
	return s.revealAll(list)
}

// ListForUser returns a patient's bookings, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*model.BookingDetail, error) {
	list, err := s.store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list user bookings: %w", err))
	}
	return s.revealAll(list)
}

func (s *Service) revealAll(list []*model.BookingDetail) ([]*model.BookingDetail, error) {
	if list == nil {
		return []*model.BookingDetail{}, nil
	}
	for _, d := range list {
		if err := s.reveal(d); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *Service) reveal(d *model.BookingDetail) error {
	if d.Triage == nil {
		return nil
	}
	t, err := s.triage.Reveal(d.Triage)
	if err != nil {
		return err
	}
	d.Triage = t
	return nil
}

func outcome(err error) string {
	appErr, ok := errors.As(err)
	if !ok {
		return "error"
	}
	switch appErr.Code {
	case errors.ErrNotFound:
		return "not_found"
	case errors.ErrInvalidState:
		return "invalid_state"
	case errors.ErrConflict:
		return "conflict"
	case errors.ErrValidation:
		return "invalid"
	default:
		return "error"
	}
}

func wrap(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(err)
}
