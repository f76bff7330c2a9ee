// Package notification tells patients about decisions on their bookings.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dentalbook/marketplace-api/internal/email"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/messaging"
)

// Channels are the broker channels the notifier consumes.
var Channels = []string{model.EventBookingApproved, model.EventBookingRejected}

type Service struct {
	store  repository.Repositories
	mailer email.Service
	logger *logger.Logger
}

func NewService(store repository.Repositories, mailer email.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, mailer: mailer, logger: log}
}

// HandleEvent is a messaging.Handler for booking decision events.
func (s *Service) HandleEvent(ctx context.Context, msg messaging.Message) error {
	var event model.BookingEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode %s event: %w", msg.Channel, err)
	}

	var verb string
	switch msg.Channel {
	case model.EventBookingApproved:
		verb = "confirmed"
	case model.EventBookingRejected:
		verb = "declined"
	default:
		return nil
	}

	user, err := s.store.Users().Get(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", event.UserID, err)
	}
	if !deliverable(user) {
		s.logger.Debug("Skipping notification", "booking_id", event.BookingID, "user_id", user.ID)
		return nil
	}
	appt, err := s.store.Appointments().Get(ctx, event.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment %d: %w", event.AppointmentID, err)
	}
	practice, err := s.store.Practices().Get(ctx, appt.PracticeID)
	if err != nil {
		return fmt.Errorf("load practice %d: %w", appt.PracticeID, err)
	}

	m := compose(user, appt, practice, verb)
	if err := s.mailer.Send(ctx, m); err != nil {
		return err
	}
	s.logger.Info("Booking notification sent", "booking_id", event.BookingID, "status", string(event.Status))
	return nil
}

func deliverable(u *model.User) bool {
	if u.IsErased() || u.Email == "" {
		return false
	}
	for _, d := range []string{model.GuestEmailDomain, model.ErasedEmailDomain} {
		if strings.HasSuffix(u.Email, "@"+d) {
			return false
		}
	}
	return true
}

func compose(u *model.User, a *model.Appointment, p *model.Practice, verb string) email.Message {
	name := strings.TrimSpace(u.FirstName)
	if name == "" {
		name = "there"
	}
	subject := fmt.Sprintf("Your appointment at %s has been %s", p.Name, verb)
	text := fmt.Sprintf("Hi %s,\n\nYour booking for %s at %s with %s has been %s.\n\n%s\n",
		name, a.AppointmentDate, a.AppointmentTime, p.Name, verb, p.Address)
	return email.Message{To: u.Email, Subject: subject, Text: text}
}
