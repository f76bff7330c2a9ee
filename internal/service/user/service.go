package user

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/logger"
)

// exportAuditLimit caps the audit trail included in a data export.
const exportAuditLimit = 1000

// BookingLister returns a patient's bookings with clinical data readable.
type BookingLister interface {
	ListForUser(ctx context.Context, userID int64) ([]*model.BookingDetail, error)
}

type Service struct {
	store     repository.Store
	bookings  BookingLister
	retention time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(store repository.Store, bookings BookingLister, retention time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		bookings:  bookings,
		retention: retention,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.store.Users().Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("user", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return u, nil
}

// UpdateConsent records or withdraws GDPR consent.
func (s *Service) UpdateConsent(ctx context.Context, userID int64, given bool) (*model.User, error) {
	var u *model.User
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		var err error
		u, err = r.Users().GetForUpdate(ctx, userID)
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("user", err)
		}
		if err != nil {
			return err
		}
		if u.IsErased() {
			return errors.InvalidState("account has been erased")
		}
		if given {
			u.RecordConsent(s.now(), s.retention)
		} else {
			u.RevokeConsent()
		}
		if err := r.Users().Update(ctx, u); err != nil {
			return fmt.Errorf("update consent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}
	s.logger.Info("GDPR consent updated", "user_id", userID, "given", given)
	return u, nil
}

// Erase removes a user's personal data. Bookings and audit entries are
// kept for clinical record keeping but the booking free text is cleared and
// the user row no longer identifies anyone. Erasing twice is a no-op.
func (s *Service) Erase(ctx context.Context, userID int64) error {
	now := s.now()
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		u, err := r.Users().GetForUpdate(ctx, userID)
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("user", err)
		}
		if err != nil {
			return err
		}
		if u.IsErased() {
			return nil
		}

		u.Email = fmt.Sprintf("erased-%d@%s", u.ID, model.ErasedEmailDomain)
		u.FirstName = ""
		u.LastName = ""
		u.Phone = nil
		u.PasswordHash = ""
		u.FailedAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = nil
		u.RevokeConsent()
		u.ErasedAt = &now
		if err := r.Users().Update(ctx, u); err != nil {
			return fmt.Errorf("anonymise user: %w", err)
		}
		if err := r.Sessions().DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := r.Bookings().RedactFreeText(ctx, userID, now); err != nil {
			return fmt.Errorf("redact bookings: %w", err)
		}
		return nil
	})
	if err != nil {
		return wrap(err)
	}
	s.logger.Info("User data erased", "user_id", userID)
	return nil
}

// Export returns everything held about a user.
func (s *Service) Export(ctx context.Context, userID int64) (*model.UserExport, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	trail, err := s.store.Audit().List(ctx, model.AuditFilter{UserID: &userID, Limit: exportAuditLimit})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list audit trail: %w", err))
	}
	if trail == nil {
		trail = []*model.AuditLog{}
	}
	return &model.UserExport{
		User:       u,
		Bookings:   bookings,
		AuditTrail: trail,
		ExportedAt: s.now(),
	}, nil
}

func wrap(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(err)
}
