package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/auth"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
	"github.com/dentalbook/marketplace-api/pkg/security"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutDuration  = 30 * time.Minute
	defaultSessionTTL       = 24 * time.Hour

	msgInvalidCredentials = "invalid credentials"
)

type Config struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	SessionTTL       time.Duration
	// ConsentRetention is how long data is kept after GDPR consent.
	ConsentRetention time.Duration
}

type Service struct {
	store   repository.Store
	hasher  security.PasswordHasher
	jwtSvc  auth.JWTService
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(store repository.Store, hasher security.PasswordHasher, jwtSvc auth.JWTService,
	cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = defaultLockoutDuration
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:   store,
		hasher:  hasher,
		jwtSvc:  jwtSvc,
		cfg:     cfg,
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IsAccountLocked reports whether user is inside a lockout window at now.
func IsAccountLocked(user *model.User, now time.Time) bool {
	return user.LockedUntil != nil && now.Before(*user.LockedUntil)
}

func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	if res := security.ValidatePasswordStrength(req.Password); !res.Valid {
		fields := make([]errors.FieldError, 0, len(res.Errors))
		for _, msg := range res.Errors {
			fields = append(fields, errors.FieldError{Field: "password", Message: msg})
		}
		return nil, errors.Validation("password does not meet requirements", fields...)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := s.now()
	email := model.NormalizeEmail(req.Email)
	var user *model.User
	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		existing, err := r.Users().GetByEmail(ctx, email)
		switch {
		case err == nil && !existing.IsGuest:
			return errors.Conflict("email already registered", nil)
		case err == nil:
			// A guest who booked before registering keeps their bookings.
			if user, err = r.Users().GetForUpdate(ctx, existing.ID); err != nil {
				return err
			}
			if !user.IsGuest || user.IsErased() {
				return errors.Conflict("email already registered", nil)
			}
			user.IsGuest = false
		case stderrors.Is(err, repository.ErrNotFound):
			user = &model.User{Email: email}
		default:
			return err
		}

		user.PasswordHash = hash
		user.FirstName = req.FirstName
		user.LastName = req.LastName
		user.Phone = req.Phone
		user.UserType = req.UserType
		if req.GDPRConsent {
			user.RecordConsent(now, s.cfg.ConsentRetention)
		}

		if user.ID == 0 {
			err = r.Users().Create(ctx, user)
		} else {
			err = r.Users().Update(ctx, user)
		}
		if stderrors.Is(err, repository.ErrConflict) {
			return errors.Conflict("email already registered", err)
		}
		return err
	})
	if err != nil {
		return nil, wrap(err)
	}

	s.logger.Info("User registered", "user_id", user.ID, "user_type", string(user.UserType))
	return user, nil
}

// Login checks credentials and opens a session. Every credential failure
// returns the same error so callers cannot tell which accounts exist.
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	now := s.now()
	invalid := errors.Authentication(msgInvalidCredentials)

	user, err := s.store.Users().GetByEmail(ctx, model.NormalizeEmail(req.Email))
	if stderrors.Is(err, repository.ErrNotFound) {
		s.burnHash(req.Password)
		s.metrics.ObserveLogin("unknown_user")
		return nil, invalid
	}
	if err != nil {
		return nil, errors.Internal(err)
	}

	if user.IsGuest || user.IsErased() || user.PasswordHash == "" || user.UserType != req.UserType {
		s.burnHash(req.Password)
		s.metrics.ObserveLogin("rejected")
		return nil, invalid
	}

	if IsAccountLocked(user, now) {
		s.metrics.ObserveLogin("locked")
		s.logger.Warn("Login attempt on locked account", "user_id", user.ID)
		return nil, invalid
	}

	// Verification runs outside the transaction; the attempt is recorded
	// against the row as re-read under lock.
	verified := s.hasher.Verify(req.Password, user.PasswordHash)

	var outcome string
	err = s.store.WithTx(ctx, func(r repository.Repositories) error {
		current, err := r.Users().GetForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		if current.IsErased() || current.PasswordHash != user.PasswordHash {
			outcome = "rejected"
			return invalid
		}
		if IsAccountLocked(current, now) {
			outcome = "locked"
			return invalid
		}
		if current.LockedUntil != nil {
			// Lockout expired.
			current.LockedUntil = nil
			current.FailedAttempts = 0
		}

		if !verified {
			outcome = "bad_password"
			current.FailedAttempts++
			if current.FailedAttempts >= s.cfg.MaxLoginAttempts {
				until := now.Add(s.cfg.LockoutDuration)
				current.LockedUntil = &until
				s.logger.Warn("Account locked after repeated failures", "user_id", current.ID, "until", until)
			}
			if err := r.Users().Update(ctx, current); err != nil {
				return fmt.Errorf("record failed login: %w", err)
			}
			return nil
		}

		current.FailedAttempts = 0
		current.LockedUntil = nil
		current.LastLoginAt = &now
		if err := r.Users().Update(ctx, current); err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		user = current
		return nil
	})
	if outcome != "" {
		s.metrics.ObserveLogin(outcome)
	}
	if err != nil {
		return nil, wrap(err)
	}
	if !verified {
		return nil, invalid
	}

	token, _, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	jwtToken, expiresAt, err := s.jwtSvc.GenerateAccessToken(user.ID, string(user.UserType), token)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("sign token: %w", err))
	}

	s.metrics.ObserveLogin("success")
	return &model.LoginResponse{Token: jwtToken, ExpiresAt: expiresAt, User: user}, nil
}

// burnHash spends the same time as a real verification.
func (s *Service) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("dentalbook-timing-equaliser")
	})
	if s.dummyHash != "" {
		s.hasher.Verify(password, s.dummyHash)
	}
}

// CreateSession returns a fresh random session token. Only its hash is
// stored.
func (s *Service) CreateSession(ctx context.Context, userID int64) (string, *model.Session, error) {
	token, err := security.NewSessionToken()
	if err != nil {
		return "", nil, errors.Internal(err)
	}
	now := s.now()
	session := &model.Session{
		ID:        security.HashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return "", nil, errors.Internal(fmt.Errorf("create session: %w", err))
	}
	return token, session, nil
}

// ValidateSession returns the session's user, or nil when the token is
// unknown, expired, or belongs to an erased account. Expired sessions are
// deleted on sight.
func (s *Service) ValidateSession(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	id := security.HashToken(token)
	session, err := s.store.Sessions().Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if session.Expired(s.now()) {
		if err := s.store.Sessions().Delete(ctx, id); err != nil {
			s.logger.Error(err, "Failed to delete expired session", "user_id", session.UserID)
		}
		return nil, nil
	}

	user, err := s.store.Users().Get(ctx, session.UserID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if user.IsErased() {
		return nil, nil
	}
	return user, nil
}

// Authenticate resolves a bearer JWT to its user. The JWT must be valid
// and the session it was issued for must still exist.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*model.User, *auth.Claims, error) {
	claims, err := s.jwtSvc.ValidateToken(bearer)
	if err != nil {
		return nil, nil, errors.Authentication("invalid or expired token")
	}
	user, err := s.ValidateSession(ctx, claims.ID)
	if err != nil {
		return nil, nil, errors.Internal(err)
	}
	if user == nil || user.ID != claims.UserID {
		return nil, nil, errors.Authentication("session expired")
	}
	return user, claims, nil
}

// Logout ends the session the token was issued for.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	if err := s.store.Sessions().Delete(ctx, security.HashToken(sessionToken)); err != nil {
		return errors.Internal(err)
	}
	return nil
}

func wrap(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(err)
}
