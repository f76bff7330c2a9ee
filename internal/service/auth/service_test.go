package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/internal/repository/memory"
	"github.com/dentalbook/marketplace-api/pkg/auth"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/security"
)

const strongPassword = "Zq8!nightOwl"

type testEnv struct {
	svc   *Service
	store *memory.Store
	clock *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithHasher(t, security.NewBcryptHasher(bcrypt.MinCost))
}

func newTestEnvWithHasher(t *testing.T, hasher security.PasswordHasher) *testEnv {
	t.Helper()
	store := memory.New()
	jwtSvc, err := auth.NewJWTService("test-secret", time.Hour)
	require.NoError(t, err)
	svc := NewService(store, hasher, jwtSvc, Config{
		ConsentRetention: 7 * 365 * 24 * time.Hour,
	}, nil, nil)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return &testEnv{svc: svc, store: store, clock: &clock}
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func (e *testEnv) register(t *testing.T, email string, userType model.UserType) *model.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), model.RegisterRequest{
		Email:     email,
		Password:  strongPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
		UserType:  userType,
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.svc.Register(ctx, model.RegisterRequest{
		Email:       " Ada@Example.com ",
		Password:    strongPassword,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		UserType:    model.UserTypePatient,
		GDPRConsent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.NotEqual(t, strongPassword, u.PasswordHash)
	assert.True(t, u.GDPRConsentGiven)
	require.NotNil(t, u.DataRetentionDate)
	assert.True(t, u.DataRetentionDate.After(*env.clock))

	_, err = env.svc.Register(ctx, model.RegisterRequest{
		Email: "ada@example.com", Password: strongPassword, FirstName: "A", LastName: "B", UserType: model.UserTypePatient,
	})
	assert.True(t, errors.IsCode(err, errors.ErrConflict))

	_, err = env.svc.Register(ctx, model.RegisterRequest{
		Email: "weak@example.com", Password: "password", FirstName: "A", LastName: "B", UserType: model.UserTypePatient,
	})
	require.True(t, errors.IsCode(err, errors.ErrValidation))
	appErr, _ := errors.As(err)
	assert.NotEmpty(t, appErr.Fields)
}

func TestRegisterUpgradesGuest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := &model.User{Email: "guest@example.com", FirstName: "G", UserType: model.UserTypePatient, IsGuest: true}
	require.NoError(t, env.store.Users().Create(ctx, guest))

	u := env.register(t, "guest@example.com", model.UserTypePatient)
	assert.Equal(t, guest.ID, u.ID)
	assert.False(t, u.IsGuest)
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Strong by composition but past the bcrypt input limit.
	long := strings.Repeat(strongPassword, 7)
	require.Greater(t, len(long), security.MaxPasswordBytes)

	_, err := env.svc.Register(ctx, model.RegisterRequest{
		Email: "long@example.com", Password: long, FirstName: "A", LastName: "B", UserType: model.UserTypePatient,
	})
	require.True(t, errors.IsCode(err, errors.ErrValidation), "got %v", err)
	appErr, _ := errors.As(err)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "password", appErr.Fields[0].Field)

	_, err = env.store.Users().GetByEmail(ctx, "long@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "p@example.com", model.UserTypePatient)

	resp, err := env.svc.Login(ctx, model.LoginRequest{Email: "P@example.com", Password: strongPassword, UserType: model.UserTypePatient})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, u.ID, resp.User.ID)

	authed, claims, err := env.svc.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, authed.ID)
	assert.Equal(t, "patient", claims.UserType)

	require.NoError(t, env.svc.Logout(ctx, claims.ID))
	_, _, err = env.svc.Authenticate(ctx, resp.Token)
	assert.True(t, errors.IsCode(err, errors.ErrAuthentication))
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "d@example.com", model.UserTypeDentist)

	cases := []model.LoginRequest{
		{Email: "nobody@example.com", Password: strongPassword, UserType: model.UserTypePatient},
		{Email: "d@example.com", Password: "wrong", UserType: model.UserTypeDentist},
		{Email: "d@example.com", Password: strongPassword, UserType: model.UserTypePatient},
	}
	for _, req := range cases {
		_, err := env.svc.Login(ctx, req)
		require.Error(t, err)
		appErr, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrAuthentication, appErr.Code)
		assert.Equal(t, "invalid credentials", appErr.Message)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "p@example.com", model.UserTypePatient)
	bad := model.LoginRequest{Email: "p@example.com", Password: "nope", UserType: model.UserTypePatient}
	good := model.LoginRequest{Email: "p@example.com", Password: strongPassword, UserType: model.UserTypePatient}

	for i := 0; i < 5; i++ {
		_, err := env.svc.Login(ctx, bad)
		require.Error(t, err)
	}
	stored, err := env.store.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, IsAccountLocked(stored, *env.clock))

	_, err = env.svc.Login(ctx, good)
	assert.True(t, errors.IsCode(err, errors.ErrAuthentication), "locked account rejects correct password")

	env.advance(29 * time.Minute)
	_, err = env.svc.Login(ctx, good)
	assert.Error(t, err)

	env.advance(2 * time.Minute)
	_, err = env.svc.Login(ctx, good)
	require.NoError(t, err)

	stored, err = env.store.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
}

// barrierHasher holds every Verify call until n of them are in flight.
type barrierHasher struct {
	security.PasswordHasher
	arrived sync.WaitGroup
}

func (h *barrierHasher) Verify(password, hash string) bool {
	h.arrived.Done()
	h.arrived.Wait()
	return h.PasswordHasher.Verify(password, hash)
}

func TestConcurrentFailuresStillLock(t *testing.T) {
	const attempts = 20
	hasher := &barrierHasher{PasswordHasher: security.NewBcryptHasher(bcrypt.MinCost)}
	hasher.arrived.Add(attempts)
	env := newTestEnvWithHasher(t, hasher)
	ctx := context.Background()
	u := env.register(t, "p@example.com", model.UserTypePatient)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Login(ctx, model.LoginRequest{
				Email: "p@example.com", Password: fmt.Sprintf("wrong-%d", i), UserType: model.UserTypePatient,
			})
			assert.True(t, errors.IsCode(err, errors.ErrAuthentication))
		}(i)
	}
	wg.Wait()

	stored, err := env.store.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, IsAccountLocked(stored, *env.clock))
	assert.Equal(t, 5, stored.FailedAttempts)
}

// pausingHasher signals when Verify starts and blocks until released.
type pausingHasher struct {
	security.PasswordHasher
	entered chan struct{}
	release chan struct{}
}

func (h *pausingHasher) Verify(password, hash string) bool {
	h.entered <- struct{}{}
	<-h.release
	return h.PasswordHasher.Verify(password, hash)
}

func TestFailedLoginDoesNotUndoErasure(t *testing.T) {
	hasher := &pausingHasher{
		PasswordHasher: security.NewBcryptHasher(bcrypt.MinCost),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	env := newTestEnvWithHasher(t, hasher)
	ctx := context.Background()
	u := env.register(t, "erase-me@example.com", model.UserTypePatient)

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Login(ctx, model.LoginRequest{
			Email: "erase-me@example.com", Password: "wrong", UserType: model.UserTypePatient,
		})
		done <- err
	}()
	<-hasher.entered

	erasedAt := *env.clock
	require.NoError(t, env.store.WithTx(ctx, func(r repository.Repositories) error {
		cur, err := r.Users().GetForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		cur.Email = "erased@" + model.ErasedEmailDomain
		cur.FirstName = ""
		cur.PasswordHash = ""
		cur.ErasedAt = &erasedAt
		return r.Users().Update(ctx, cur)
	}))
	close(hasher.release)

	err := <-done
	assert.True(t, errors.IsCode(err, errors.ErrAuthentication))

	stored, err := env.store.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsErased())
	assert.Equal(t, "erased@"+model.ErasedEmailDomain, stored.Email)
	assert.Empty(t, stored.FirstName)
	assert.Empty(t, stored.PasswordHash)
	assert.Zero(t, stored.FailedAttempts)
}

func TestIsAccountLockedIsPure(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	u := &model.User{LockedUntil: &until, FailedAttempts: 5}

	assert.True(t, IsAccountLocked(u, now))
	assert.False(t, IsAccountLocked(u, until))
	assert.False(t, IsAccountLocked(&model.User{}, now))
	assert.Equal(t, 5, u.FailedAttempts)
	assert.Equal(t, until, *u.LockedUntil)
}

func TestSessionExpiryDeletesLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "p@example.com", model.UserTypePatient)

	token, session, err := env.svc.CreateSession(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, security.HashToken(token), session.ID)
	assert.Equal(t, env.clock.Add(24*time.Hour), session.ExpiresAt)

	got, err := env.svc.ValidateSession(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	env.advance(24 * time.Hour)
	got, err = env.svc.ValidateSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = env.store.Sessions().Get(ctx, session.ID)
	assert.Error(t, err, "expired session is removed")

	got, err = env.svc.ValidateSession(ctx, "unknown")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGuestCannotLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.Users().Create(ctx, &model.User{Email: "g@example.com", UserType: model.UserTypePatient, IsGuest: true}))

	_, err := env.svc.Login(ctx, model.LoginRequest{Email: "g@example.com", Password: strongPassword, UserType: model.UserTypePatient})
	assert.True(t, errors.IsCode(err, errors.ErrAuthentication))
}
