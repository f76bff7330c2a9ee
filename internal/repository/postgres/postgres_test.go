package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "uq_bookings_active_appointment")
	require.Len(t, migrations, 2)
	assert.Contains(t, migrations[1].SQL, "practice_staff")
}

// openTestStore connects to TEST_DATABASE_URL, skipping when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, url, PoolConfig{MaxOpenConns: 5})
	require.NoError(t, err)
	_, err = Migrate(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func seed(t *testing.T, s *Store) (*model.User, *model.Appointment) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	p := &model.Practice{Name: "Integration Practice", Address: "2 Low Rd"}
	require.NoError(t, s.Practices().Create(ctx, p))
	d := &model.Dentist{PracticeID: p.ID, Name: "Dr Int", Specialization: "general"}
	require.NoError(t, s.Dentists().Create(ctx, d))
	a := &model.Appointment{
		PracticeID:      p.ID,
		DentistID:       d.ID,
		AppointmentDate: "2026-05-04",
		AppointmentTime: "14:30",
		Duration:        45,
		Status:          model.AppointmentStatusAvailable,
	}
	require.NoError(t, s.Appointments().Create(ctx, a))
	u := &model.User{
		Email:     fmt.Sprintf("int-%d@example.com", suffix),
		FirstName: "Int",
		LastName:  "Patient",
		UserType:  model.UserTypePatient,
	}
	require.NoError(t, s.Users().Create(ctx, u))
	return u, a
}

func TestIntegrationAppointmentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, a := seed(t, s)

	got, err := s.Appointments().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04", got.AppointmentDate)
	assert.Equal(t, "14:30", got.AppointmentTime)

	list, err := s.Appointments().ListAvailable(ctx, a.PracticeID, "2026-05-04")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.Appointments().MarkBooked(ctx, a.ID, u.ID, time.Now())
	require.NoError(t, err)
	_, err = s.Appointments().MarkBooked(ctx, a.ID, u.ID, time.Now())
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestIntegrationPracticeStaff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, a := seed(t, s)

	ok, err := s.Practices().IsStaff(ctx, a.PracticeID, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Practices().AddStaff(ctx, a.PracticeID, u.ID))
	require.NoError(t, s.Practices().AddStaff(ctx, a.PracticeID, u.ID))
	ok, err = s.Practices().IsStaff(ctx, a.PracticeID, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Practices().AddStaff(ctx, a.PracticeID, -1), repository.ErrNotFound)
}

func TestIntegrationActiveBookingIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, a := seed(t, s)

	first := &model.Booking{UserID: u.ID, AppointmentID: a.ID, Status: model.BookingStatusPending, TreatmentCategory: "checkup"}
	require.NoError(t, s.Bookings().Create(ctx, first))
	second := &model.Booking{UserID: u.ID, AppointmentID: a.ID, Status: model.BookingStatusPending, TreatmentCategory: "checkup"}
	assert.ErrorIs(t, s.Bookings().Create(ctx, second), repository.ErrConflict)
}

func TestIntegrationConcurrentStatusUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, a := seed(t, s)

	b := &model.Booking{UserID: u.ID, AppointmentID: a.ID, Status: model.BookingStatusPending, TreatmentCategory: "checkup"}
	require.NoError(t, s.Bookings().Create(ctx, b))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx repository.Repositories) error {
				if _, err := tx.Bookings().GetForUpdate(ctx, b.ID); err != nil {
					return err
				}
				_, err := tx.Bookings().UpdateStatus(ctx, b.ID, model.StatusChange{
					From: model.BookingStatusPending,
					To:   model.BookingStatusApproved,
					At:   time.Now(),
				})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], repository.ErrConflict)
}
