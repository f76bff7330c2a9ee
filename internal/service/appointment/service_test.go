package appointment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository/memory"
	"github.com/dentalbook/marketplace-api/pkg/errors"
)

type fixture struct {
	store    *memory.Store
	svc      *Service
	practice *model.Practice
	dentist  *model.Dentist
	patient  *model.User
	staff    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	p := &model.Practice{Name: "Smile Clinic", Address: "1 High St"}
	require.NoError(t, store.Practices().Create(ctx, p))
	d := &model.Dentist{PracticeID: p.ID, Name: "Dr Who", Specialization: "general"}
	require.NoError(t, store.Dentists().Create(ctx, d))
	u := &model.User{Email: "p@example.com", UserType: model.UserTypePatient}
	require.NoError(t, store.Users().Create(ctx, u))
	staff := &model.User{Email: "dr@example.com", UserType: model.UserTypeDentist}
	require.NoError(t, store.Users().Create(ctx, staff))
	require.NoError(t, store.Practices().AddStaff(ctx, p.ID, staff.ID))
	return &fixture{store: store, svc: NewService(store, nil), practice: p, dentist: d, patient: u, staff: staff}
}

func (f *fixture) slot(t *testing.T, date, at string) *model.Appointment {
	t.Helper()
	a, err := f.svc.CreateSlot(context.Background(), f.practice.ID, f.staff.ID, model.CreateAppointmentRequest{
		DentistID:       f.dentist.ID,
		AppointmentDate: date,
		AppointmentTime: at,
		Duration:        30,
	})
	require.NoError(t, err)
	return a
}

func TestCreateSlotIsAvailable(t *testing.T) {
	f := newFixture(t)
	a := f.slot(t, "2026-05-01", "09:00")
	assert.Equal(t, model.AppointmentStatusAvailable, a.Status)
	assert.Nil(t, a.UserID)
	assert.True(t, a.Consistent())
}

func TestCreateSlotValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSlot(ctx, f.practice.ID, f.staff.ID, model.CreateAppointmentRequest{
		DentistID: f.dentist.ID, AppointmentDate: "01/05/2026", AppointmentTime: "25:00", Duration: 1,
	})
	require.True(t, errors.IsCode(err, errors.ErrValidation))
	appErr, _ := errors.As(err)
	assert.Len(t, appErr.Fields, 3)

	other := &model.Practice{Name: "Other", Address: "2 Low St"}
	require.NoError(t, f.store.Practices().Create(ctx, other))
	require.NoError(t, f.store.Practices().AddStaff(ctx, other.ID, f.staff.ID))
	_, err = f.svc.CreateSlot(ctx, other.ID, f.staff.ID, model.CreateAppointmentRequest{
		DentistID: f.dentist.ID, AppointmentDate: "2026-05-01", AppointmentTime: "09:00", Duration: 30,
	})
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	_, err = f.svc.CreateSlot(ctx, f.practice.ID, f.staff.ID, model.CreateAppointmentRequest{
		DentistID: 9999, AppointmentDate: "2026-05-01", AppointmentTime: "09:00", Duration: 30,
	})
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestCreateSlotRequiresStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := model.CreateAppointmentRequest{
		DentistID: f.dentist.ID, AppointmentDate: "2026-05-01", AppointmentTime: "09:00", Duration: 30,
	}

	outsider := &model.User{Email: "elsewhere@example.com", UserType: model.UserTypeDentist}
	require.NoError(t, f.store.Users().Create(ctx, outsider))
	_, err := f.svc.CreateSlot(ctx, f.practice.ID, outsider.ID, req)
	assert.True(t, errors.IsCode(err, errors.ErrAuthorization))

	_, err = f.svc.CreateSlot(ctx, 9999, f.staff.ID, req)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	list, err := f.svc.ListAvailable(ctx, f.practice.ID, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListAvailableFiltersByDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.slot(t, "2026-05-01", "09:00")
	f.slot(t, "2026-05-01", "10:00")
	f.slot(t, "2026-05-02", "09:00")

	all, err := f.svc.ListAvailable(ctx, f.practice.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	day, err := f.svc.ListAvailable(ctx, f.practice.ID, "2026-05-01")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "09:00", day[0].AppointmentTime)

	none, err := f.svc.ListAvailable(ctx, f.practice.ID, "2026-06-01")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = f.svc.ListAvailable(ctx, f.practice.ID, "May 1st")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestReserveSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.slot(t, "2026-05-01", "09:00")

	booked, err := f.svc.ReserveSlot(ctx, a.ID, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, booked.Status)
	require.NotNil(t, booked.UserID)
	assert.Equal(t, f.patient.ID, *booked.UserID)
	assert.True(t, booked.Consistent())

	_, err = f.svc.ReserveSlot(ctx, a.ID, f.patient.ID)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))

	_, err = f.svc.ReserveSlot(ctx, 424242, f.patient.ID)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	list, err := f.svc.ListAvailable(ctx, f.practice.ID, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
