package practice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository/memory"
	"github.com/dentalbook/marketplace-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func newDentist(t *testing.T, store *memory.Store, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, UserType: model.UserTypeDentist}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

func TestListAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, nil)
	owner := newDentist(t, store, "owner@example.com")

	p, err := svc.Create(ctx, owner.ID, model.CreatePracticeRequest{Name: "Smile", Address: "1 High St", ConnectionTag: strPtr("SMILE1")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner.ID, model.CreatePracticeRequest{Name: "Grin", Address: "2 Low St"})
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tagged, err := svc.List(ctx, "SMILE1")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, p.ID, tagged[0].ID)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Dentists)

	_, err = svc.Get(ctx, 999)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	_, err = svc.Create(ctx, owner.ID, model.CreatePracticeRequest{Name: "Dup", Address: "x", ConnectionTag: strPtr("SMILE1")})
	assert.True(t, errors.IsCode(err, errors.ErrConflict))
}

func TestWritesInvalidateCache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, nil)
	owner := newDentist(t, store, "owner@example.com")

	p, err := svc.Create(ctx, owner.ID, model.CreatePracticeRequest{Name: "Smile", Address: "1 High St"})
	require.NoError(t, err)
	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Dentists)

	// Writes behind the service's back are not seen until the entry expires.
	require.NoError(t, store.Practices().Create(ctx, &model.Practice{Name: "Hidden", Address: "3"}))
	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	require.NoError(t, store.Practices().Create(ctx, &model.Practice{Name: "Hidden2", Address: "4"}))
	all, err = svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2, "served from cache")

	_, err = svc.AddDentist(ctx, owner.ID, p.ID, model.CreateDentistRequest{Name: "Dr A", Specialization: "ortho"})
	require.NoError(t, err)
	got, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Dentists, 1)
	all, err = svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.AddDentist(ctx, owner.ID, 999, model.CreateDentistRequest{Name: "Dr B", Specialization: "general"})
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestStaffMembership(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, nil)
	owner := newDentist(t, store, "owner@example.com")
	colleague := newDentist(t, store, "colleague@example.com")
	patient := &model.User{Email: "patient@example.com", UserType: model.UserTypePatient}
	require.NoError(t, store.Users().Create(ctx, patient))

	p, err := svc.Create(ctx, owner.ID, model.CreatePracticeRequest{Name: "Smile", Address: "1 High St"})
	require.NoError(t, err)
	require.NoError(t, RequireStaff(ctx, store.Practices(), p.ID, owner.ID), "creator is staff")

	err = RequireStaff(ctx, store.Practices(), p.ID, colleague.ID)
	assert.True(t, errors.IsCode(err, errors.ErrAuthorization))
	err = RequireStaff(ctx, store.Practices(), 999, owner.ID)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	_, err = svc.AddDentist(ctx, colleague.ID, p.ID, model.CreateDentistRequest{Name: "Dr X", Specialization: "general"})
	assert.True(t, errors.IsCode(err, errors.ErrAuthorization))
	err = svc.AddStaff(ctx, colleague.ID, p.ID, colleague.ID)
	assert.True(t, errors.IsCode(err, errors.ErrAuthorization), "cannot add yourself")

	err = svc.AddStaff(ctx, owner.ID, p.ID, patient.ID)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	err = svc.AddStaff(ctx, owner.ID, p.ID, 999)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	require.NoError(t, svc.AddStaff(ctx, owner.ID, p.ID, colleague.ID))
	require.NoError(t, RequireStaff(ctx, store.Practices(), p.ID, colleague.ID))
	_, err = svc.AddDentist(ctx, colleague.ID, p.ID, model.CreateDentistRequest{Name: "Dr X", Specialization: "general"})
	require.NoError(t, err)
}

func TestCreateRollsBackWithoutCreator(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, nil)

	_, err := svc.Create(ctx, 999, model.CreatePracticeRequest{Name: "Ghost", Address: "nowhere"})
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
	list, err := store.Practices().List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
