// Package memory is a map-backed repository.Store for tests and local demos.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

type state struct {
	seq          int64
	users        map[int64]model.User
	emails       map[string]int64
	practices    map[int64]model.Practice
	dentists     map[int64]model.Dentist
	staff        map[staffKey]time.Time
	appointments map[int64]model.Appointment
	bookings     map[int64]model.Booking
	triage       map[int64]model.TriageAssessment
	sessions     map[string]model.Session
	audit        []model.AuditLog
	outbox       map[uuid.UUID]model.OutboxEvent
}

type staffKey struct {
	practiceID int64
	userID     int64
}

func newState() *state {
	return &state{
		users:        make(map[int64]model.User),
		emails:       make(map[string]int64),
		practices:    make(map[int64]model.Practice),
		dentists:     make(map[int64]model.Dentist),
		staff:        make(map[staffKey]time.Time),
		appointments: make(map[int64]model.Appointment),
		bookings:     make(map[int64]model.Booking),
		triage:       make(map[int64]model.TriageAssessment),
		sessions:     make(map[string]model.Session),
		outbox:       make(map[uuid.UUID]model.OutboxEvent),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// clone copies the maps. Records are values and are replaced, never
// mutated in place, so sharing their pointer fields is safe.
func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		users:        make(map[int64]model.User, len(s.users)),
		emails:       make(map[string]int64, len(s.emails)),
		practices:    make(map[int64]model.Practice, len(s.practices)),
		dentists:     make(map[int64]model.Dentist, len(s.dentists)),
		staff:        make(map[staffKey]time.Time, len(s.staff)),
		appointments: make(map[int64]model.Appointment, len(s.appointments)),
		bookings:     make(map[int64]model.Booking, len(s.bookings)),
		triage:       make(map[int64]model.TriageAssessment, len(s.triage)),
		sessions:     make(map[string]model.Session, len(s.sessions)),
		audit:        append([]model.AuditLog(nil), s.audit...),
		outbox:       make(map[uuid.UUID]model.OutboxEvent, len(s.outbox)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.practices {
		c.practices[k] = v
	}
	for k, v := range s.dentists {
		c.dentists[k] = v
	}
	for k, v := range s.staff {
		c.staff[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.triage {
		c.triage[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

// access hides whether a repository runs against the locked store or
// inside a transaction that already holds the lock.
type access interface {
	view(ctx context.Context, fn func(*state) error) error
	update(ctx context.Context, fn func(*state) error) error
}

// Store implements repository.Store.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		st:  newState(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) view(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) update(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// WithTx runs fn against a private copy of the data and publishes the copy
// only when fn succeeds. Transactions are serialized. fn must only use the
// Repositories it is given; calling back into the Store deadlocks.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(repos{a: txAccess{st: work}, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Users() repository.UserRepository { return repos{a: s, now: s.now}.Users() }

func (s *Store) Practices() repository.PracticeRepository {
	return repos{a: s, now: s.now}.Practices()
}

func (s *Store) Dentists() repository.DentistRepository { return repos{a: s, now: s.now}.Dentists() }

func (s *Store) Appointments() repository.AppointmentRepository {
	return repos{a: s, now: s.now}.Appointments()
}

func (s *Store) Bookings() repository.BookingRepository { return repos{a: s, now: s.now}.Bookings() }

func (s *Store) Triage() repository.TriageRepository { return repos{a: s, now: s.now}.Triage() }

func (s *Store) Sessions() repository.SessionRepository { return repos{a: s, now: s.now}.Sessions() }

func (s *Store) Audit() repository.AuditRepository { return repos{a: s, now: s.now}.Audit() }

func (s *Store) Outbox() repository.OutboxRepository { return repos{a: s, now: s.now}.Outbox() }

type txAccess struct {
	st *state
}

func (t txAccess) view(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t.st)
}

func (t txAccess) update(ctx context.Context, fn func(*state) error) error {
	return t.view(ctx, fn)
}

type repos struct {
	a   access
	now func() time.Time
}

func (r repos) Users() repository.UserRepository               { return &userRepository{r} }
func (r repos) Practices() repository.PracticeRepository       { return &practiceRepository{r} }
func (r repos) Dentists() repository.DentistRepository         { return &dentistRepository{r} }
func (r repos) Appointments() repository.AppointmentRepository { return &appointmentRepository{r} }
func (r repos) Bookings() repository.BookingRepository         { return &bookingRepository{r} }
func (r repos) Triage() repository.TriageRepository            { return &triageRepository{r} }
func (r repos) Sessions() repository.SessionRepository         { return &sessionRepository{r} }
func (r repos) Audit() repository.AuditRepository              { return &auditRepository{r} }
func (r repos) Outbox() repository.OutboxRepository            { return &outboxRepository{r} }
