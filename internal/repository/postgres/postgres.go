package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/repository"
)

// Store implements repository.Store on PostgreSQL.
type Store struct {
	db *sqlx.DB
	repositories
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, repositories: repositories{NewBaseRepository(db)}}
}

// WithTx runs fn in a database transaction. Repositories handed to fn share
// the transaction; row locks taken through GetForUpdate last until commit.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(repositories{NewBaseRepository(tx)})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

type repositories struct {
	base BaseRepository
}

func (r repositories) Users() repository.UserRepository         { return &userRepository{r.base} }
func (r repositories) Practices() repository.PracticeRepository { return &practiceRepository{r.base} }
func (r repositories) Dentists() repository.DentistRepository   { return &dentistRepository{r.base} }
func (r repositories) Appointments() repository.AppointmentRepository {
	return &appointmentRepository{r.base}
}
func (r repositories) Bookings() repository.BookingRepository { return &bookingRepository{r.base} }
func (r repositories) Triage() repository.TriageRepository     { return &triageRepository{r.base} }
func (r repositories) Sessions() repository.SessionRepository { return &sessionRepository{r.base} }
func (r repositories) Audit() repository.AuditRepository       { return &auditRepository{r.base} }
func (r repositories) Outbox() repository.OutboxRepository     { return &outboxRepository{r.base} }
