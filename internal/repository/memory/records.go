package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

type triageRepository struct {
	repos
}

func (r *triageRepository) Create(ctx context.Context, assessment *model.TriageAssessment) error {
	return r.a.update(ctx, func(s *state) error {
		assessment.ID = s.nextID()
		assessment.CreatedAt = r.now()
		stored := *assessment
		stored.Symptoms = append([]string(nil), assessment.Symptoms...)
		s.triage[assessment.ID] = stored
		return nil
	})
}

func (r *triageRepository) Get(ctx context.Context, id int64) (*model.TriageAssessment, error) {
	var out model.TriageAssessment
	err := r.a.view(ctx, func(s *state) error {
		t, ok := s.triage[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type sessionRepository struct {
	repos
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.a.update(ctx, func(s *state) error {
		if _, dup := s.sessions[session.ID]; dup {
			return repository.ErrConflict
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = r.now()
		}
		s.sessions[session.ID] = *session
		return nil
	})
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var out model.Session
	err := r.a.view(ctx, func(s *state) error {
		sess, ok := s.sessions[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	return r.a.update(ctx, func(s *state) error {
		delete(s.sessions, id)
		return nil
	})
}

func (r *sessionRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return r.a.update(ctx, func(s *state) error {
		for id, sess := range s.sessions {
			if sess.UserID == userID {
				delete(s.sessions, id)
			}
		}
		return nil
	})
}

type auditRepository struct {
	repos
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.a.update(ctx, func(s *state) error {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = r.now()
		}
		s.audit = append(s.audit, *entry)
		return nil
	})
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	var out []*model.AuditLog
	err := r.a.view(ctx, func(s *state) error {
		for i := len(s.audit) - 1; i >= 0; i-- {
			e := s.audit[i]
			if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
				continue
			}
			if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
				continue
			}
			out = append(out, &e)
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

type outboxRepository struct {
	repos
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	return r.a.update(ctx, func(s *state) error {
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = r.now()
		}
		if event.Status == "" {
			event.Status = model.OutboxStatusPending
		}
		s.outbox[event.ID] = *event
		return nil
	})
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int, now time.Time) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	err := r.a.view(ctx, func(s *state) error {
		for _, e := range s.outbox {
			if e.Status != model.OutboxStatusPending {
				continue
			}
			if e.RetryAt != nil && e.RetryAt.After(now) {
				continue
			}
			e := e
			out = append(out, &e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.a.update(ctx, func(s *state) error {
		e, ok := s.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &at
		e.ErrorMessage = nil
		s.outbox[id] = e
		return nil
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAt *time.Time) error {
	return r.a.update(ctx, func(s *state) error {
		e, ok := s.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		e.RetryCount++
		e.ErrorMessage = &reason
		e.RetryAt = retryAt
		if retryAt == nil {
			e.Status = model.OutboxStatusFailed
		}
		s.outbox[id] = e
		return nil
	})
}
