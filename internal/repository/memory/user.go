package memory

import (
	"context"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

type userRepository struct {
	repos
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.a.update(ctx, func(s *state) error {
		if _, taken := s.emails[user.Email]; taken {
			return repository.ErrConflict
		}
		user.ID = s.nextID()
		user.CreatedAt = r.now()
		user.UpdatedAt = user.CreatedAt
		s.users[user.ID] = *user
		s.emails[user.Email] = user.ID
		return nil
	})
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var out model.User
	err := r.a.view(ctx, func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate needs no extra locking: transactions hold the store lock.
func (r *userRepository) GetForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return r.Get(ctx, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var out model.User
	err := r.a.view(ctx, func(s *state) error {
		id, ok := s.emails[email]
		if !ok {
			return repository.ErrNotFound
		}
		out = s.users[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return r.a.update(ctx, func(s *state) error {
		prev, ok := s.users[user.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if prev.Email != user.Email {
			if _, taken := s.emails[user.Email]; taken {
				return repository.ErrConflict
			}
			delete(s.emails, prev.Email)
			s.emails[user.Email] = user.ID
		}
		user.CreatedAt = prev.CreatedAt
		user.UpdatedAt = r.now()
		s.users[user.ID] = *user
		return nil
	})
}
