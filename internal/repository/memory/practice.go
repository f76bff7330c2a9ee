package memory

import (
	"context"
	"sort"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

type practiceRepository struct {
	repos
}

func (r *practiceRepository) Create(ctx context.Context, practice *model.Practice) error {
	return r.a.update(ctx, func(s *state) error {
		if practice.ConnectionTag != nil {
			for _, p := range s.practices {
				if p.ConnectionTag != nil && *p.ConnectionTag == *practice.ConnectionTag {
					return repository.ErrConflict
				}
			}
		}
		practice.ID = s.nextID()
		practice.CreatedAt = r.now()
		practice.UpdatedAt = practice.CreatedAt
		stored := *practice
		stored.Dentists = nil
		s.practices[practice.ID] = stored
		return nil
	})
}

func (r *practiceRepository) Get(ctx context.Context, id int64) (*model.Practice, error) {
	var out model.Practice
	err := r.a.view(ctx, func(s *state) error {
		p, ok := s.practices[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *practiceRepository) List(ctx context.Context, connectionTag string) ([]*model.Practice, error) {
	var out []*model.Practice
	err := r.a.view(ctx, func(s *state) error {
		for _, p := range s.practices {
			if connectionTag != "" && (p.ConnectionTag == nil || *p.ConnectionTag != connectionTag) {
				continue
			}
			p := p
			out = append(out, &p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *practiceRepository) AddStaff(ctx context.Context, practiceID, userID int64) error {
	return r.a.update(ctx, func(s *state) error {
		if _, ok := s.practices[practiceID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := s.users[userID]; !ok {
			return repository.ErrNotFound
		}
		key := staffKey{practiceID: practiceID, userID: userID}
		if _, ok := s.staff[key]; !ok {
			s.staff[key] = r.now()
		}
		return nil
	})
}

func (r *practiceRepository) IsStaff(ctx context.Context, practiceID, userID int64) (bool, error) {
	var ok bool
	err := r.a.view(ctx, func(s *state) error {
		_, ok = s.staff[staffKey{practiceID: practiceID, userID: userID}]
		return nil
	})
	return ok, err
}

type dentistRepository struct {
	repos
}

func (r *dentistRepository) Create(ctx context.Context, dentist *model.Dentist) error {
	return r.a.update(ctx, func(s *state) error {
		if _, ok := s.practices[dentist.PracticeID]; !ok {
			return repository.ErrNotFound
		}
		dentist.ID = s.nextID()
		dentist.CreatedAt = r.now()
		dentist.UpdatedAt = dentist.CreatedAt
		s.dentists[dentist.ID] = *dentist
		return nil
	})
}

func (r *dentistRepository) Get(ctx context.Context, id int64) (*model.Dentist, error) {
	var out model.Dentist
	err := r.a.view(ctx, func(s *state) error {
		d, ok := s.dentists[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dentistRepository) ListByPractice(ctx context.Context, practiceID int64) ([]*model.Dentist, error) {
	var out []*model.Dentist
	err := r.a.view(ctx, func(s *state) error {
		for _, d := range s.dentists {
			if d.PracticeID == practiceID {
				d := d
				out = append(out, &d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}
