package practice

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/logger"
)

const (
	cacheTTL             = 5 * time.Minute
	cacheCleanupInterval = 10 * time.Minute

	listKeyPrefix = "list:"
	getKeyPrefix  = "practice:"
)

// Service serves practice reference data. Reads are cached because every
// client loads them; any write flushes the cache.
type Service struct {
	store  repository.Store
	cache  *cache.Cache
	logger *logger.Logger
}

func NewService(store repository.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:  store,
		cache:  cache.New(cacheTTL, cacheCleanupInterval),
		logger: log,
	}
}

// List returns every practice, or only the one carrying connectionTag.
func (s *Service) List(ctx context.Context, connectionTag string) ([]*model.Practice, error) {
	key := listKeyPrefix + connectionTag
	if v, ok := s.cache.Get(key); ok {
		return v.([]*model.Practice), nil
	}

	list, err := s.store.Practices().List(ctx, connectionTag)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list practices: %w", err))
	}
	if list == nil {
		list = []*model.Practice{}
	}
	s.cache.SetDefault(key, list)
	return list, nil
}

// Get returns a practice with its dentists.
func (s *Service) Get(ctx context.Context, id int64) (*model.Practice, error) {
	key := getKeyPrefix + strconv.FormatInt(id, 10)
	if v, ok := s.cache.Get(key); ok {
		return v.(*model.Practice), nil
	}

	p, err := s.store.Practices().Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("practice", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	dentists, err := s.store.Dentists().ListByPractice(ctx, id)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("list dentists: %w", err))
	}
	p.Dentists = dentists
	if p.Dentists == nil {
		p.Dentists = []*model.Dentist{}
	}

	s.cache.SetDefault(key, p)
	return p, nil
}

// Create adds a practice and makes its creator the first staff member.
func (s *Service) Create(ctx context.Context, creatorID int64, req model.CreatePracticeRequest) (*model.Practice, error) {
	p := &model.Practice{
		Name:          req.Name,
		Address:       req.Address,
		Phone:         req.Phone,
		ConnectionTag: req.ConnectionTag,
	}
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Practices().Create(ctx, p); err != nil {
			if stderrors.Is(err, repository.ErrConflict) {
				return errors.Conflict("connection tag already in use", err)
			}
			return fmt.Errorf("create practice: %w", err)
		}
		if err := r.Practices().AddStaff(ctx, p.ID, creatorID); err != nil {
			return fmt.Errorf("add practice creator: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}
	s.cache.Flush()
	s.logger.Info("Practice created", "practice_id", p.ID, "created_by", creatorID)
	return p, nil
}

func (s *Service) AddDentist(ctx context.Context, callerID, practiceID int64, req model.CreateDentistRequest) (*model.Dentist, error) {
	if err := RequireStaff(ctx, s.store.Practices(), practiceID, callerID); err != nil {
		return nil, wrap(err)
	}
	d := &model.Dentist{
		PracticeID:     practiceID,
		Name:           req.Name,
		Specialization: req.Specialization,
	}
	if err := s.store.Dentists().Create(ctx, d); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("practice", err)
		}
		return nil, errors.Internal(fmt.Errorf("create dentist: %w", err))
	}
	s.cache.Flush()
	return d, nil
}

// AddStaff lets an existing staff member grant another dentist account
// access to the practice's bookings.
func (s *Service) AddStaff(ctx context.Context, callerID, practiceID, userID int64) error {
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := RequireStaff(ctx, r.Practices(), practiceID, callerID); err != nil {
			return err
		}
		u, err := r.Users().Get(ctx, userID)
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("user", err)
		}
		if err != nil {
			return err
		}
		if !u.IsDentist() || u.IsErased() {
			return errors.Validation("only dentist accounts can join a practice",
				errors.FieldError{Field: "userId", Message: "must be an active dentist account"})
		}
		return r.Practices().AddStaff(ctx, practiceID, userID)
	})
	if err != nil {
		return wrap(err)
	}
	s.logger.Info("Practice staff added", "practice_id", practiceID, "user_id", userID, "added_by", callerID)
	return nil
}

// RequireStaff fails with an authorization error unless userID works at
// the practice. An unknown practice is reported as not found.
func RequireStaff(ctx context.Context, practices repository.PracticeRepository, practiceID, userID int64) error {
	ok, err := practices.IsStaff(ctx, practiceID, userID)
	if err != nil {
		return fmt.Errorf("check practice staff: %w", err)
	}
	if ok {
		return nil
	}
	if _, err := practices.Get(ctx, practiceID); stderrors.Is(err, repository.ErrNotFound) {
		return errors.NotFound("practice", err)
	}
	return errors.Authorization("not a member of this practice")
}

func wrap(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(err)
}
