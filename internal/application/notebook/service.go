// Package notebook serves notebook listings and details through a redis
// read-through cache.
package notebook

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/redis"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
)

const (
	cacheName      = "notebooks"
	keyPrefix      = "notebooks:"
	defaultListTTL = 2 * time.Minute
	defaultItemTTL = 10 * time.Minute
)

// Service defines the notebook read operations.
type Service interface {
	List(ctx context.Context, f domain.ListFilter) ([]*domain.Notebook, error)
	// Get returns the notebook with its synthesis hierarchy.
	Get(ctx context.Context, id uuid.UUID) (*domain.Notebook, error)
	Authors(ctx context.Context) ([]string, error)
	// Invalidate drops every cached notebook entry.
	Invalidate(ctx context.Context) error
}

// Option configures the service.
type Option func(*serviceImpl)

// WithCache enables caching. listTTL and itemTTL of zero keep the defaults.
func WithCache(c redis.Cache, listTTL, itemTTL time.Duration) Option {
	return func(s *serviceImpl) {
		s.cache = c
		if listTTL > 0 {
			s.listTTL = listTTL
		}
		if itemTTL > 0 {
			s.itemTTL = itemTTL
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

type serviceImpl struct {
	repo    domain.Repository
	cache   redis.Cache
	metrics *prometheus.AppMetrics
	logger  logging.Logger
	listTTL time.Duration
	itemTTL time.Duration
}

// NewService creates a notebook service.
func NewService(repo domain.Repository, log logging.Logger, opts ...Option) Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:    repo,
		metrics: prometheus.NewNoopMetrics(),
		logger:  log.Named("notebook"),
		listTTL: defaultListTTL,
		itemTTL: defaultItemTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) List(ctx context.Context, f domain.ListFilter) ([]*domain.Notebook, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	nbs, hit, err := redis.Fetch(ctx, s.cache, keyPrefix+"list:"+f.CacheKey(), s.listTTL,
		func(ctx context.Context) ([]*domain.Notebook, error) {
			nbs, err := s.repo.List(ctx, f)
			if err != nil {
				return nil, err
			}
			if nbs == nil {
				nbs = []*domain.Notebook{}
			}
			return nbs, nil
		})
	s.record(hit, err)
	if err != nil {
		s.logger.Error("failed to list notebooks", logging.Err(err))
		return nil, err
	}
	if nbs == nil {
		nbs = []*domain.Notebook{}
	}
	return nbs, nil
}

func (s *serviceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Notebook, error) {
	nb, hit, err := redis.Fetch(ctx, s.cache, keyPrefix+"id:"+id.String(), s.itemTTL,
		func(ctx context.Context) (*domain.Notebook, error) {
			return s.repo.GetWithHierarchy(ctx, id)
		})
	s.record(hit, err)
	if err != nil {
		return nil, err
	}
	return nb, nil
}

func (s *serviceImpl) Authors(ctx context.Context) ([]string, error) {
	authors, err := s.repo.Authors(ctx)
	if err != nil {
		return nil, err
	}
	if authors == nil {
		authors = []string{}
	}
	return authors, nil
}

func (s *serviceImpl) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	n, err := s.cache.DeleteByPrefix(ctx, keyPrefix)
	if err != nil {
		return err
	}
	s.logger.Info("notebook cache invalidated", logging.Int64("keys", n))
	return nil
}

func (s *serviceImpl) record(hit bool, err error) {
	if s.cache == nil || err != nil {
		return
	}
	s.metrics.RecordCacheAccess(cacheName, hit)
}
