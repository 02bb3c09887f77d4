// Package molecule provides the application service for reversed structure
// search: from one or more SMILES strings to the notebooks that use them.
package molecule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	domainMol "github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/redis"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
)

const (
	cacheName        = "molecule_search"
	keyPrefix        = "molecules:"
	defaultSearchTTL = 5 * time.Minute
)

// Service defines molecule application operations.
type Service interface {
	Search(ctx context.Context, input *SearchInput) (*SearchResult, error)
	GetBySMILES(ctx context.Context, smiles string) (*domainMol.Molecule, error)
}

// SearchInput is the wire form of a structure search.
type SearchInput struct {
	SMILES     []string `json:"smiles"`
	Type       string   `json:"type,omitempty"`
	RequireAll bool     `json:"require_all,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// SearchResult lists matched notebooks, best match first.
type SearchResult struct {
	Query   []string                          `json:"query"`
	Type    domainMol.SearchType              `json:"type"`
	Results []*domainMol.NotebookSearchResult `json:"results"`
	Total   int                               `json:"total"`
}

type Option func(*serviceImpl)

// WithCache caches search results for ttl (default five minutes).
func WithCache(c redis.Cache, ttl time.Duration) Option {
	return func(s *serviceImpl) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

type serviceImpl struct {
	repo    domainMol.Repository
	cache   redis.Cache
	metrics *prometheus.AppMetrics
	logger  logging.Logger
	ttl     time.Duration
}

// NewService creates a new molecule application service.
func NewService(repo domainMol.Repository, logger logging.Logger, opts ...Option) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:    repo,
		metrics: prometheus.NewNoopMetrics(),
		logger:  logger.Named("molecule"),
		ttl:     defaultSearchTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) Search(ctx context.Context, input *SearchInput) (*SearchResult, error) {
	t, err := domainMol.ParseSearchType(input.Type)
	if err != nil {
		return nil, err
	}
	q := domainMol.SearchQuery{
		SMILES:     normalize(input.SMILES),
		Type:       t,
		RequireAll: input.RequireAll,
		Limit:      domainMol.ClampLimit(input.Limit),
	}
	for _, smi := range q.SMILES {
		if err := domainMol.ValidateSMILES(smi); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	results, hit, err := redis.Fetch(ctx, s.cache, searchKey(q), s.ttl,
		func(ctx context.Context) ([]*domainMol.NotebookSearchResult, error) {
			return domainMol.SearchNotebooksMulti(ctx, s.repo, q)
		})
	s.metrics.RecordMoleculeSearch(string(t), err, time.Since(start))
	if err != nil {
		s.logger.Error("molecule search failed",
			logging.String("type", string(t)),
			logging.Int("structures", len(q.SMILES)),
			logging.Err(err),
		)
		return nil, err
	}
	if s.cache != nil {
		s.metrics.RecordCacheAccess(cacheName, hit)
	}
	if results == nil {
		results = []*domainMol.NotebookSearchResult{}
	}

	s.logger.Debug("molecule search",
		logging.String("type", string(t)),
		logging.Int("structures", len(q.SMILES)),
		logging.Int("notebooks", len(results)),
		logging.Bool("cache_hit", hit),
	)
	return &SearchResult{Query: q.SMILES, Type: t, Results: results, Total: len(results)}, nil
}

func (s *serviceImpl) GetBySMILES(ctx context.Context, smiles string) (*domainMol.Molecule, error) {
	smiles = strings.TrimSpace(smiles)
	if err := domainMol.ValidateSMILES(smiles); err != nil {
		return nil, err
	}
	return s.repo.GetBySMILES(ctx, smiles)
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, smi := range in {
		if smi = strings.TrimSpace(smi); smi != "" {
			out = append(out, smi)
		}
	}
	return out
}

// searchKey is independent of the order the structures were given in.
func searchKey(q domainMol.SearchQuery) string {
	sorted := append([]string(nil), q.SMILES...)
	sort.Strings(sorted)
	return fmt.Sprintf("%ssearch:%s:%t:%d:%s", keyPrefix, q.Type, q.RequireAll, q.Limit, strings.Join(sorted, "|"))
}
