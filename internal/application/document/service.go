// Package document browses the notebook PDFs kept in object storage and
// maintains their notebook_id metadata.
package document

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/molecule-search/internal/infrastructure/database/redis"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molecule-search/internal/infrastructure/storage"
	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	DefaultWorkers    = 10
	DefaultPresignTTL = 15 * time.Minute

	tagLockName = "documents:tag-notebook-ids"
	urlCacheKey = "documents:url:"
	cacheName   = "document_urls"
)

// Document is a PDF in the bucket.
type Document struct {
	Name       string    `json:"name"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Updated    time.Time `json:"updated"`
	NotebookID string    `json:"notebook_id,omitempty"`
}

// SignedURL is a time-limited download link.
type SignedURL struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TagResult reports one object processed by TagNotebookIDs.
type TagResult struct {
	Done       int
	Total      int
	Name       string
	NotebookID string
	Err        error
}

// TagSummary totals a TagNotebookIDs run.
type TagSummary struct {
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Errors    int      `json:"errors"`
	Failed    []string `json:"failed,omitempty"`
}

// Locker guards the tagging job across replicas.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Service defines the document browser operations.
type Service interface {
	ListDocuments(ctx context.Context, prefix string) ([]Document, error)
	DocumentURL(ctx context.Context, name string) (*SignedURL, error)
	// TagNotebookIDs sets notebook_id to the file stem on every object under
	// prefix. Failures on individual objects are counted, not returned.
	TagNotebookIDs(ctx context.Context, prefix string, workers int) (*TagSummary, error)
}

type Option func(*serviceImpl)

func WithPresignTTL(ttl time.Duration) Option {
	return func(s *serviceImpl) {
		if ttl > 0 {
			s.presignTTL = ttl
		}
	}
}

// WithDefaultPrefix is used when callers pass an empty prefix.
func WithDefaultPrefix(prefix string) Option {
	return func(s *serviceImpl) { s.defaultPrefix = prefix }
}

// WithURLCache caches signed URLs for half their lifetime.
func WithURLCache(c redis.Cache) Option {
	return func(s *serviceImpl) { s.cache = c }
}

// WithJobLock serialises tagging runs.
func WithJobLock(newLock func(name string) Locker) Option {
	return func(s *serviceImpl) { s.newLock = newLock }
}

// WithTagProgress receives every TagResult as it completes.
func WithTagProgress(fn func(TagResult)) Option {
	return func(s *serviceImpl) { s.progress = fn }
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

type serviceImpl struct {
	store         storage.ObjectStore
	cache         redis.Cache
	metrics       *prometheus.AppMetrics
	logger        logging.Logger
	presignTTL    time.Duration
	defaultPrefix string
	newLock       func(name string) Locker
	progress      func(TagResult)
	now           func() time.Time
}

// NewService creates a document service over store.
func NewService(store storage.ObjectStore, log logging.Logger, opts ...Option) Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &serviceImpl{
		store:      store,
		metrics:    prometheus.NewNoopMetrics(),
		logger:     log.Named("document").With(logging.String("bucket", store.Bucket())),
		presignTTL: DefaultPresignTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) prefix(p string) string {
	if p == "" {
		return s.defaultPrefix
	}
	return p
}

func (s *serviceImpl) ListDocuments(ctx context.Context, prefix string) ([]Document, error) {
	objs, err := s.store.List(ctx, s.prefix(prefix))
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(objs))
	for _, o := range objs {
		if o.IsDir() || !IsPDF(o.Name) {
			continue
		}
		docs = append(docs, Document{
			Name:       o.Name,
			Filename:   path.Base(o.Name),
			Size:       o.Size,
			Updated:    o.Updated,
			NotebookID: o.Metadata[storage.MetadataNotebookID],
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func (s *serviceImpl) DocumentURL(ctx context.Context, name string) (*SignedURL, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(name, "/") {
		return nil, errors.InvalidParam("document name is required")
	}
	u, hit, err := redis.Fetch(ctx, s.cache, urlCacheKey+name, s.presignTTL/2,
		func(ctx context.Context) (*SignedURL, error) {
			expires := s.now().Add(s.presignTTL)
			raw, err := s.store.PresignedURL(ctx, name, s.presignTTL)
			if err != nil {
				return nil, err
			}
			return &SignedURL{Name: name, URL: raw, ExpiresAt: expires}, nil
		})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.metrics.RecordCacheAccess(cacheName, hit)
	}
	return u, nil
}

func (s *serviceImpl) TagNotebookIDs(ctx context.Context, prefix string, workers int) (*TagSummary, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	prefix = s.prefix(prefix)

	if s.newLock != nil {
		lock := s.newLock(tagLockName)
		if err := lock.Lock(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Unlock(context.Background()); err != nil {
				s.logger.Warn("failed to release tagging lock", logging.Err(err))
			}
		}()
	}

	objs, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(objs))
	for _, o := range objs {
		if !o.IsDir() {
			names = append(names, o.Name)
		}
	}
	s.logger.Info("tagging notebook ids",
		logging.String("prefix", prefix),
		logging.Int("objects", len(names)),
		logging.Int("workers", workers),
	)

	summary := &TagSummary{Total: len(names)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, name := range names {
		name := name
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			id := NotebookID(name)
			err := s.store.UpdateMetadata(gctx, name, map[string]string{storage.MetadataNotebookID: id})

			mu.Lock()
			if err != nil {
				summary.Errors++
				summary.Failed = append(summary.Failed, name)
			} else {
				summary.Processed++
			}
			res := TagResult{Done: summary.Processed + summary.Errors, Total: summary.Total, Name: name, NotebookID: id, Err: err}
			if s.progress != nil {
				s.progress(res)
			}
			mu.Unlock()

			if err != nil {
				s.metrics.DocumentsTaggedTotal.WithLabelValues("error").Inc()
				s.logger.Warn("failed to tag object", logging.String("object", name), logging.Err(err))
			} else {
				s.metrics.DocumentsTaggedTotal.WithLabelValues("ok").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(summary.Failed)

	s.logger.Info("tagging finished",
		logging.Int("total", summary.Total),
		logging.Int("processed", summary.Processed),
		logging.Int("errors", summary.Errors),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// IsPDF matches the .pdf extension case-insensitively.
func IsPDF(name string) bool {
	return strings.EqualFold(path.Ext(name), ".pdf")
}

// NotebookID is the object's file name without its extension.
func NotebookID(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}
