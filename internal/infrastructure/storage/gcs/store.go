// Package gcs implements storage.ObjectStore on Google Cloud Storage.
package gcs

import (
	"context"
	stderrors "errors"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	objstore "github.com/turtacn/molecule-search/internal/infrastructure/storage"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// objectIterator is satisfied by *storage.ObjectIterator.
type objectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// bucketAPI is the seam between the store and the GCS client.
type bucketAPI interface {
	Objects(ctx context.Context, q *storage.Query) objectIterator
	Attrs(ctx context.Context, name string) (*storage.ObjectAttrs, error)
	Update(ctx context.Context, name string, attrs storage.ObjectAttrsToUpdate) (*storage.ObjectAttrs, error)
	SignedURL(name string, opts *storage.SignedURLOptions) (string, error)
}

type bucketHandle struct {
	h *storage.BucketHandle
}

func (b bucketHandle) Objects(ctx context.Context, q *storage.Query) objectIterator {
	return b.h.Objects(ctx, q)
}

func (b bucketHandle) Attrs(ctx context.Context, name string) (*storage.ObjectAttrs, error) {
	return b.h.Object(name).Attrs(ctx)
}

func (b bucketHandle) Update(ctx context.Context, name string, attrs storage.ObjectAttrsToUpdate) (*storage.ObjectAttrs, error) {
	return b.h.Object(name).Update(ctx, attrs)
}

func (b bucketHandle) SignedURL(name string, opts *storage.SignedURLOptions) (string, error) {
	return b.h.SignedURL(name, opts)
}

type Store struct {
	client *storage.Client
	bucket bucketAPI
	name   string
	signer string
	logger logging.Logger
}

// NewStore opens a GCS client. Without a credentials file the client uses
// application default credentials.
func NewStore(ctx context.Context, cfg config.StorageConfig, log logging.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeValidation, "storage bucket is required")
	}
	var opts []option.ClientOption
	if cfg.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDocumentStorage, "failed to create GCS client")
	}
	s := newStore(bucketHandle{h: client.Bucket(cfg.Bucket)}, cfg.Bucket, cfg.GCS.SigningAccount, log)
	s.client = client
	s.logger.Info("GCS store ready", logging.String("bucket", cfg.Bucket))
	return s, nil
}

func newStore(api bucketAPI, bucket, signer string, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{
		bucket: api,
		name:   bucket,
		signer: signer,
		logger: log.Named("gcs").With(logging.String("bucket", bucket)),
	}
}

func (s *Store) Bucket() string {
	return s.name
}

func (s *Store) List(ctx context.Context, prefix string) ([]objstore.Object, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var out []objstore.Object
	for {
		attrs, err := it.Next()
		if stderrors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDocumentStorage, "failed to list objects")
		}
		out = append(out, toObject(attrs))
	}
	return out, nil
}

func (s *Store) Stat(ctx context.Context, name string) (*objstore.Object, error) {
	attrs, err := s.bucket.Attrs(ctx, name)
	if err != nil {
		return nil, mapErr(err, name, "failed to stat object")
	}
	obj := toObject(attrs)
	return &obj, nil
}

// PresignedURL signs a V4 GET URL. The signing identity comes from the
// client credentials unless a signing account is configured.
func (s *Store) PresignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if _, err := s.bucket.Attrs(ctx, name); err != nil {
		return "", mapErr(err, name, "failed to stat object")
	}
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: s.signer,
	}
	u, err := s.bucket.SignedURL(name, opts)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDocumentPresign, "failed to sign URL").WithDetail(name)
	}
	return u, nil
}

func (s *Store) UpdateMetadata(ctx context.Context, name string, kv map[string]string) error {
	attrs, err := s.bucket.Attrs(ctx, name)
	if err != nil {
		return mapErr(err, name, "failed to stat object")
	}
	_, err = s.bucket.Update(ctx, name, storage.ObjectAttrsToUpdate{
		Metadata: objstore.MergeMetadata(attrs.Metadata, kv),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDocumentStorage, "failed to update metadata").WithDetail(name)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func toObject(a *storage.ObjectAttrs) objstore.Object {
	return objstore.Object{
		Name:        a.Name,
		Size:        a.Size,
		ContentType: a.ContentType,
		Updated:     a.Updated,
		Metadata:    a.Metadata,
	}
}

func mapErr(err error, name, msg string) error {
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return objstore.ErrObjectNotFound.WithDetail(name)
	}
	return errors.Wrap(err, errors.ErrCodeDocumentStorage, msg).WithDetail(name)
}

var _ objstore.ObjectStore = (*Store)(nil)
