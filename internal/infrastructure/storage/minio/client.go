// Package minio implements storage.ObjectStore on an S3-compatible MinIO
// server, used for local development in place of GCS.
package minio

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	objstore "github.com/turtacn/molecule-search/internal/infrastructure/storage"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client the store calls.
type MinIOAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
}

type Store struct {
	client MinIOAPI
	bucket string
	logger logging.Logger
}

// NewStore connects to the configured endpoint and checks that the bucket
// exists.
func NewStore(ctx context.Context, cfg config.StorageConfig, log logging.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeValidation, "storage bucket is required")
	}
	region := cfg.MinIO.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDocumentStorage, "failed to create minio client")
	}

	s := NewStoreWithAPI(client, cfg.Bucket, log)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}
	if !exists {
		return nil, errors.New(errors.ErrCodeDocumentStorage, "bucket does not exist").WithDetail(cfg.Bucket)
	}
	s.logger.Info("MinIO store ready", logging.String("endpoint", cfg.MinIO.Endpoint), logging.Bool("ssl", cfg.MinIO.UseSSL))
	return s, nil
}

func NewStoreWithAPI(api MinIOAPI, bucket string, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{
		client: api,
		bucket: bucket,
		logger: log.Named("minio").With(logging.String("bucket", bucket)),
	}
}

func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) List(ctx context.Context, prefix string) ([]objstore.Object, error) {
	var out []objstore.Object
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true, WithMetadata: true}
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, errors.ErrCodeDocumentStorage, "failed to list objects")
		}
		out = append(out, toObject(info))
	}
	return out, nil
}

func (s *Store) Stat(ctx context.Context, name string) (*objstore.Object, error) {
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapErr(err, name)
	}
	obj := toObject(info)
	return &obj, nil
}

func (s *Store) PresignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if _, err := s.Stat(ctx, name); err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("response-content-type", "application/pdf")
	u, err := s.client.PresignedGetObject(ctx, s.bucket, name, ttl, params)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDocumentPresign, "failed to presign URL").WithDetail(name)
	}
	return u.String(), nil
}

// UpdateMetadata rewrites the object onto itself with merged user metadata;
// S3 has no in-place metadata patch.
func (s *Store) UpdateMetadata(ctx context.Context, name string, kv map[string]string) error {
	current, err := s.Stat(ctx, name)
	if err != nil {
		return err
	}
	dst := minio.CopyDestOptions{
		Bucket:          s.bucket,
		Object:          name,
		UserMetadata:    objstore.MergeMetadata(current.Metadata, kv),
		ReplaceMetadata: true,
	}
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: name}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return errors.Wrap(err, errors.ErrCodeDocumentStorage, "failed to update metadata").WithDetail(name)
	}
	return nil
}

func toObject(info minio.ObjectInfo) objstore.Object {
	var meta map[string]string
	if len(info.UserMetadata) > 0 {
		meta = make(map[string]string, len(info.UserMetadata))
		for k, v := range info.UserMetadata {
			// Keys come back in canonical header form, e.g. Notebook_id.
			k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
			meta[k] = v
		}
	}
	return objstore.Object{
		Name:        info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		Updated:     info.LastModified,
		Metadata:    meta,
	}
}

func mapErr(err error, name string) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return objstore.ErrObjectNotFound.WithDetail(name)
	}
	return errors.Wrap(err, errors.ErrCodeDocumentStorage, "failed to stat object").WithDetail(name)
}

var _ objstore.ObjectStore = (*Store)(nil)
