// Package storage defines the object store port shared by the GCS and MinIO
// backends of the document browser.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/molecule-search/pkg/errors"
)

// MetadataNotebookID is the custom metadata key linking a PDF to its notebook.
const MetadataNotebookID = "notebook_id"

var ErrObjectNotFound = errors.New(errors.ErrCodeDocumentNotFound, "object not found")

// Object describes one stored object.
type Object struct {
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type,omitempty"`
	Updated     time.Time         `json:"updated"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsDir reports whether the object is a folder placeholder.
func (o Object) IsDir() bool {
	return strings.HasSuffix(o.Name, "/")
}

// ObjectStore is the subset of bucket operations the document browser needs.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Stat(ctx context.Context, name string) (*Object, error)
	PresignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)
	// UpdateMetadata merges kv into the object's custom metadata.
	UpdateMetadata(ctx context.Context, name string, kv map[string]string) error
	Bucket() string
}

// MergeMetadata returns a copy of base with kv applied on top.
func MergeMetadata(base, kv map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(kv))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range kv {
		out[k] = v
	}
	return out
}
