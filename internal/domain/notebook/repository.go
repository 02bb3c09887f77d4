package notebook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	// DateLayout is the format accepted for date_from and date_to.
	DateLayout = "2006-01-02"
)

// ListFilter narrows a notebook listing.
type ListFilter struct {
	// Search matches title or description, case-insensitively.
	Search string
	// Author is accepted but ignored until notebooks carry an author column.
	Author   string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

// Validate applies the default limit and rejects out-of-range values.
func (f *ListFilter) Validate() error {
	f.Search = strings.TrimSpace(f.Search)
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit < 1 || f.Limit > MaxListLimit {
		return errors.New(errors.ErrCodeNotebookInvalidFilter,
			fmt.Sprintf("limit must be between 1 and %d", MaxListLimit))
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return errors.New(errors.ErrCodeNotebookInvalidFilter, "date_to is before date_from")
	}
	return nil
}

// CacheKey renders f as a stable cache key fragment.
func (f ListFilter) CacheKey() string {
	day := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(DateLayout)
	}
	return fmt.Sprintf("s=%s|a=%s|from=%s|to=%s|l=%d",
		strings.ToLower(f.Search), strings.ToLower(f.Author), day(f.DateFrom), day(f.DateTo), f.Limit)
}

// ParseDate parses an optional YYYY-MM-DD value. Empty input yields nil.
func ParseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotebookInvalidFilter,
			fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field))
	}
	return &t, nil
}

// Repository is the persistence contract for notebooks.
type Repository interface {
	// List returns notebooks matching f, newest first.
	List(ctx context.Context, f ListFilter) ([]*Notebook, error)

	// GetByID returns errors.CodeNotebookNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Notebook, error)

	// GetByGCSPath looks a notebook up by its full storage path.
	GetByGCSPath(ctx context.Context, gcsPath string) (*Notebook, error)

	// GetByFilename matches the end of the storage path.
	GetByFilename(ctx context.Context, filename string) (*Notebook, error)

	// GetWithHierarchy loads syntheses, parts, reactions and roles.
	GetWithHierarchy(ctx context.Context, id uuid.UUID) (*Notebook, error)

	// SearchByTitle is a case-insensitive substring match on the title.
	SearchByTitle(ctx context.Context, query string, limit int) ([]*Notebook, error)

	// ListWithMolecule returns every notebook whose reactions use smiles.
	ListWithMolecule(ctx context.Context, smiles string) ([]*Notebook, error)

	// Upsert inserts or updates by gcs_path and fills ID and timestamps.
	Upsert(ctx context.Context, n *Notebook) error

	// Authors returns distinct author names. Empty until the schema has them.
	Authors(ctx context.Context) ([]string, error)
}
