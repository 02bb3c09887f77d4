package molecule

import (
	"context"
)

// SearchQuery describes a reverse lookup from structures to notebooks.
type SearchQuery struct {
	SMILES []string
	Type   SearchType
	// RequireAll keeps only notebooks that matched every SMILES.
	RequireAll bool
	Limit      int
}

// Repository is the persistence contract for molecules and structure search.
type Repository interface {
	// GetBySMILES returns errors.CodeMoleculeNotFound when absent.
	GetBySMILES(ctx context.Context, smiles string) (*Molecule, error)

	// Upsert inserts or updates by canonical SMILES and fills ID.
	Upsert(ctx context.Context, m *Molecule) error

	// SearchExact matches any of smiles by canonical form.
	SearchExact(ctx context.Context, smiles []string, limit int) ([]*NotebookSearchResult, error)

	// SearchSubstructure matches molecules containing the query structure.
	// Implementations fall back to exact matching when structure search is
	// unavailable.
	SearchSubstructure(ctx context.Context, smiles string, limit int) ([]*NotebookSearchResult, error)

	// SearchSimilar matches molecules at or above SimilarityThreshold.
	SearchSimilar(ctx context.Context, smiles string, limit int) ([]*NotebookSearchResult, error)
}
