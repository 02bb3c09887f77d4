package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
)

// ─────────────────────────────────────────────────────────────────────────────
// Notebook repository
// ─────────────────────────────────────────────────────────────────────────────

// MockNotebookRepository is a testify mock of notebook.Repository.
type MockNotebookRepository struct {
	mock.Mock
}

var _ notebook.Repository = (*MockNotebookRepository)(nil)

func (m *MockNotebookRepository) notebooks(args mock.Arguments) ([]*notebook.Notebook, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*notebook.Notebook), args.Error(1)
}

func (m *MockNotebookRepository) one(args mock.Arguments) (*notebook.Notebook, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notebook.Notebook), args.Error(1)
}

func (m *MockNotebookRepository) List(ctx context.Context, f notebook.ListFilter) ([]*notebook.Notebook, error) {
	return m.notebooks(m.Called(ctx, f))
}

func (m *MockNotebookRepository) GetByID(ctx context.Context, id uuid.UUID) (*notebook.Notebook, error) {
	return m.one(m.Called(ctx, id))
}

func (m *MockNotebookRepository) GetByGCSPath(ctx context.Context, gcsPath string) (*notebook.Notebook, error) {
	return m.one(m.Called(ctx, gcsPath))
}

func (m *MockNotebookRepository) GetByFilename(ctx context.Context, filename string) (*notebook.Notebook, error) {
	return m.one(m.Called(ctx, filename))
}

func (m *MockNotebookRepository) GetWithHierarchy(ctx context.Context, id uuid.UUID) (*notebook.Notebook, error) {
	return m.one(m.Called(ctx, id))
}

func (m *MockNotebookRepository) SearchByTitle(ctx context.Context, query string, limit int) ([]*notebook.Notebook, error) {
	return m.notebooks(m.Called(ctx, query, limit))
}

func (m *MockNotebookRepository) ListWithMolecule(ctx context.Context, smiles string) ([]*notebook.Notebook, error) {
	return m.notebooks(m.Called(ctx, smiles))
}

func (m *MockNotebookRepository) Upsert(ctx context.Context, n *notebook.Notebook) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotebookRepository) Authors(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Molecule repository
// ─────────────────────────────────────────────────────────────────────────────

// MockMoleculeRepository is a testify mock of molecule.Repository.
type MockMoleculeRepository struct {
	mock.Mock
}

var _ molecule.Repository = (*MockMoleculeRepository)(nil)

func (m *MockMoleculeRepository) results(args mock.Arguments) ([]*molecule.NotebookSearchResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*molecule.NotebookSearchResult), args.Error(1)
}

func (m *MockMoleculeRepository) GetBySMILES(ctx context.Context, smiles string) (*molecule.Molecule, error) {
	args := m.Called(ctx, smiles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*molecule.Molecule), args.Error(1)
}

func (m *MockMoleculeRepository) Upsert(ctx context.Context, mol *molecule.Molecule) error {
	return m.Called(ctx, mol).Error(0)
}

func (m *MockMoleculeRepository) SearchExact(ctx context.Context, smiles []string, limit int) ([]*molecule.NotebookSearchResult, error) {
	return m.results(m.Called(ctx, smiles, limit))
}

func (m *MockMoleculeRepository) SearchSubstructure(ctx context.Context, smiles string, limit int) ([]*molecule.NotebookSearchResult, error) {
	return m.results(m.Called(ctx, smiles, limit))
}

func (m *MockMoleculeRepository) SearchSimilar(ctx context.Context, smiles string, limit int) ([]*molecule.NotebookSearchResult, error) {
	return m.results(m.Called(ctx, smiles, limit))
}
