package molecule_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/testutil"
	"github.com/turtacn/molecule-search/pkg/errors"
)

func hit(nb *notebook.Notebook, query, smiles string) []*molecule.NotebookSearchResult {
	return molecule.GroupRows([]molecule.SearchRow{{
		Notebook: nb, Query: query, SMILES: smiles, ReactionID: uuid.New(), Role: notebook.RoleReactant,
	}})
}

func TestSearchNotebooks_Dispatch(t *testing.T) {
	ctx := context.Background()
	repo := new(testutil.MockMoleculeRepository)
	repo.On("SearchExact", ctx, []string{"CCO"}, molecule.DefaultSearchLimit).Return([]*molecule.NotebookSearchResult{}, nil).Once()
	repo.On("SearchSubstructure", ctx, "c1ccccc1", 5).Return([]*molecule.NotebookSearchResult{}, nil).Once()
	repo.On("SearchSimilar", ctx, "CCN", molecule.MaxSearchLimit).Return([]*molecule.NotebookSearchResult{}, nil).Once()

	_, err := molecule.SearchNotebooks(ctx, repo, "CCO", molecule.SearchExact, 0)
	require.NoError(t, err)
	_, err = molecule.SearchNotebooks(ctx, repo, "c1ccccc1", molecule.SearchSubstructure, 5)
	require.NoError(t, err)
	_, err = molecule.SearchNotebooks(ctx, repo, "CCN", molecule.SearchSimilarity, 9999)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestSearchNotebooks_InvalidSMILES(t *testing.T) {
	repo := new(testutil.MockMoleculeRepository)
	_, err := molecule.SearchNotebooks(context.Background(), repo, "C(C", molecule.SearchExact, 10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeInvalidSMILES))
	repo.AssertNotCalled(t, "SearchExact", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchNotebooksMulti_ExactIsOneQuery(t *testing.T) {
	ctx := context.Background()
	nb := &notebook.Notebook{ID: uuid.New()}
	repo := new(testutil.MockMoleculeRepository)
	repo.On("SearchExact", ctx, []string{"CCO", "CCN"}, 20).
		Return(molecule.MergeResults(hit(nb, "CCO", "CCO"), hit(nb, "CCN", "CCN")), nil).Once()

	got, err := molecule.SearchNotebooksMulti(ctx, repo, molecule.SearchQuery{
		SMILES: []string{"CCO", "", "CCN", "CCO"},
		Type:   molecule.SearchExact,
		Limit:  20,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"CCO", "CCN"}, got[0].MatchedSMILES)
	repo.AssertExpectations(t)
}

func TestSearchNotebooksMulti_StructuralMergesAndRequiresAll(t *testing.T) {
	ctx := context.Background()
	both := &notebook.Notebook{ID: uuid.New(), Title: "both"}
	onlyA := &notebook.Notebook{ID: uuid.New(), Title: "only benzene"}

	repo := new(testutil.MockMoleculeRepository)
	repo.On("SearchSubstructure", ctx, "c1ccccc1", molecule.DefaultSearchLimit).
		Return(molecule.MergeResults(hit(onlyA, "c1ccccc1", "Cc1ccccc1"), hit(both, "c1ccccc1", "Oc1ccccc1")), nil)
	repo.On("SearchSubstructure", ctx, "C(=O)O", molecule.DefaultSearchLimit).
		Return(hit(both, "C(=O)O", "CC(=O)O"), nil)

	q := molecule.SearchQuery{SMILES: []string{"c1ccccc1", "C(=O)O"}, Type: molecule.SearchSubstructure}

	anyHits, err := molecule.SearchNotebooksMulti(ctx, repo, q)
	require.NoError(t, err)
	require.Len(t, anyHits, 2)
	assert.Equal(t, onlyA.ID, anyHits[0].Notebook.ID)

	q.RequireAll = true
	all, err := molecule.SearchNotebooksMulti(ctx, repo, q)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, both.ID, all[0].Notebook.ID)
	assert.ElementsMatch(t, []string{"Oc1ccccc1", "CC(=O)O"}, all[0].MatchedSMILES)
}

func TestSearchNotebooksMulti_Empty(t *testing.T) {
	repo := new(testutil.MockMoleculeRepository)
	got, err := molecule.SearchNotebooksMulti(context.Background(), repo, molecule.SearchQuery{SMILES: []string{""}})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
