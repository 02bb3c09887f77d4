package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appmol "github.com/turtacn/molecule-search/internal/application/molecule"
	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/testutil"
	"github.com/turtacn/molecule-search/pkg/errors"
)

func newMoleculeRouter(repo molecule.Repository) *gin.Engine {
	log := testutil.NewMockLogger()
	h := NewMoleculeHandler(appmol.NewService(repo, log), log)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func hit(smiles string) *molecule.NotebookSearchResult {
	return &molecule.NotebookSearchResult{
		Notebook:      &notebook.Notebook{ID: uuid.New(), GCSPath: "gs://nb/x.pdf"},
		MatchedSMILES: []string{smiles},
		ReactionIDs:   []uuid.UUID{uuid.New()},
	}
}

func TestMoleculeSearch_GetCommaSeparated(t *testing.T) {
	repo := new(testutil.MockMoleculeRepository)
	repo.On("SearchExact", mock.Anything, []string{"CCO", "CC(=O)O"}, 20).
		Return([]*molecule.NotebookSearchResult{hit("CCO")}, nil)

	w := get(newMoleculeRouter(repo), "/api/v1/molecules/search?smiles=CCO,CC(%3DO)O&limit=20")

	require.Equal(t, http.StatusOK, w.Code)
	var res appmol.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, molecule.SearchExact, res.Type)
	assert.Equal(t, []string{"CCO", "CC(=O)O"}, res.Query)
	assert.Equal(t, 1, res.Total)
	repo.AssertExpectations(t)
}

func TestMoleculeSearch_GetRepeatedSubstructure(t *testing.T) {
	repo := new(testutil.MockMoleculeRepository)
	repo.On("SearchSubstructure", mock.Anything, "c1ccccc1", molecule.DefaultSearchLimit).
		Return([]*molecule.NotebookSearchResult{hit("Cc1ccccc1")}, nil)

	w := get(newMoleculeRouter(repo), "/api/v1/molecules/search?smiles=c1ccccc1&smiles=&type=substructure")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"substructure"`)
	repo.AssertExpectations(t)
}

func TestMoleculeSearch_Post(t *testing.T) {
	repo := new(testutil.MockMoleculeRepository)
	repo.On("SearchSimilar", mock.Anything, "CCO", 5).Return([]*molecule.NotebookSearchResult{}, nil)

	w := postJSON(newMoleculeRouter(repo), "/api/v1/molecules/search", `{"smiles":["CCO"],"type":"similarity","limit":5}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"query":["CCO"],"type":"similarity","results":[],"total":0}`, w.Body.String())
}

func TestMoleculeSearch_BadInput(t *testing.T) {
	tests := []struct {
		name   string
		do     func(r http.Handler) (int, string)
		status int
		code   errors.ErrorCode
	}{
		{
			name: "no smiles",
			do: func(r http.Handler) (int, string) {
				w := get(r, "/api/v1/molecules/search?type=exact")
				return w.Code, w.Body.String()
			},
			status: http.StatusBadRequest,
			code:   errors.CodeInvalidParam,
		},
		{
			name: "unknown type",
			do: func(r http.Handler) (int, string) {
				w := get(r, "/api/v1/molecules/search?smiles=CCO&type=fuzzy")
				return w.Code, w.Body.String()
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeMoleculeSearchType,
		},
		{
			name: "unbalanced smiles",
			do: func(r http.Handler) (int, string) {
				w := postJSON(r, "/api/v1/molecules/search", `{"smiles":["C(("]}`)
				return w.Code, w.Body.String()
			},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeMoleculeInvalidSMILES,
		},
		{
			name: "bad limit",
			do: func(r http.Handler) (int, string) {
				w := get(r, "/api/v1/molecules/search?smiles=CCO&limit=x")
				return w.Code, w.Body.String()
			},
			status: http.StatusBadRequest,
			code:   errors.CodeInvalidParam,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := new(testutil.MockMoleculeRepository)
			status, body := tt.do(newMoleculeRouter(repo))
			assert.Equal(t, tt.status, status)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			assert.Equal(t, tt.code, resp.Code)
			repo.AssertExpectations(t)
		})
	}
}
