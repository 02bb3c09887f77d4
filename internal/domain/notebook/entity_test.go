package notebook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molecule-search/pkg/errors"
)

func TestNotebook_DisplayTitle(t *testing.T) {
	tests := []struct {
		name string
		nb   Notebook
		want string
	}{
		{"title wins", Notebook{Title: "Suzuki couplings", GCSPath: "notebooks/nb1.pdf"}, "Suzuki couplings"},
		{"filename fallback", Notebook{GCSPath: "gs://lab/notebooks/nb1.pdf"}, "nb1.pdf"},
		{"trailing slash", Notebook{GCSPath: "notebooks/archive/"}, "archive"},
		{"empty", Notebook{}, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.nb.DisplayTitle())
		})
	}
}

func TestReaction_WithRole(t *testing.T) {
	r := &Reaction{Roles: []*ReactionRole{
		{SMILES: "CCO", Role: RoleSolvent},
		{SMILES: "c1ccccc1Br", Role: RoleReactant},
		{SMILES: "c1ccccc1-c1ccccc1", Role: RoleProduct},
		{SMILES: "OB(O)c1ccccc1", Role: RoleReactant},
	}}
	assert.Len(t, r.Reactants(), 2)
	require.Len(t, r.Products(), 1)
	assert.Equal(t, "c1ccccc1-c1ccccc1", r.Products()[0].SMILES)
	assert.Empty(t, r.WithRole(RoleCatalyst))
}

func TestListFilter_Validate(t *testing.T) {
	f := ListFilter{Search: "  amide "}
	require.NoError(t, f.Validate())
	assert.Equal(t, DefaultListLimit, f.Limit)
	assert.Equal(t, "amide", f.Search)

	for _, limit := range []int{-1, MaxListLimit + 1} {
		f := ListFilter{Limit: limit}
		err := f.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeNotebookInvalidFilter))
	}

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	f = ListFilter{DateFrom: &from, DateTo: &to}
	assert.Error(t, f.Validate())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("date_from", "")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDate("date_from", "2024-02-29")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, time.February, d.Month())

	_, err = ParseDate("date_to", "29/02/2024")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotebookInvalidFilter))
	assert.Contains(t, err.Error(), "date_to")
}

func TestListFilter_CacheKey(t *testing.T) {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	a := ListFilter{Search: "Amide", DateFrom: &d, Limit: 50}
	b := ListFilter{Search: "amide", DateFrom: &d, Limit: 50}
	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), ListFilter{Search: "amide", Limit: 50}.CacheKey())
}
