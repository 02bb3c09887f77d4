package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSource_PairsUpAndDown(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	up := map[string]bool{}
	down := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			up[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			down[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, up, down)
}

func TestMigrationSource_Versions(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	var versions []uint
	for v := first; ; {
		versions = append(versions, v)
		next, err := src.Next(v)
		if err != nil {
			break
		}
		v = next
	}
	assert.Equal(t, []uint{1, 2, 3}, versions)
}

func TestMigrationSource_Schema(t *testing.T) {
	body, err := fs.ReadFile(migrationFS, "migrations/000002_create_molecules.up.sql")
	require.NoError(t, err)
	sql := string(body)
	assert.Contains(t, sql, "canonical_smiles  TEXT NOT NULL UNIQUE")
	assert.Contains(t, sql, "idx_reaction_roles_molecule_role ON reaction_roles (molecule_id, role)")
}
