package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"

	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/postgres"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// hitJoins walks from a molecule to the notebook whose reaction uses it.
const hitJoins = `
	FROM molecules m
	JOIN reaction_roles rr ON rr.molecule_id = m.id
	JOIN reactions r ON r.id = rr.reaction_id
	JOIN parts p ON p.id = r.part_id
	JOIN syntheses s ON s.id = p.synthesis_id
	JOIN notebooks n ON n.id = s.notebook_id`

const hitColumns = notebookColumns + `, m.canonical_smiles, r.id, rr.role`

const (
	exactSearchQuery = `SELECT ` + hitColumns + `, 0::float8` + hitJoins + `
	WHERE m.canonical_smiles = ANY($1)
	ORDER BY n.created_at DESC
	LIMIT $2`

	substructureSearchQuery = `SELECT ` + hitColumns + `, 0::float8` + hitJoins + `
	WHERE mol_from_smiles(m.canonical_smiles::cstring) @> mol_from_smiles($1::cstring)
	ORDER BY n.created_at DESC
	LIMIT $2`

	similaritySearchQuery = `SELECT ` + hitColumns + `, sim.score` + hitJoins + `
	CROSS JOIN LATERAL (
		SELECT tanimoto_sml(
			morganbv_fp(mol_from_smiles(m.canonical_smiles::cstring)),
			morganbv_fp(mol_from_smiles($1::cstring))
		) AS score
	) sim
	WHERE sim.score >= $2
	ORDER BY sim.score DESC
	LIMIT $3`
)

type postgresMoleculeRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresMoleculeRepo returns a molecule.Repository backed by conn.
// Structure search requires the RDKit cartridge.
func NewPostgresMoleculeRepo(conn *postgres.Connection, log logging.Logger) molecule.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresMoleculeRepo{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresMoleculeRepo) GetBySMILES(ctx context.Context, smiles string) (*molecule.Molecule, error) {
	query := `
		SELECT id, canonical_smiles, COALESCE(inchi, ''), COALESCE(inchi_key, ''),
		       COALESCE(molecular_formula, ''), molecular_weight, COALESCE(name, ''),
		       COALESCE(cas_number, ''), created_at, updated_at
		FROM molecules WHERE canonical_smiles = $1`

	m := &molecule.Molecule{}
	var weight sql.NullFloat64
	err := r.executor.QueryRowContext(ctx, query, smiles).Scan(
		&m.ID, &m.CanonicalSMILES, &m.InChI, &m.InChIKey,
		&m.MolecularFormula, &weight, &m.Name,
		&m.CASNumber, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeMoleculeNotFound, "molecule not found").WithDetail("smiles=" + smiles)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get molecule")
	}
	if weight.Valid {
		w := weight.Float64
		m.MolecularWeight = &w
	}
	return m, nil
}

func (r *postgresMoleculeRepo) Upsert(ctx context.Context, m *molecule.Molecule) error {
	if err := molecule.ValidateSMILES(m.CanonicalSMILES); err != nil {
		return err
	}
	var weight sql.NullFloat64
	if m.MolecularWeight != nil {
		weight = sql.NullFloat64{Float64: *m.MolecularWeight, Valid: true}
	}
	query := `
		INSERT INTO molecules (canonical_smiles, inchi, inchi_key, molecular_formula, molecular_weight, name, cas_number)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''))
		ON CONFLICT (canonical_smiles) DO UPDATE SET
			inchi = COALESCE(EXCLUDED.inchi, molecules.inchi),
			inchi_key = COALESCE(EXCLUDED.inchi_key, molecules.inchi_key),
			molecular_formula = COALESCE(EXCLUDED.molecular_formula, molecules.molecular_formula),
			molecular_weight = COALESCE(EXCLUDED.molecular_weight, molecules.molecular_weight),
			name = COALESCE(EXCLUDED.name, molecules.name),
			cas_number = COALESCE(EXCLUDED.cas_number, molecules.cas_number),
			updated_at = NOW()
		RETURNING id, created_at, updated_at`
	err := r.executor.QueryRowContext(ctx, query,
		m.CanonicalSMILES, m.InChI, m.InChIKey, m.MolecularFormula, weight, m.Name, m.CASNumber,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		r.log.Error("failed to upsert molecule", append(pgFields(err), logging.String("smiles", m.CanonicalSMILES))...)
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert molecule")
	}
	return nil
}

func (r *postgresMoleculeRepo) SearchExact(ctx context.Context, smiles []string, limit int) ([]*molecule.NotebookSearchResult, error) {
	if len(smiles) == 0 {
		return []*molecule.NotebookSearchResult{}, nil
	}
	hits, err := r.searchRows(ctx, "", exactSearchQuery, pq.Array(smiles), molecule.ClampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "exact molecule search failed")
	}
	// The query is the matched canonical SMILES itself.
	for i := range hits {
		hits[i].Query = hits[i].SMILES
	}
	return molecule.GroupRows(hits), nil
}

// SearchSubstructure falls back to exact matching when the cartridge rejects
// the query, which also covers databases without RDKit.
func (r *postgresMoleculeRepo) SearchSubstructure(ctx context.Context, smiles string, limit int) ([]*molecule.NotebookSearchResult, error) {
	hits, err := r.searchRows(ctx, smiles, substructureSearchQuery, smiles, molecule.ClampLimit(limit))
	if err != nil {
		r.log.Warn("substructure search failed, falling back to exact match",
			append(pgFields(err), logging.String("smiles", smiles))...)
		return r.SearchExact(ctx, []string{smiles}, limit)
	}
	return molecule.GroupRows(hits), nil
}

// SearchSimilar returns no results, not an error, when the cartridge is
// unavailable.
func (r *postgresMoleculeRepo) SearchSimilar(ctx context.Context, smiles string, limit int) ([]*molecule.NotebookSearchResult, error) {
	hits, err := r.searchRows(ctx, smiles, similaritySearchQuery, smiles, molecule.SimilarityThreshold, molecule.ClampLimit(limit))
	if err != nil {
		r.log.Warn("similarity search failed",
			append(pgFields(err), logging.String("smiles", smiles))...)
		return []*molecule.NotebookSearchResult{}, nil
	}
	return molecule.GroupRows(hits), nil
}

func (r *postgresMoleculeRepo) searchRows(ctx context.Context, query, sqlText string, args ...interface{}) ([]molecule.SearchRow, error) {
	rows, err := r.executor.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []molecule.SearchRow
	for rows.Next() {
		var (
			hit  = molecule.SearchRow{Query: query}
			role string
		)
		nb, err := scanNotebook(rows, &hit.SMILES, &hit.ReactionID, &role, &hit.Similarity)
		if err != nil {
			return nil, err
		}
		hit.Notebook = nb
		hit.Role = notebook.Role(role)
		out = append(out, hit)
	}
	return out, rows.Err()
}
