package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/postgres"
	"github.com/turtacn/molecule-search/internal/testutil"
	"github.com/turtacn/molecule-search/pkg/errors"
)

var hitCols = append(append([]string{}, notebookCols...), "canonical_smiles", "reaction_id", "role", "score")

type MoleculeRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo molecule.Repository
	log  *testutil.MockLogger
	now  time.Time
}

func (s *MoleculeRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	s.log = testutil.NewMockLogger()
	conn := postgres.NewConnectionWithDB(s.db, s.log)
	s.repo = NewPostgresMoleculeRepo(conn, s.log)
	s.now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func (s *MoleculeRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *MoleculeRepoTestSuite) addHit(rows *sqlmock.Rows, nbID uuid.UUID, smiles, role string, score float64) *sqlmock.Rows {
	return rows.AddRow(nbID.String(), "notebooks/"+nbID.String()[:8]+".pdf", "", "", s.now, s.now,
		smiles, uuid.NewString(), role, score)
}

func (s *MoleculeRepoTestSuite) TestGetBySMILES() {
	id := uuid.New()
	s.mock.ExpectQuery(`FROM molecules WHERE canonical_smiles = \$1`).
		WithArgs("CCO").
		WillReturnRows(sqlmock.NewRows([]string{"id", "canonical_smiles", "inchi", "inchi_key", "molecular_formula",
			"molecular_weight", "name", "cas_number", "created_at", "updated_at"}).
			AddRow(id.String(), "CCO", "InChI=1S/C2H6O/c1-2-3/h3H,2H2,1H3", "LFQSCWFLJHTTHZ-UHFFFAOYSA-N",
				"C2H6O", 46.07, "ethanol", "64-17-5", s.now, s.now))

	m, err := s.repo.GetBySMILES(context.Background(), "CCO")
	s.Require().NoError(err)
	s.Equal(id, m.ID)
	s.Require().NotNil(m.MolecularWeight)
	s.InDelta(46.07, *m.MolecularWeight, 1e-9)
	s.Equal("64-17-5", m.CASNumber)
}

func (s *MoleculeRepoTestSuite) TestGetBySMILES_NullWeight() {
	s.mock.ExpectQuery(`FROM molecules`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "canonical_smiles", "inchi", "inchi_key", "molecular_formula",
			"molecular_weight", "name", "cas_number", "created_at", "updated_at"}).
			AddRow(uuid.NewString(), "O", "", "", "", nil, "", "", s.now, s.now))

	m, err := s.repo.GetBySMILES(context.Background(), "O")
	s.Require().NoError(err)
	s.Nil(m.MolecularWeight)
}

func (s *MoleculeRepoTestSuite) TestGetBySMILES_NotFound() {
	s.mock.ExpectQuery(`FROM molecules`).WillReturnError(sql.ErrNoRows)

	_, err := s.repo.GetBySMILES(context.Background(), "CCCCCC")
	s.True(errors.IsCode(err, errors.ErrCodeMoleculeNotFound))
}

func (s *MoleculeRepoTestSuite) TestUpsert() {
	w := 46.07
	m := &molecule.Molecule{CanonicalSMILES: "CCO", Name: "ethanol", MolecularWeight: &w}
	id := uuid.New()

	s.mock.ExpectQuery(`INSERT INTO molecules .* ON CONFLICT \(canonical_smiles\) DO UPDATE`).
		WithArgs("CCO", "", "", "", w, "ethanol", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id.String(), s.now, s.now))

	s.Require().NoError(s.repo.Upsert(context.Background(), m))
	s.Equal(id, m.ID)
}

func (s *MoleculeRepoTestSuite) TestUpsert_InvalidSMILES() {
	err := s.repo.Upsert(context.Background(), &molecule.Molecule{CanonicalSMILES: "C(("})
	s.True(errors.IsCode(err, errors.ErrCodeMoleculeInvalidSMILES))
}

func (s *MoleculeRepoTestSuite) TestSearchExact_GroupsByNotebook() {
	nb1, nb2 := uuid.New(), uuid.New()
	rows := sqlmock.NewRows(hitCols)
	s.addHit(rows, nb1, "CCO", "solvent", 0)
	s.addHit(rows, nb2, "CCN", "reactant", 0)
	s.addHit(rows, nb1, "CCN", "product", 0)

	s.mock.ExpectQuery(`WHERE m.canonical_smiles = ANY\(\$1\)\s+ORDER BY n.created_at DESC\s+LIMIT \$2`).
		WithArgs(pq.Array([]string{"CCO", "CCN"}), 25).
		WillReturnRows(rows)

	got, err := s.repo.SearchExact(context.Background(), []string{"CCO", "CCN"}, 25)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(nb1, got[0].Notebook.ID)
	s.Equal([]string{"CCO", "CCN"}, got[0].MatchedSMILES)
	s.Equal([]string{"CCO", "CCN"}, got[0].MatchedQueries)
	s.Len(got[0].ReactionIDs, 2)
	s.Equal([]string{"CCN"}, got[1].MatchedSMILES)
}

func (s *MoleculeRepoTestSuite) TestSearchExact_Empty() {
	got, err := s.repo.SearchExact(context.Background(), nil, 10)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *MoleculeRepoTestSuite) TestSearchSubstructure() {
	nb := uuid.New()
	rows := sqlmock.NewRows(hitCols)
	s.addHit(rows, nb, "Cc1ccccc1", "reactant", 0)

	s.mock.ExpectQuery(`mol_from_smiles\(m.canonical_smiles::cstring\) @> mol_from_smiles\(\$1::cstring\)`).
		WithArgs("c1ccccc1", molecule.DefaultSearchLimit).
		WillReturnRows(rows)

	got, err := s.repo.SearchSubstructure(context.Background(), "c1ccccc1", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal([]string{"Cc1ccccc1"}, got[0].MatchedSMILES)
	s.Equal([]string{"c1ccccc1"}, got[0].MatchedQueries)
}

func (s *MoleculeRepoTestSuite) TestSearchSubstructure_FallsBackToExact() {
	nb := uuid.New()
	s.mock.ExpectQuery(`@>`).
		WillReturnError(&pgconn.PgError{Code: "42883", Message: "function mol_from_smiles(cstring) does not exist"})

	rows := sqlmock.NewRows(hitCols)
	s.addHit(rows, nb, "c1ccccc1", "solvent", 0)
	s.mock.ExpectQuery(`= ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"c1ccccc1"}), molecule.DefaultSearchLimit).
		WillReturnRows(rows)

	got, err := s.repo.SearchSubstructure(context.Background(), "c1ccccc1", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)

	entry, ok := s.log.Find("warn", "substructure search failed, falling back to exact match")
	s.Require().True(ok)
	code, _ := entry.Field("pg_code")
	s.Equal("42883", code)
}

func (s *MoleculeRepoTestSuite) TestSearchSimilar() {
	nb1, nb2 := uuid.New(), uuid.New()
	rows := sqlmock.NewRows(hitCols)
	s.addHit(rows, nb2, "CCCO", "reactant", 0.91)
	s.addHit(rows, nb1, "CCO", "solvent", 0.74)

	s.mock.ExpectQuery(`tanimoto_sml\(.*WHERE sim.score >= \$2\s+ORDER BY sim.score DESC\s+LIMIT \$3`).
		WithArgs("CCO", molecule.SimilarityThreshold, 10).
		WillReturnRows(rows)

	got, err := s.repo.SearchSimilar(context.Background(), "CCO", 10)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(nb2, got[0].Notebook.ID)
	s.InDelta(0.91, got[0].Similarity, 1e-9)
}

func (s *MoleculeRepoTestSuite) TestSearchSimilar_ErrorIsEmpty() {
	s.mock.ExpectQuery(`tanimoto_sml`).WillReturnError(stderrors.New("type mol does not exist"))

	got, err := s.repo.SearchSimilar(context.Background(), "CCO", 10)
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)
	s.True(s.log.HasMessage("warn", "similarity search failed"))
}

func TestMoleculeRepoTestSuite(t *testing.T) {
	suite.Run(t, new(MoleculeRepoTestSuite))
}
