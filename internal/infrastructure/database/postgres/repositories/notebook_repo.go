package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/postgres"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

type postgresNotebookRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresNotebookRepo returns a notebook.Repository backed by conn.
func NewPostgresNotebookRepo(conn *postgres.Connection, log logging.Logger) notebook.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresNotebookRepo{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

// WithTx runs fn against a repository bound to a single transaction.
func (r *postgresNotebookRepo) WithTx(ctx context.Context, fn func(notebook.Repository) error) error {
	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}

	txRepo := &postgresNotebookRepo{
		conn:     r.conn,
		log:      r.log,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

func (r *postgresNotebookRepo) List(ctx context.Context, f notebook.ListFilter) ([]*notebook.Notebook, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []interface{}
	)
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		conds = append(conds, fmt.Sprintf("(n.title ILIKE $%d OR n.description ILIKE $%d)", len(args), len(args)))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		conds = append(conds, fmt.Sprintf("n.created_at >= $%d", len(args)))
	}
	if f.DateTo != nil {
		// date_to names a whole day.
		args = append(args, f.DateTo.Add(24*time.Hour))
		conds = append(conds, fmt.Sprintf("n.created_at < $%d", len(args)))
	}

	query := `SELECT ` + notebookColumns + ` FROM notebooks n`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY n.created_at DESC LIMIT $%d`, len(args))

	return r.queryNotebooks(ctx, "list notebooks", query, args...)
}

func (r *postgresNotebookRepo) GetByID(ctx context.Context, id uuid.UUID) (*notebook.Notebook, error) {
	query := `SELECT ` + notebookColumns + ` FROM notebooks n WHERE n.id = $1`
	return r.getOne(ctx, "id="+id.String(), query, id)
}

func (r *postgresNotebookRepo) GetByGCSPath(ctx context.Context, gcsPath string) (*notebook.Notebook, error) {
	query := `SELECT ` + notebookColumns + ` FROM notebooks n WHERE n.gcs_path = $1`
	return r.getOne(ctx, "gcs_path="+gcsPath, query, gcsPath)
}

func (r *postgresNotebookRepo) GetByFilename(ctx context.Context, filename string) (*notebook.Notebook, error) {
	query := `SELECT ` + notebookColumns + ` FROM notebooks n
		WHERE n.gcs_path = $1 OR n.gcs_path LIKE $2
		ORDER BY n.created_at DESC LIMIT 1`
	return r.getOne(ctx, "filename="+filename, query, filename, "%/"+escapeLike(filename))
}

func (r *postgresNotebookRepo) GetWithHierarchy(ctx context.Context, id uuid.UUID) (*notebook.Notebook, error) {
	nb, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	syntheses, err := r.loadSyntheses(ctx, nb.ID)
	if err != nil {
		return nil, err
	}
	nb.Syntheses = syntheses
	if len(syntheses) == 0 {
		return nb, nil
	}

	partsBySynthesis, partIDs, err := r.loadParts(ctx, syntheses)
	if err != nil {
		return nil, err
	}
	for _, s := range syntheses {
		s.Parts = partsBySynthesis[s.ID]
	}
	if len(partIDs) == 0 {
		return nb, nil
	}

	reactionsByPart, reactionIDs, err := r.loadReactions(ctx, partIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range syntheses {
		for _, p := range s.Parts {
			p.Reactions = reactionsByPart[p.ID]
		}
	}
	if len(reactionIDs) == 0 {
		return nb, nil
	}

	rolesByReaction, err := r.loadRoles(ctx, reactionIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range syntheses {
		for _, p := range s.Parts {
			for _, rx := range p.Reactions {
				rx.Roles = rolesByReaction[rx.ID]
			}
		}
	}
	return nb, nil
}

func (r *postgresNotebookRepo) SearchByTitle(ctx context.Context, q string, limit int) ([]*notebook.Notebook, error) {
	if limit <= 0 || limit > notebook.MaxListLimit {
		limit = notebook.DefaultListLimit
	}
	query := `SELECT ` + notebookColumns + ` FROM notebooks n
		WHERE n.title ILIKE $1
		ORDER BY n.created_at DESC LIMIT $2`
	return r.queryNotebooks(ctx, "search notebooks by title", query, "%"+escapeLike(strings.TrimSpace(q))+"%", limit)
}

func (r *postgresNotebookRepo) ListWithMolecule(ctx context.Context, smiles string) ([]*notebook.Notebook, error) {
	query := `SELECT DISTINCT ` + notebookColumns + `
		FROM notebooks n
		JOIN syntheses s ON s.notebook_id = n.id
		JOIN parts p ON p.synthesis_id = s.id
		JOIN reactions r ON r.part_id = p.id
		JOIN reaction_roles rr ON rr.reaction_id = r.id
		JOIN molecules m ON m.id = rr.molecule_id
		WHERE m.canonical_smiles = $1
		ORDER BY n.created_at DESC`
	return r.queryNotebooks(ctx, "list notebooks with molecule", query, smiles)
}

func (r *postgresNotebookRepo) Upsert(ctx context.Context, n *notebook.Notebook) error {
	if n.GCSPath == "" {
		return errors.InvalidParam("notebook gcs_path is required")
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO notebooks (id, gcs_path, title, description)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (gcs_path) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`
	err := r.executor.QueryRowContext(ctx, query, n.ID, n.GCSPath, n.Title, n.Description).
		Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		r.log.Error("failed to upsert notebook", append(pgFields(err), logging.String("gcs_path", n.GCSPath))...)
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert notebook")
	}
	return nil
}

// Authors is empty until notebooks carry an author column.
func (r *postgresNotebookRepo) Authors(context.Context) ([]string, error) {
	return []string{}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *postgresNotebookRepo) getOne(ctx context.Context, detail, query string, args ...interface{}) (*notebook.Notebook, error) {
	nb, err := scanNotebook(r.executor.QueryRowContext(ctx, query, args...))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeNotebookNotFound, "notebook not found").WithDetail(detail)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get notebook")
	}
	return nb, nil
}

func (r *postgresNotebookRepo) queryNotebooks(ctx context.Context, op, query string, args ...interface{}) ([]*notebook.Notebook, error) {
	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to "+op, pgFields(err)...)
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to "+op)
	}
	defer rows.Close()

	out := []*notebook.Notebook{}
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan notebook")
		}
		out = append(out, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to "+op)
	}
	return out, nil
}

func (r *postgresNotebookRepo) loadSyntheses(ctx context.Context, notebookID uuid.UUID) ([]*notebook.Synthesis, error) {
	rows, err := r.executor.QueryContext(ctx, `
		SELECT id, notebook_id, COALESCE(name, ''), COALESCE(description, ''), created_at
		FROM syntheses WHERE notebook_id = $1 ORDER BY created_at`, notebookID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load syntheses")
	}
	defer rows.Close()

	var out []*notebook.Synthesis
	for rows.Next() {
		s := &notebook.Synthesis{}
		if err := rows.Scan(&s.ID, &s.NotebookID, &s.Name, &s.Description, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan synthesis")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *postgresNotebookRepo) loadParts(ctx context.Context, syntheses []*notebook.Synthesis) (map[uuid.UUID][]*notebook.Part, []string, error) {
	ids := make([]string, len(syntheses))
	for i, s := range syntheses {
		ids[i] = s.ID.String()
	}
	rows, err := r.executor.QueryContext(ctx, `
		SELECT id, synthesis_id, COALESCE(name, ''), sequence_number, COALESCE(description, ''), created_at
		FROM parts WHERE synthesis_id = ANY($1::uuid[])
		ORDER BY sequence_number, created_at`, pq.Array(ids))
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load parts")
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]*notebook.Part)
	var partIDs []string
	for rows.Next() {
		p := &notebook.Part{}
		if err := rows.Scan(&p.ID, &p.SynthesisID, &p.Name, &p.SequenceNumber, &p.Description, &p.CreatedAt); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan part")
		}
		out[p.SynthesisID] = append(out[p.SynthesisID], p)
		partIDs = append(partIDs, p.ID.String())
	}
	return out, partIDs, rows.Err()
}

func (r *postgresNotebookRepo) loadReactions(ctx context.Context, partIDs []string) (map[uuid.UUID][]*notebook.Reaction, []string, error) {
	rows, err := r.executor.QueryContext(ctx, `
		SELECT id, part_id, COALESCE(name, ''), COALESCE(reaction_smiles, ''), COALESCE(description, ''), created_at
		FROM reactions WHERE part_id = ANY($1::uuid[])
		ORDER BY created_at`, pq.Array(partIDs))
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load reactions")
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]*notebook.Reaction)
	var reactionIDs []string
	for rows.Next() {
		rx := &notebook.Reaction{}
		if err := rows.Scan(&rx.ID, &rx.PartID, &rx.Name, &rx.ReactionSMILES, &rx.Description, &rx.CreatedAt); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan reaction")
		}
		out[rx.PartID] = append(out[rx.PartID], rx)
		reactionIDs = append(reactionIDs, rx.ID.String())
	}
	return out, reactionIDs, rows.Err()
}

func (r *postgresNotebookRepo) loadRoles(ctx context.Context, reactionIDs []string) (map[uuid.UUID][]*notebook.ReactionRole, error) {
	rows, err := r.executor.QueryContext(ctx, `
		SELECT rr.id, rr.reaction_id, rr.molecule_id, m.canonical_smiles, rr.role, COALESCE(rr.stoichiometry, '')
		FROM reaction_roles rr
		JOIN molecules m ON m.id = rr.molecule_id
		WHERE rr.reaction_id = ANY($1::uuid[])
		ORDER BY rr.created_at`, pq.Array(reactionIDs))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load reaction roles")
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]*notebook.ReactionRole)
	for rows.Next() {
		rr := &notebook.ReactionRole{}
		var role string
		if err := rows.Scan(&rr.ID, &rr.ReactionID, &rr.MoleculeID, &rr.SMILES, &role, &rr.Stoichiometry); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan reaction role")
		}
		rr.Role = notebook.Role(role)
		out[rr.ReactionID] = append(out[rr.ReactionID], rr)
	}
	return out, rows.Err()
}
