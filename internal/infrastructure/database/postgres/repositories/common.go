package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const notebookColumns = `n.id, n.gcs_path, COALESCE(n.title, ''), COALESCE(n.description, ''), n.created_at, n.updated_at`

func scanNotebook(row scanner, extra ...interface{}) (*notebook.Notebook, error) {
	n := &notebook.Notebook{}
	dest := append([]interface{}{&n.ID, &n.GCSPath, &n.Title, &n.Description, &n.CreatedAt, &n.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return n, nil
}

// escapeLike escapes the ILIKE metacharacters of a user supplied fragment.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// pgFields adds the server error code when err came from postgres.
func pgFields(err error) []logging.Field {
	fields := []logging.Field{logging.Err(err)}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		fields = append(fields, logging.String("pg_code", pgErr.Code))
	}
	return fields
}
