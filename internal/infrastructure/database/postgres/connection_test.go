package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/molecule-search/pkg/errors"
)

func stubOpen(t *testing.T, db *sql.DB, err error) {
	t.Helper()
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(driverName, _ string) (*sql.DB, error) {
		assert.Equal(t, DriverName, driverName)
		return db, err
	}
}

func TestConfigFromDatabase(t *testing.T) {
	pc := ConfigFromDatabase(config.DatabaseConfig{
		DSN:         "postgres://u:p@db:5432/molsearch",
		PoolSize:    5,
		MaxOverflow: 10,
		PoolTimeout: 30 * time.Second,
		PoolRecycle: 1800 * time.Second,
	})
	assert.Equal(t, 5, pc.MaxIdleConns)
	assert.Equal(t, 15, pc.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, pc.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, pc.PingTimeout)

	zero := ConfigFromDatabase(config.DatabaseConfig{})
	assert.Equal(t, 5, zero.MaxIdleConns)
	assert.Equal(t, 5, zero.MaxOpenConns)
	assert.Equal(t, 5*time.Second, zero.PingTimeout)
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "db:5432/molsearch", redactDSN("postgres://user:secret@db:5432/molsearch?sslmode=disable"))
	assert.Equal(t, "postgres", redactDSN("host=db user=x"))
}

func TestNewConnection_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	stubOpen(t, db, nil)

	mock.ExpectPing()

	conn, err := NewConnection(PostgresConfig{DSN: "postgres://localhost/test", MaxOpenConns: 2, MaxIdleConns: 1}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, db, conn.DB())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_MissingDSN(t *testing.T) {
	conn, err := NewConnection(PostgresConfig{}, logging.NewNopLogger())
	assert.Nil(t, conn)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestNewConnection_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	stubOpen(t, db, nil)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	conn, err := NewConnection(PostgresConfig{DSN: "postgres://localhost/test"}, logging.NewNopLogger())
	assert.Nil(t, conn)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.ErrCodeDatabaseError, appErr.Code)
	assert.Equal(t, "database connection failed", appErr.Message)
	assert.Contains(t, appErr.Cause.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_OpenFailure(t *testing.T) {
	stubOpen(t, nil, errors.New("open failed"))

	conn, err := NewConnection(PostgresConfig{DSN: "postgres://localhost/test"}, logging.NewNopLogger())
	assert.Error(t, err)
	assert.Nil(t, conn)
}

func TestConnection_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	conn := NewConnectionWithDB(db, nil)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, conn.Init(context.Background()))

	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("permission denied"))
	err = conn.Init(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	conn := NewConnectionWithDB(db, logging.NewNopLogger())

	mock.ExpectPing()
	assert.NoError(t, conn.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("timeout"))
	assert.Error(t, conn.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_Close_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	conn := NewConnectionWithDB(db, logging.NewNopLogger())

	mock.ExpectClose()
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_Stats(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conn := NewConnectionWithDB(db, logging.NewNopLogger())
	assert.IsType(t, sql.DBStats{}, conn.Stats())
}
