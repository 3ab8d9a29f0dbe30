package pgxsource

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx/txctx"
	"github.com/marcodd23/go-tx-bridge/pkg/errorx"
	"github.com/marcodd23/go-tx-bridge/pkg/logx"
	"github.com/marcodd23/go-tx-bridge/pkg/validator"
	"github.com/pkg/errors"
)

//###################################
//#    PgxSource - conn source.     #
//###################################

// PgxSource - transaction-aware dbx.ConnectionSource backed by a pgx
// connection pool.
//
// Acquire first looks for a connection already bound to the current unit of
// work's coordinated transaction (see txctx and TxCoordinator) and reuses it;
// only when none is bound does it draw a fresh connection from the pool.
// Release mirrors that decision: a coordinated connection is left alone for
// its coordinator, a self-managed one goes back to the pool.
//
// A single PgxSource is shared by all in-flight units of work; pgxpool makes
// the underlying pool safe for concurrent use.
type PgxSource struct {
	pool   *pgxpool.Pool
	dbConf dbx.ConnConfig
}

// interface guard
var _ dbx.ConnectionSource = (*PgxSource)(nil)

// SetupPgxSource - create the connection pool and the source over it.
func SetupPgxSource(ctx context.Context, dbConf dbx.ConnConfig, preparedStatements ...dbx.PreparedStatement) (*PgxSource, error) {
	pool, err := newConnectionPool(ctx, dbConf, preparedStatements...)
	if err != nil {
		return nil, err
	}

	logx.
		GetLogger().
		LogInfo(ctx, fmt.Sprintf("Created new PgxSource Connection Pool: DB=%s, HOST=%s, PORT=%d",
			pool.Config().ConnConfig.Database,
			pool.Config().ConnConfig.Host,
			pool.Config().ConnConfig.Port))

	return &PgxSource{
		pool:   pool,
		dbConf: dbConf,
	}, nil
}

// Acquire resolves a connection for the resource. A connection bound to the
// current unit of work's coordinated transaction is reused as-is; otherwise a
// pooled connection is handed out in the mode configured by ConnConfig
// (auto-commit, or manual with a transaction already open).
func (s *PgxSource) Acquire(ctx context.Context, resource dbx.ResourceID) (dbx.Conn, error) {
	if holder, ok := txctx.HolderFrom(ctx, resource); ok {
		return holder.Conn(), nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "Error acquiring connection from pool for resource '%s'", resource)
	}

	if s.dbConf.AutoCommit {
		return newPgxConn(conn, nil, true), nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, errorx.NewDatabaseErrorWrapper(err, "Error beginning transaction for resource '%s'", resource)
	}

	return newPgxConn(conn, tx, false), nil
}

// IsTransactional reports whether conn is the connection enrolled in the
// coordinated transaction bound to the current unit of work.
func (s *PgxSource) IsTransactional(ctx context.Context, conn dbx.Conn, resource dbx.ResourceID) bool {
	holder, ok := txctx.HolderFrom(ctx, resource)
	if !ok || conn == nil {
		return false
	}

	return holder.Conn().ID() == conn.ID()
}

// Release returns conn to the source. A coordinated connection is left for its
// coordinator to close after commit or rollback; any other connection goes
// back to the pool, rolling back whatever transaction was still open on it.
func (s *PgxSource) Release(ctx context.Context, conn dbx.Conn, resource dbx.ResourceID) error {
	if conn == nil {
		return nil
	}

	if s.IsTransactional(ctx, conn, resource) {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("connection [%s] stays with its transaction coordinator", conn.ID()))
		return nil
	}

	pgxConn, ok := conn.(*PgxConn)
	if !ok {
		return errorx.NewInvalidArgumentError("connection [%s] was not produced by this source", conn.ID())
	}

	pgxConn.release(ctx)

	return nil
}

// GetConnectionConfig - the pool configuration of this source.
func (s *PgxSource) GetConnectionConfig() dbx.ConnConfig {
	return s.dbConf
}

// Close - close the underlying connection pool.
func (s *PgxSource) Close() {
	s.pool.Close()
}

func newConnectionPool(ctx context.Context, dbConf dbx.ConnConfig, preparedStatements ...dbx.PreparedStatement) (*pgxpool.Pool, error) {
	poolConfig, err := createConnectionConfiguration(dbConf)
	if err != nil {
		return nil, err
	}

	// Setup prepared statements
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return setupPreparedStatements(ctx, conn, preparedStatements...)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "Error creating New Connection Pool")
	}

	return pool, nil
}

func createConnectionConfiguration(dbConf dbx.ConnConfig) (*pgxpool.Config, error) {
	if validationErrs := validator.NewValidator().ValidateStruct(dbConf); len(validationErrs) > 0 {
		return nil, errorx.NewDatabaseErrorWrapper(validator.NewValidationError(validationErrs), "Error creating Connection Pool ConnConfig")
	}

	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, errors.Wrap(err, "error parsing base pool configuration")
	}

	poolConfig.ConnConfig.Host = dbConf.Host
	poolConfig.ConnConfig.Port = uint16(dbConf.Port)
	poolConfig.ConnConfig.Database = dbConf.DBName
	poolConfig.ConnConfig.User = dbConf.User
	poolConfig.ConnConfig.Password = dbConf.Password
	poolConfig.MaxConns = int32(runtime.NumCPU()) * dbConf.MaxConn

	return poolConfig, nil
}

func setupPreparedStatements(ctx context.Context, conn *pgx.Conn, preparedStatements ...dbx.PreparedStatement) error {
	for _, stmt := range preparedStatements {
		_, err := conn.Prepare(ctx, stmt.GetName(), stmt.GetQuery())
		if err != nil {
			return errorx.NewDatabaseErrorWrapper(err, "Error preparing statement '%s'", stmt.GetName())
		}
	}

	return nil
}
