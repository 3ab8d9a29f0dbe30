package pgxsource

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx"
	"github.com/marcodd23/go-tx-bridge/pkg/errorx"
)

//###################################
//#       Postgres Connection       #
//###################################

// PgxConn - dbx.Conn implementation over a pooled pgx connection.
//
// A PgxConn runs in one of two modes, fixed at creation:
//   - auto-commit: no transaction is open, every statement commits implicitly;
//   - manual: a pgx.Tx is open on the connection and statements run inside it
//     until Commit or Rollback.
//
// Postgres has no per-connection auto-commit flag like JDBC; the mode here is
// simply whether a transaction was opened when the connection was handed out.
type PgxConn struct {
	id         string
	conn       *pgxpool.Conn
	tx         pgx.Tx
	autoCommit bool
}

// interface guard
var _ dbx.Conn = (*PgxConn)(nil)

func newPgxConn(conn *pgxpool.Conn, tx pgx.Tx, autoCommit bool) *PgxConn {
	return &PgxConn{
		id:         uuid.NewString(),
		conn:       conn,
		tx:         tx,
		autoCommit: autoCommit,
	}
}

// ID returns the diagnostic identifier of this connection.
func (c *PgxConn) ID() string {
	return c.id
}

// AutoCommit reports the mode the connection was handed out in. The read never
// fails for pgx; the error return exists for drivers that need a round trip.
func (c *PgxConn) AutoCommit(ctx context.Context) (bool, error) {
	return c.autoCommit, nil
}

// Commit commits the open transaction. Calling it on an auto-commit connection
// is an error: the guard in ManagedTx is expected to have filtered that out.
func (c *PgxConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errorx.NewDatabaseError("no open transaction on connection [%s]", c.id)
	}

	err := c.tx.Commit(ctx)
	c.tx = nil

	return err
}

// Rollback discards the open transaction.
func (c *PgxConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errorx.NewDatabaseError("no open transaction on connection [%s]", c.id)
	}

	err := c.tx.Rollback(ctx)
	c.tx = nil

	return err
}

// Exec runs a command query on the connection, inside the open transaction
// when there is one, and returns the number of affected rows.
func (c *PgxConn) Exec(ctx context.Context, execQuery string, args ...any) (int64, error) {
	if c.tx != nil {
		tag, err := c.tx.Exec(ctx, execQuery, args...)
		if err != nil {
			return 0, errorx.NewDatabaseErrorWrapper(err, "Error executing query '%s'", execQuery)
		}

		return tag.RowsAffected(), nil
	}

	tag, err := c.conn.Exec(ctx, execQuery, args...)
	if err != nil {
		return 0, errorx.NewDatabaseErrorWrapper(err, "Error executing query '%s'", execQuery)
	}

	return tag.RowsAffected(), nil
}

// Query runs a row-returning query on the connection, inside the open
// transaction when there is one. The result is pgx.Rows.
func (c *PgxConn) Query(ctx context.Context, query string, args ...any) (any, error) {
	if c.tx != nil {
		return c.tx.Query(ctx, query, args...)
	}

	return c.conn.Query(ctx, query, args...)
}

// release rolls back any transaction still open and returns the connection to
// the pool. Called by the source, never by connection holders directly.
func (c *PgxConn) release(ctx context.Context) {
	if c.tx != nil {
		_ = c.tx.Rollback(ctx)
		c.tx = nil
	}

	c.conn.Release()
}
