package pgxsource

import (
	"context"
	"fmt"
	"time"

	"github.com/marcodd23/go-tx-bridge/pkg/dbx"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx/txctx"
	"github.com/marcodd23/go-tx-bridge/pkg/errorx"
	"github.com/marcodd23/go-tx-bridge/pkg/logx"
)

//###################################
//#      Transaction Coordinator    #
//###################################

// TxCoordinator owns transaction boundaries on behalf of everything executed
// inside WithinTransaction. Components in the callback that go through a
// ManagedTx for the same resource will find the coordinated connection bound
// in the context, observe it as externally managed, and defer commit, rollback
// and physical close to this coordinator.
type TxCoordinator struct {
	source *PgxSource
}

// NewTxCoordinator - TxCoordinator constructor.
func NewTxCoordinator(source *PgxSource) (*TxCoordinator, error) {
	if source == nil {
		return nil, errorx.NewInvalidArgumentError("no connection source specified")
	}

	return &TxCoordinator{source: source}, nil
}

// WithinTransaction runs task inside one coordinated transaction for the
// resource. It opens a transaction on a pooled connection, binds it to the
// context handed to task, and commits when task returns nil or rolls back when
// it returns an error. A timeout greater than zero declares the transaction's
// time budget, surfaced to participants through the context-bound registry.
func (c *TxCoordinator) WithinTransaction(ctx context.Context, resource dbx.ResourceID, timeout time.Duration, task func(txCtx context.Context) error) error {
	conn, err := c.source.pool.Acquire(ctx)
	if err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "Error acquiring connection for coordinated transaction on resource '%s'", resource)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return errorx.NewDatabaseErrorWrapper(err, "Error beginning coordinated transaction on resource '%s'", resource)
	}

	pgxConn := newPgxConn(conn, tx, false)
	defer pgxConn.release(ctx)

	var holder *txctx.ConnHolder
	if timeout > 0 {
		holder = txctx.NewConnHolderWithDeadline(pgxConn, time.Now().Add(timeout))
	} else {
		holder = txctx.NewConnHolder(pgxConn)
	}

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("coordinated transaction started on connection [%s]", pgxConn.ID()))

	txCtx := txctx.Bind(ctx, resource, holder)

	if err := task(txCtx); err != nil {
		if rbErr := pgxConn.Rollback(ctx); rbErr != nil {
			logx.GetLogger().LogError(ctx, fmt.Sprintf("error rolling back coordinated transaction on connection [%s]", pgxConn.ID()), rbErr)
		}

		return err
	}

	if err := pgxConn.Commit(ctx); err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "Error committing coordinated transaction on resource '%s'", resource)
	}

	return nil
}
