package dbx

import (
	"context"
	"fmt"
	"time"

	"github.com/marcodd23/go-tx-bridge/pkg/errorx"
	"github.com/marcodd23/go-tx-bridge/pkg/logx"
)

//###################################
//#     Managed Transaction         #
//###################################

// ManagedTx handles the lifecycle of one database connection on behalf of a
// persistence component that assumes it always controls transaction
// boundaries.
//
// It retrieves the connection from its ConnectionSource and discovers, once,
// whether that connection is already enrolled in an externally coordinated
// transaction bound to the current unit of work. If it is, Commit, Rollback
// and the physical side of Close become no-ops: the external coordinator owns
// the boundaries and a duplicate commit here would either double-commit or cut
// the coordinated transaction short. If it is not, ManagedTx behaves like a
// plain local transaction over the connection.
//
// One ManagedTx serves exactly one unit of work. It is not safe for concurrent
// use and must not be reused after Close.
type ManagedTx struct {
	source   ConnectionSource
	registry TxRegistry
	resource ResourceID

	conn          Conn
	transactional bool
	autoCommit    bool
	closed        bool
}

// interface guard
var _ Transaction = (*ManagedTx)(nil)

// NewManagedTx - ManagedTx constructor.
// Fails with errorx.InvalidArgumentError when no ConnectionSource is given:
// the bridge cannot resolve connections without one. The registry may be nil,
// in which case Timeout always reports no timeout.
func NewManagedTx(source ConnectionSource, registry TxRegistry, resource ResourceID) (*ManagedTx, error) {
	if source == nil {
		return nil, errorx.NewInvalidArgumentError("no connection source specified")
	}

	return &ManagedTx{
		source:   source,
		registry: registry,
		resource: resource,
	}, nil
}

// GetConnection returns the connection backing this unit of work, acquiring it
// from the ConnectionSource on first call. Subsequent calls return the cached
// handle; the acquisition protocol runs at most once per ManagedTx.
func (t *ManagedTx) GetConnection(ctx context.Context) (Conn, error) {
	if t.closed {
		return nil, errorx.NewDatabaseError("managed transaction is closed")
	}

	if t.conn == nil {
		if err := t.openConnection(ctx); err != nil {
			return nil, err
		}
	}

	return t.conn, nil
}

// openConnection acquires a connection from the source and discovers whether
// this ManagedTx should manage it or defer to the external coordinator.
//
// It also captures the auto-commit mode, because callers routed through the
// bridge assume auto-commit is off and will always issue Commit/Rollback; when
// the connection is actually in auto-commit mode those calls must be no-ops.
// Both flags are fixed here for the lifetime of the bridge and never re-read.
func (t *ManagedTx) openConnection(ctx context.Context) error {
	conn, err := t.source.Acquire(ctx, t.resource)
	if err != nil {
		// Source and driver errors surface unmodified to keep diagnostics intact.
		return err
	}

	autoCommit, err := conn.AutoCommit(ctx)
	if err != nil {
		// The handle is unusable for this unit of work, give it back before failing.
		if relErr := t.source.Release(ctx, conn, t.resource); relErr != nil {
			logx.GetLogger().LogWarning(ctx, fmt.Sprintf("error releasing connection [%s] after failed auto-commit read", conn.ID()), relErr)
		}

		return err
	}

	t.conn = conn
	t.autoCommit = autoCommit
	t.transactional = t.source.IsTransactional(ctx, conn, t.resource)

	managed := "not "
	if t.transactional {
		managed = ""
	}

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("connection [%s] will %sbe managed by the external coordinator", conn.ID(), managed))

	return nil
}

// Commit commits the connection's transaction, unless the transaction is owned
// by the external coordinator or the connection was in auto-commit mode at
// acquisition. In those cases, and when no connection was ever acquired, it
// returns nil without touching the connection.
func (t *ManagedTx) Commit(ctx context.Context) error {
	if t.conn == nil || t.transactional || t.autoCommit {
		return nil
	}

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("committing connection [%s]", t.conn.ID()))

	return t.conn.Commit(ctx)
}

// Rollback rolls back the connection's transaction under the same guard as
// Commit: only a self-managed, manual-commit connection is ever rolled back.
func (t *ManagedTx) Rollback(ctx context.Context) error {
	if t.conn == nil || t.transactional || t.autoCommit {
		return nil
	}

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("rolling back connection [%s]", t.conn.ID()))

	return t.conn.Rollback(ctx)
}

// Close hands the connection back to the ConnectionSource, which alone decides
// between a physical close, a pool return, or leaving it for the external
// coordinator. Close is a no-op when no connection was acquired, and further
// lifecycle calls after Close are no-ops as well.
func (t *ManagedTx) Close(ctx context.Context) error {
	if t.closed {
		return nil
	}

	t.closed = true

	if t.conn == nil {
		return nil
	}

	conn := t.conn
	t.conn = nil

	return t.source.Release(ctx, conn, t.resource)
}

// Timeout reports the remaining time budget of the external transaction bound
// to this resource, if any. The registry is consulted on every call, whether
// or not a connection has been acquired yet.
func (t *ManagedTx) Timeout(ctx context.Context) (time.Duration, bool) {
	if t.registry == nil {
		return 0, false
	}

	return t.registry.CurrentTimeout(ctx, t.resource)
}
