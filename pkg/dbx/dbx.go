package dbx

import (
	"context"
	"time"
)

// ResourceID - identifier of a logical database resource (analogous to a data
// source name). Connection sources and transaction registries are keyed by it,
// so several resources can coexist inside one process and one unit of work.
type ResourceID string

// =====================================
// Conn Interface
// =====================================

// Conn defines the minimal contract the transaction machinery needs from a
// database connection.
//
// A Conn is a handle to one underlying driver connection. The same handle may
// be self-managed (the holder issues commit/rollback) or enrolled in an
// externally coordinated transaction; the Conn itself does not know which, that
// knowledge belongs to the ConnectionSource that produced it.
//
// A Conn acquired through a ManagedTx must not be shared with other mutators
// for the duration of the unit of work: the bridge captures the auto-commit
// mode once at acquisition and never re-reads it, so flipping the mode behind
// its back leaves the cached value stale.
type Conn interface {
	// ID returns a stable identifier for the underlying connection,
	// used for diagnostics only.
	ID() string
	// AutoCommit reports whether the connection currently commits each
	// statement implicitly. The read may fail on drivers that need a
	// round trip to answer.
	AutoCommit(ctx context.Context) (bool, error)
	// Commit commits the in-flight transaction on this connection.
	Commit(ctx context.Context) error
	// Rollback discards the in-flight transaction on this connection.
	Rollback(ctx context.Context) error
	// Exec runs a command query and returns the number of affected rows.
	Exec(ctx context.Context, execQuery string, args ...any) (int64, error)
	// Query runs a row-returning query. The concrete row type depends on the
	// driver behind the Conn.
	Query(ctx context.Context, query string, args ...any) (any, error)
}

// =====================================
// ConnectionSource Interface
// =====================================

// ConnectionSource supplies and reclaims connections for a logical resource,
// transaction-aware.
//
// Acquire may hand back a connection that is already bound to the current unit
// of work's externally coordinated transaction, or mint a fresh one from a
// pool; that decision belongs entirely to the source. A source is shared,
// process-wide state and must be safe for concurrent use by many in-flight
// units of work.
type ConnectionSource interface {
	// Acquire resolves a connection for the given resource.
	Acquire(ctx context.Context, resource ResourceID) (Conn, error)
	// IsTransactional reports whether conn is currently enrolled in an
	// externally coordinated transaction for this resource in the current
	// unit of work.
	IsTransactional(ctx context.Context, conn Conn, resource ResourceID) bool
	// Release returns conn to the source. The source decides whether to
	// physically close it, return it to a pool, or leave it for the external
	// coordinator to close later.
	Release(ctx context.Context, conn Conn, resource ResourceID) error
}

// =====================================
// TxRegistry Interface
// =====================================

// TxRegistry exposes read-only facts about the externally coordinated
// transaction bound to the current unit of work, if any.
type TxRegistry interface {
	// CurrentTimeout yields the remaining time-to-live of the active external
	// transaction for the resource. The second return is false when no
	// transaction is bound or the bound one declares no timeout.
	CurrentTimeout(ctx context.Context, resource ResourceID) (time.Duration, bool)
}

// =====================================
// Transaction Interface
// =====================================

// Transaction - connection/transaction lifecycle contract implemented by ManagedTx.
type Transaction interface {
	GetConnection(ctx context.Context) (Conn, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
	Timeout(ctx context.Context) (time.Duration, bool)
}
