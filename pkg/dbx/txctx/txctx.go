// Package txctx binds externally coordinated transactions to the context of
// the unit of work they belong to.
//
// The binding is deliberately explicit: a coordinator that opens a transaction
// binds a ConnHolder into the context it passes down the call chain, and every
// component below (connection sources, the timeout registry) reads the binding
// from that context instead of consulting ambient process-wide state. That
// keeps lookups deterministic and makes the whole mechanism trivial to fake in
// tests.
package txctx

import (
	"context"
	"time"

	"github.com/marcodd23/go-tx-bridge/pkg/dbx"
)

type holderKey struct {
	resource dbx.ResourceID
}

// =====================================
// ConnHolder
// =====================================

// ConnHolder carries the connection enrolled in an externally coordinated
// transaction for one resource, plus the transaction's optional deadline.
type ConnHolder struct {
	conn     dbx.Conn
	deadline time.Time
}

// NewConnHolder - ConnHolder constructor for a transaction without a time budget.
func NewConnHolder(conn dbx.Conn) *ConnHolder {
	return &ConnHolder{conn: conn}
}

// NewConnHolderWithDeadline - ConnHolder constructor for a transaction that
// must complete before the given deadline.
func NewConnHolderWithDeadline(conn dbx.Conn, deadline time.Time) *ConnHolder {
	return &ConnHolder{conn: conn, deadline: deadline}
}

// Conn - the connection enrolled in the coordinated transaction.
func (h *ConnHolder) Conn() dbx.Conn {
	return h.conn
}

// HasDeadline reports whether the coordinated transaction declared a time budget.
func (h *ConnHolder) HasDeadline() bool {
	return !h.deadline.IsZero()
}

// TimeToLive returns the remaining time budget of the coordinated transaction.
// The second return is false when no deadline was declared. An expired
// deadline yields a zero duration, not a missing one.
func (h *ConnHolder) TimeToLive() (time.Duration, bool) {
	if !h.HasDeadline() {
		return 0, false
	}

	remaining := time.Until(h.deadline)
	if remaining < 0 {
		remaining = 0
	}

	return remaining, true
}

// =====================================
// Context binding
// =====================================

// Bind associates holder with the resource in the returned context. Components
// that receive the derived context observe the coordinated transaction;
// callers holding the parent context do not.
func Bind(ctx context.Context, resource dbx.ResourceID, holder *ConnHolder) context.Context {
	return context.WithValue(ctx, holderKey{resource: resource}, holder)
}

// HolderFrom retrieves the holder bound to the resource in ctx, if any.
func HolderFrom(ctx context.Context, resource dbx.ResourceID) (*ConnHolder, bool) {
	holder, ok := ctx.Value(holderKey{resource: resource}).(*ConnHolder)
	return holder, ok
}

// =====================================
// ContextRegistry
// =====================================

// ContextRegistry - dbx.TxRegistry implementation backed by the context binding.
type ContextRegistry struct{}

// interface guard
var _ dbx.TxRegistry = ContextRegistry{}

// NewContextRegistry - ContextRegistry constructor.
func NewContextRegistry() ContextRegistry {
	return ContextRegistry{}
}

// CurrentTimeout reports the remaining time budget of the transaction bound to
// the resource in ctx. No binding, or a binding without a deadline, yields no
// timeout.
func (ContextRegistry) CurrentTimeout(ctx context.Context, resource dbx.ResourceID) (time.Duration, bool) {
	holder, ok := HolderFrom(ctx, resource)
	if !ok {
		return 0, false
	}

	return holder.TimeToLive()
}
