// Package sessionx is the thin session plumbing over the transaction
// machinery in dbx. A Session owns one ManagedTx for one unit of work and
// routes statements through its connection; whether Commit/Rollback/Close do
// real work or defer to an external coordinator is decided entirely by the
// bridge underneath.
package sessionx

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx"
	"github.com/marcodd23/go-tx-bridge/pkg/errorx"
)

// SessionFactory builds Sessions for one logical resource.
// A factory is shared and safe for concurrent use; the Sessions it opens are not.
type SessionFactory struct {
	source   dbx.ConnectionSource
	registry dbx.TxRegistry
	resource dbx.ResourceID
}

// NewSessionFactory - SessionFactory constructor.
// Fails with errorx.InvalidArgumentError when no ConnectionSource is given.
func NewSessionFactory(source dbx.ConnectionSource, registry dbx.TxRegistry, resource dbx.ResourceID) (*SessionFactory, error) {
	if source == nil {
		return nil, errorx.NewInvalidArgumentError("no connection source specified")
	}

	return &SessionFactory{
		source:   source,
		registry: registry,
		resource: resource,
	}, nil
}

// OpenSession - open a new Session for one unit of work.
func (f *SessionFactory) OpenSession() (*Session, error) {
	tx, err := dbx.NewManagedTx(f.source, f.registry, f.resource)
	if err != nil {
		return nil, err
	}

	return &Session{
		id: uuid.NewString(),
		tx: tx,
	}, nil
}

// Session - one unit of work over a managed transaction.
type Session struct {
	id string
	tx dbx.Transaction
}

// ID - diagnostic identifier of this session.
func (s *Session) ID() string {
	return s.id
}

// Exec runs a command query through the session's connection and returns the
// number of affected rows.
func (s *Session) Exec(ctx context.Context, execQuery string, args ...any) (int64, error) {
	conn, err := s.tx.GetConnection(ctx)
	if err != nil {
		return 0, err
	}

	return conn.Exec(ctx, execQuery, args...)
}

// Query runs a row-returning query through the session's connection.
func (s *Session) Query(ctx context.Context, query string, args ...any) (any, error) {
	conn, err := s.tx.GetConnection(ctx)
	if err != nil {
		return nil, err
	}

	return conn.Query(ctx, query, args...)
}

// Commit delegates to the managed transaction. When the session runs inside a
// coordinated transaction this is a no-op.
func (s *Session) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

// Rollback delegates to the managed transaction, no-op under coordination.
func (s *Session) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}

// Close hands the session's connection back to its source. The session must
// not be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	return s.tx.Close(ctx)
}

// Timeout reports the remaining time budget of the external transaction this
// session participates in, if any.
func (s *Session) Timeout(ctx context.Context) (time.Duration, bool) {
	return s.tx.Timeout(ctx)
}
