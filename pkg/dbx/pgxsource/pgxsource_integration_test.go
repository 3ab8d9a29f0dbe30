package pgxsource_test

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx/pgxsource"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx/txctx"
	"github.com/marcodd23/go-tx-bridge/test/testcontainer/postgres"
	"github.com/stretchr/testify/require"
)

/*
The table under test is:

CREATE TABLE ACCOUNT_LEDGER
(
    ENTRY_ID      SERIAL PRIMARY KEY,
    ACCOUNT_KEY   VARCHAR(200) NOT NULL,
    AMOUNT        FLOAT8       NOT NULL,
    ENTRY_PAYLOAD JSONB,
    MODIFY_TS     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
*/

const insertEntry = "INSERT INTO account_ledger (account_key, amount, entry_payload) VALUES ($1, $2, $3)"

func countEntries(ctx context.Context, t *testing.T, source *pgxsource.PgxSource, accountKey string) int {
	t.Helper()

	// A fresh unit of work: reads only committed data.
	tx, err := dbx.NewManagedTx(source, txctx.NewContextRegistry(), postgres.MainResource)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, tx.Close(ctx))
	}()

	conn, err := tx.GetConnection(ctx)
	require.NoError(t, err)

	res, err := conn.Query(ctx, "SELECT entry_id FROM account_ledger WHERE account_key = $1", accountKey)
	require.NoError(t, err)

	rows, ok := res.(pgx.Rows)
	require.True(t, ok)

	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}

	require.NoError(t, rows.Err())

	return count
}

func entryPayload(t *testing.T, note string) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{"note": note})
	require.NoError(t, err)

	return payload
}

func TestManagedTransactionLifecycle(t *testing.T) {
	ctx := context.Background()

	container := postgres.StartPostgresContainer(ctx, t, "test/testcontainer/postgres/init_schema.sql", nil)
	defer container.StopContainer(ctx, t)

	source := postgres.SetupConnectionSource(ctx, t, container, false)
	defer source.Close()

	registry := txctx.NewContextRegistry()

	t.Run("self-managed commit is persisted", func(t *testing.T) {
		tx, err := dbx.NewManagedTx(source, registry, postgres.MainResource)
		require.NoError(t, err)

		conn, err := tx.GetConnection(ctx)
		require.NoError(t, err)

		_, err = conn.Exec(ctx, insertEntry, "acc-commit", 10.5, entryPayload(t, "self managed"))
		require.NoError(t, err)

		require.NoError(t, tx.Commit(ctx))
		require.NoError(t, tx.Close(ctx))

		require.Equal(t, 1, countEntries(ctx, t, source, "acc-commit"))
	})

	t.Run("self-managed rollback is discarded", func(t *testing.T) {
		tx, err := dbx.NewManagedTx(source, registry, postgres.MainResource)
		require.NoError(t, err)

		conn, err := tx.GetConnection(ctx)
		require.NoError(t, err)

		_, err = conn.Exec(ctx, insertEntry, "acc-rollback", 3.0, nil)
		require.NoError(t, err)

		require.NoError(t, tx.Rollback(ctx))
		require.NoError(t, tx.Close(ctx))

		require.Equal(t, 0, countEntries(ctx, t, source, "acc-rollback"))
	})

	t.Run("coordinated transaction owns the boundaries", func(t *testing.T) {
		coordinator, err := pgxsource.NewTxCoordinator(source)
		require.NoError(t, err)

		err = coordinator.WithinTransaction(ctx, postgres.MainResource, 30*time.Second, func(txCtx context.Context) error {
			tx, err := dbx.NewManagedTx(source, registry, postgres.MainResource)
			require.NoError(t, err)

			conn, err := tx.GetConnection(txCtx)
			require.NoError(t, err)
			require.True(t, source.IsTransactional(txCtx, conn, postgres.MainResource))

			// The external transaction declared a time budget.
			remaining, ok := tx.Timeout(txCtx)
			require.True(t, ok)
			require.Greater(t, remaining, time.Duration(0))

			if _, err := conn.Exec(txCtx, insertEntry, "acc-coordinated", 7.7, entryPayload(t, "coordinated")); err != nil {
				return err
			}

			// These defer to the coordinator, the insert must stay pending.
			require.NoError(t, tx.Commit(txCtx))
			require.NoError(t, tx.Close(txCtx))

			return nil
		})
		require.NoError(t, err)

		require.Equal(t, 1, countEntries(ctx, t, source, "acc-coordinated"))
	})

	t.Run("coordinated transaction rolls back on task error", func(t *testing.T) {
		coordinator, err := pgxsource.NewTxCoordinator(source)
		require.NoError(t, err)

		req := require.New(t)

		err = coordinator.WithinTransaction(ctx, postgres.MainResource, 0, func(txCtx context.Context) error {
			tx, err := dbx.NewManagedTx(source, registry, postgres.MainResource)
			req.NoError(err)

			conn, err := tx.GetConnection(txCtx)
			req.NoError(err)

			_, err = conn.Exec(txCtx, insertEntry, "acc-coordinated-err", 1.0, nil)
			req.NoError(err)

			req.NoError(tx.Close(txCtx))

			return context.Canceled
		})
		require.ErrorIs(t, err, context.Canceled)

		require.Equal(t, 0, countEntries(ctx, t, source, "acc-coordinated-err"))
	})

	t.Run("no timeout outside a coordinated transaction", func(t *testing.T) {
		tx, err := dbx.NewManagedTx(source, registry, postgres.MainResource)
		require.NoError(t, err)

		_, ok := tx.Timeout(ctx)
		require.False(t, ok)
	})
}

func TestAutoCommitSource(t *testing.T) {
	ctx := context.Background()

	container := postgres.StartPostgresContainer(ctx, t, "test/testcontainer/postgres/init_schema.sql", nil)
	defer container.StopContainer(ctx, t)

	source := postgres.SetupConnectionSource(ctx, t, container, true)
	defer source.Close()

	tx, err := dbx.NewManagedTx(source, txctx.NewContextRegistry(), postgres.MainResource)
	require.NoError(t, err)

	conn, err := tx.GetConnection(ctx)
	require.NoError(t, err)

	autoCommit, err := conn.AutoCommit(ctx)
	require.NoError(t, err)
	require.True(t, autoCommit)

	_, err = conn.Exec(ctx, insertEntry, "acc-auto", 2.5, nil)
	require.NoError(t, err)

	// Commit and Rollback are no-ops under auto-commit, the row stays.
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Close(ctx))

	require.Equal(t, 1, countEntries(ctx, t, source, "acc-auto"))
}
