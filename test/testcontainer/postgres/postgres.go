package postgres

import (
	"context"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx"
	"github.com/marcodd23/go-tx-bridge/pkg/dbx/pgxsource"
	"github.com/marcodd23/go-tx-bridge/pkg/logx"
	"github.com/marcodd23/go-tx-bridge/test"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresContainerImage = "docker.io/postgres:16-alpine"
	postgresContainerPort  = "5432/tcp"

	MainDbName     = "main-db"
	MainDbUser     = "postgres"
	MainDbPassword = "password"

	// MainResource - logical resource id the test source is registered under.
	MainResource dbx.ResourceID = "MAIN_DB"
)

const TestSnapshotId = "test-snapshot"

// PostgresContainer represents the postgres Container type used in the module tests.
type PostgresContainer struct {
	Container      *postgres.PostgresContainer
	MappedPort     nat.Port
	Host           string
	DbName         string
	DbUser         string
	DbPassword     string
	Resource       dbx.ResourceID
	PrepStatements []dbx.PreparedStatement
}

// StartPostgresContainer - start a postgres container with the test schema applied.
func StartPostgresContainer(ctx context.Context, t *testing.T, initScriptPath string, preparedStatements []dbx.PreparedStatement) *PostgresContainer {
	test.ConfigTestRootPath()

	pg, err := postgres.Run(ctx,
		postgresContainerImage,
		postgres.WithInitScripts(initScriptPath),
		postgres.WithDatabase(MainDbName),
		postgres.WithUsername(MainDbUser),
		postgres.WithPassword(MainDbPassword),
		postgres.WithSQLDriver("pgx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second)),
	)

	require.NoError(t, err)
	require.NotNil(t, pg)

	err = pg.Start(ctx)
	require.NoError(t, err)

	mappedPort, err := pg.MappedPort(ctx, postgresContainerPort)
	require.NoError(t, err)

	host, err := pg.Host(ctx)
	require.NoError(t, err)

	log.Printf("Postgres running at %s:%s", host, mappedPort.Port())

	// Create a snapshot of the database to restore later
	err = pg.Snapshot(ctx, postgres.WithSnapshotName(TestSnapshotId))
	require.NoError(t, err)

	return &PostgresContainer{
		Container:      pg,
		MappedPort:     mappedPort,
		Host:           host,
		DbName:         MainDbName,
		DbUser:         MainDbUser,
		DbPassword:     MainDbPassword,
		Resource:       MainResource,
		PrepStatements: preparedStatements,
	}
}

func (c *PostgresContainer) StopContainer(ctx context.Context, t *testing.T) error {
	logx.GetLogger().LogInfo(ctx, "Terminating the Container ....")

	timeout := time.Second * 3

	err := c.Container.Stop(ctx, &timeout)
	if err != nil {
		require.NoError(t, err, fmt.Sprintf("error stopping the Container %v", err))
		return err
	}

	return nil
}

// SetupConnectionSource - build a PgxSource against the container.
func SetupConnectionSource(ctx context.Context, t *testing.T, container *PostgresContainer, autoCommit bool) *pgxsource.PgxSource {
	dbConf := dbx.ConnConfig{
		IsLocalEnv: true,
		Host:       container.Host,
		Port:       int32(container.MappedPort.Int()),
		DBName:     container.DbName,
		User:       container.DbUser,
		Password:   container.DbPassword,
		MaxConn:    1,
		AutoCommit: autoCommit,
	}

	source, err := pgxsource.SetupPgxSource(ctx, dbConf, container.PrepStatements...)
	require.NoError(t, err)

	return source
}
