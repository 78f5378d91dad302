package kv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/ai-device-compare/internal/config"
)

// postgresDSN returns TEST_DB_URL when set, otherwise starts a disposable
// postgres:16 container.
func postgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DB_URL"); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("postgres container skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "app"},
		ExposedPorts: []string{"5432/tcp"},
		// the server logs readiness twice: once for the init run, once for real
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	testcontainers.CleanupContainer(t, pgC)
	require.NoError(t, err)

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return "postgres://postgres:postgres@" + host + ":" + port.Port() + "/app?sslmode=disable"
}

func TestPostgresStore(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()

	s, err := OpenPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	// Opening again must tolerate the existing table.
	s2, err := OpenPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s.Set(ctx, "quota", "7"))
	v, ok, err := s2.Get(ctx, "quota")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestOpen_Postgres(t *testing.T) {
	dsn := postgresDSN(t)
	s, err := Open(context.Background(), config.Config{KVBackend: "postgres", DBURL: dsn, AppEnv: "test"})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}
