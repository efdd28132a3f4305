package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDatabase = "ticks_test"

// openTestConn starts a ClickHouse server and opens testDatabase through
// OpenMigrated, so the database itself is created by the code under test.
func openTestConn(t *testing.T) *Conn {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := testcontainers.Run(ctx, "clickhouse/clickhouse-server:24.1-alpine",
		testcontainers.WithExposedPorts("9000/tcp"),
		testcontainers.WithEnv(map[string]string{
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("Ready for connections"),
				wait.ForListeningPort("9000/tcp"),
			).WithDeadline(90*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start clickhouse")

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "clickhouse")
	require.NoError(t, err)

	conn, applied, err := OpenMigrated(ctx, endpoint+"/"+testDatabase+"?dial_timeout=10s")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	names := make([]string, 0, len(applied))
	for _, m := range applied {
		names = append(names, m.Name)
	}
	t.Logf("tick schema: %v", names)
	return conn
}

// openTestStore returns a tick store over a fresh database in IST.
func openTestStore(t *testing.T) *MarketData {
	t.Helper()
	return NewMarketData(openTestConn(t), ist)
}
