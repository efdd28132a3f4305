package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// openTestStore starts PostgreSQL, migrates it and returns a trade record
// store reading dates back in IST, plus its pool for direct queries.
func openTestStore(t *testing.T) (*TradeRecordStore, *Pool) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("backtests"),
		postgres.WithUsername("lab"),
		postgres.WithPassword("lab"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := Migrate(ctx, pool)
	require.NoError(t, err, "migrate trade_records")
	require.NotEmpty(t, applied, "fresh database should need migrations")

	return NewTradeRecordStore(pool, ist), pool
}

func ptr[T any](v T) *T {
	return &v
}
