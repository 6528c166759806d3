//go:build unit

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/hsharp/lib-dbprovider/provider/log"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestIdleBackendKillQuery(t *testing.T) {
	t.Parallel()

	t.Run("exact statement", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t,
			"SELECT count(pg_terminate_backend(pid)) FROM pg_stat_activity WHERE datname = 'orders'"+
				" AND pid <> pg_backend_pid() AND state = 'idle'"+
				" AND state_change < current_timestamp - INTERVAL '1' MINUTE;",
			idleBackendKillQuery("orders", time.Minute))
	})

	t.Run("age in whole minutes", func(t *testing.T) {
		t.Parallel()

		assert.Contains(t, idleBackendKillQuery("orders", 5*time.Minute+30*time.Second), "INTERVAL '5' MINUTE")
	})

	t.Run("age below a minute rounds up to one", func(t *testing.T) {
		t.Parallel()

		assert.Contains(t, idleBackendKillQuery("orders", 10*time.Second), "INTERVAL '1' MINUTE")
		assert.Contains(t, idleBackendKillQuery("orders", 0), "INTERVAL '1' MINUTE")
	})

	t.Run("database name quoted", func(t *testing.T) {
		t.Parallel()

		query := idleBackendKillQuery("o'rders'; DROP TABLE x; --", time.Minute)
		assert.Contains(t, query, "datname = 'o''rders''; DROP TABLE x; --'")
	})
}

func TestQuoteLiteral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "'orders'", quoteLiteral("orders"))
	assert.Equal(t, "''", quoteLiteral(""))
	assert.Equal(t, "'it''s'", quoteLiteral("it's"))
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	t.Run("returns terminated count", func(t *testing.T) {
		t.Parallel()

		tm := newTelemetry()
		logger := &recordingLogger{}
		conn := &fakeConn{row: fakeRow{count: 3}}

		client, _ := newConnectedClient(t, newStubPool(0), testSetup(), append(tm.opts, WithLogger(logger))...)

		killed, err := client.Cleanup(context.Background(), conn)
		require.NoError(t, err)
		assert.Equal(t, int64(3), killed)

		queries := conn.Queries()
		require.Len(t, queries, 1)
		assert.Equal(t, idleBackendKillQuery("orders", time.Minute), queries[0])

		assert.True(t, logger.Has(log.LevelInfo, "terminated idle backends"))
		assert.Equal(t, int64(3), tm.counter(t, metricBackendsTerminated,
			attribute.String(attributeDataSource, "orders-api")))
	})

	t.Run("configured idle age", func(t *testing.T) {
		t.Parallel()

		setup := testSetup()
		setup.IdleBackendAge = 15 * time.Minute

		conn := &fakeConn{}
		client, _ := newConnectedClient(t, newStubPool(0), setup)

		_, err := client.Cleanup(context.Background(), conn)
		require.NoError(t, err)
		assert.Contains(t, conn.Queries()[0], "INTERVAL '15' MINUTE")
	})

	t.Run("no rows counts as zero", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConn{row: fakeRow{err: pgx.ErrNoRows}}
		client, _ := newConnectedClient(t, newStubPool(0), testSetup())

		killed, err := client.Cleanup(context.Background(), conn)
		require.NoError(t, err)
		assert.Zero(t, killed)
	})

	t.Run("query error wrapped", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConn{row: fakeRow{err: errBoom}}
		client, _ := newConnectedClient(t, newStubPool(0), testSetup())

		killed, err := client.Cleanup(context.Background(), conn)
		require.Error(t, err)
		assert.Zero(t, killed)
		assert.ErrorIs(t, err, errBoom)
		assert.Contains(t, err.Error(), "idle backend cleanup failed")
	})

	t.Run("defaults before setup", func(t *testing.T) {
		t.Parallel()

		conn := &fakeConn{}
		client := New()

		_, err := client.Cleanup(context.Background(), conn)
		require.NoError(t, err)
		assert.Contains(t, conn.Queries()[0], "INTERVAL '1' MINUTE")
	})

	t.Run("nil connection", func(t *testing.T) {
		t.Parallel()

		_, err := New().Cleanup(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNilConnection)
	})

	t.Run("nil context", func(t *testing.T) {
		t.Parallel()

		_, err := New().Cleanup(nil, &fakeConn{})
		assert.ErrorIs(t, err, ErrNilContext)
	})

	t.Run("nil client", func(t *testing.T) {
		t.Parallel()

		var c *Client

		_, err := c.Cleanup(context.Background(), &fakeConn{})
		assert.ErrorIs(t, err, ErrNilClient)
	})
}
