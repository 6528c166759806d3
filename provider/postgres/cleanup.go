package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/hsharp/lib-dbprovider/provider/log"
	"github.com/jackc/pgx/v5"
)

// idleBackendKillQuery returns the statement terminating backends of dbName
// that have been idle longer than age, counted in whole minutes (at least one).
func idleBackendKillQuery(dbName string, age time.Duration) string {
	minutes := int64(age / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	return fmt.Sprintf(
		"SELECT count(pg_terminate_backend(pid)) FROM pg_stat_activity WHERE datname = %s"+
			" AND pid <> pg_backend_pid() AND state = 'idle'"+
			" AND state_change < current_timestamp - INTERVAL '%d' MINUTE;",
		quoteLiteral(dbName), minutes)
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Cleanup terminates other backends of the connected database that have been
// idle longer than Setup.IdleBackendAge, using conn, and returns how many were
// terminated. An empty result counts as zero.
func (c *Client) Cleanup(ctx context.Context, conn provider.Conn) (int64, error) {
	if c == nil {
		return 0, ErrNilClient
	}

	if ctx == nil {
		return 0, ErrNilContext
	}

	if conn == nil {
		return 0, ErrNilConnection
	}

	c.mu.RLock()
	dbName := c.dbName
	setup := c.setup
	configured := c.configured
	c.mu.RUnlock()

	if !configured {
		setup = DefaultSetup()
	}

	return c.terminateIdleBackends(ctx, conn, dbName, setup)
}

func (c *Client) terminateIdleBackends(ctx context.Context, conn provider.Conn, dbName string, setup Setup) (int64, error) {
	var killed int64

	err := conn.QueryRow(ctx, idleBackendKillQuery(dbName, setup.IdleBackendAge)).Scan(&killed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("idle backend cleanup failed: %w", err)
	}

	c.metrics.terminated.Add(ctx, killed, c.metrics.dataSourceAttr(setup.DataSourceName))
	c.logger.Log(ctx, log.LevelInfo, "terminated idle backends",
		log.String("db", dbName), log.Int64("count", killed))

	return killed, nil
}

// cleanupBestEffort cleans up the database conn was leased for and only logs
// a failure; the caller already holds a valid connection. It is bounded by
// CheckoutTimeout, or the login timeout when that is disabled.
func (c *Client) cleanupBestEffort(ctx context.Context, conn provider.Conn, dbName string, setup Setup) {
	timeout := setup.CheckoutTimeout
	if timeout <= 0 {
		timeout = LoginTimeout()
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if _, err := c.terminateIdleBackends(ctx, conn, dbName, setup); err != nil {
		c.metrics.cleanupFailures.Add(ctx, 1, c.metrics.dataSourceAttr(setup.DataSourceName))
		c.logger.Log(ctx, log.LevelWarn, "idle backend cleanup skipped", log.Err(sanitizeError(err)))
	}
}
