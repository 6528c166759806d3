package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/hsharp/lib-dbprovider/provider/backoff"
	"github.com/hsharp/lib-dbprovider/provider/log"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// acquireResult is the outcome of one lease attempt.
type acquireResult struct {
	conn provider.Conn
	err  error
}

func (r acquireResult) ok() bool {
	return r.err == nil && r.conn != nil
}

// AcquireConnection leases a connection from the pool.
//
// The first failed attempt is retried at once; every later attempt waits a
// random duration between MinWait and MaxWait first. At most MaxRetries
// attempts are made, and when all fail the last attempt's error is returned
// wrapped in ErrAcquireExhausted. After a successful lease, idle backends are
// cleaned up on a best-effort basis before the connection is returned.
//
//nolint:ireturn
func (c *Client) AcquireConnection(ctx context.Context) (provider.Conn, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	if ctx == nil {
		return nil, ErrNilContext
	}

	pool, setup, dbName, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "postgres.acquire_connection", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		semconv.DBNamespace(dbName),
	))
	defer span.End()

	started := time.Now()
	defer func() {
		c.metrics.duration.Record(ctx, time.Since(started).Seconds(), c.metrics.dataSourceAttr(setup.DataSourceName))
	}()

	maxAttempts := max(setup.MaxRetries, 1)

	var last acquireResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 2 {
			wait := backoff.Uniform(setup.MinWait, setup.MaxWait, c.rand)

			c.logger.Log(ctx, log.LevelDebug, "waiting before next connection attempt",
				log.Int("attempt", attempt), log.Duration("wait", wait))

			if err := c.sleep(ctx, wait); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "acquire canceled")

				return nil, fmt.Errorf("connection acquisition interrupted: %w", err)
			}
		}

		last = c.tryAcquire(ctx, pool, setup.CheckoutTimeout)
		c.metrics.recordAttempt(ctx, setup.DataSourceName, last.ok())

		if last.ok() {
			span.SetAttributes(attribute.Int("db.acquire.attempts", attempt))

			conn := c.newLease(last.conn, setup)
			c.cleanupBestEffort(ctx, conn, dbName, setup)

			return conn, nil
		}

		c.logger.Log(ctx, log.LevelWarn, "connection attempt failed",
			log.Int("attempt", attempt),
			log.Int("max_attempts", maxAttempts),
			log.Err(sanitizeError(last.err)))
	}

	c.metrics.exhausted.Add(ctx, 1, c.metrics.dataSourceAttr(setup.DataSourceName))

	err = fmt.Errorf("%w after %d attempts: %w", ErrAcquireExhausted, maxAttempts, sanitizeError(last.err))

	span.RecordError(err)
	span.SetStatus(codes.Error, "acquire exhausted")

	return nil, err
}

// tryAcquire performs one lease attempt bounded by the checkout timeout.
func (c *Client) tryAcquire(ctx context.Context, pool Pool, checkoutTimeout time.Duration) acquireResult {
	if checkoutTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, checkoutTimeout)
		defer cancel()
	}

	conn, err := pool.Acquire(ctx)
	if err == nil && conn == nil {
		err = ErrNilConnection
	}

	return acquireResult{conn: conn, err: err}
}

func (c *Client) newLease(conn provider.Conn, setup Setup) provider.Conn {
	if setup.UnreturnedConnectionTimeout <= 0 {
		return newLease(conn, 0, nil)
	}

	limit := unreturnedLeaseLimit

	return newLease(conn, limit, c.overdueReporter(setup.DataSourceName, newLeaseID(), limit))
}

// onPoolCreated runs once for every pool this client creates.
func (c *Client) onPoolCreated(ctx context.Context, pool Pool, setup Setup, d provider.Descriptor, connConfig *pgx.ConnConfig) error {
	if setup.MigrationsPath != "" {
		if err := runMigrationsFn(ctx, connConfig, setup.MigrationsPath, d.DBName, setup.AllowMultiStatements, c.logger); err != nil {
			return err
		}
	}

	timeout := setup.CheckoutTimeout
	if timeout <= 0 {
		timeout = LoginTimeout()
	}

	c.warmUp(ctx, pool, min(setup.InitialPoolSize, setup.MaxPoolSize), timeout)

	return nil
}
