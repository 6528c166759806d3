package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/hsharp/lib-dbprovider/provider/backoff"
	"github.com/hsharp/lib-dbprovider/provider/internal/nilcheck"
	"github.com/hsharp/lib-dbprovider/provider/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. Nil values are ignored.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		if !nilcheck.Interface(logger) {
			c.logger = logger
		}
	}
}

// WithRegistry makes the client share r with other clients. The caller owns r
// and must Close it; Client.Close leaves a shared registry open.
func WithRegistry(r *Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
			c.ownsRegistry = false
		}
	}
}

// WithRandSource sets the random source used for retry waits.
func WithRandSource(src backoff.Source) Option {
	return func(c *Client) {
		if !nilcheck.Interface(src) {
			c.rand = src
		}
	}
}

// WithSleeper replaces the wait between lease attempts.
func WithSleeper(sleep Sleeper) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) {
		if !nilcheck.Interface(mp) {
			c.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if !nilcheck.Interface(tp) {
			c.tracerProvider = tp
		}
	}
}

// Client is the PostgreSQL provider.Database.
type Client struct {
	mu             sync.RWMutex
	setup          Setup
	configured     bool
	logger         log.Logger
	registry       *Registry
	ownsRegistry   bool
	rand           backoff.Source
	sleep          Sleeper
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metrics        *clientMetrics
	tracer         trace.Tracer
	pool           Pool
	jdbcURL        string
	dbName         string
}

var _ provider.Database = (*Client)(nil)

// New creates a Client. Without WithRegistry it owns a private registry.
func New(opts ...Option) *Client {
	c := &Client{
		ownsRegistry: true,
		sleep:        backoff.SleepWithContext,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.registry == nil {
		c.registry = NewRegistry(nil)
		c.ownsRegistry = true
	}

	c.logger = nilcheck.Or(c.logger, log.NewNop())
	c.rand = nilcheck.Or(c.rand, backoff.DefaultSource())
	c.meterProvider = nilcheck.Or(c.meterProvider, otel.GetMeterProvider())
	c.tracerProvider = nilcheck.Or(c.tracerProvider, otel.GetTracerProvider())

	c.metrics = newClientMetrics(c.meterProvider)
	c.tracer = c.tracerProvider.Tracer(instrumentationName)

	return c
}

// DefaultSetup returns the default pool parameters.
//
//nolint:ireturn
func (c *Client) DefaultSetup() provider.Setup {
	return DefaultSetup()
}

// Setup stores the pool parameters applied to pools this client creates.
// It accepts Setup or *Setup.
func (c *Client) Setup(setup provider.Setup) error {
	if c == nil {
		return ErrNilClient
	}

	s, err := toSetup(setup)
	if err != nil {
		return err
	}

	if err := s.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.setup = s.withDefaults()
	c.configured = true

	return nil
}

// Connect points the client at the database described by d, reusing a cached
// pool for the same URL and credentials or creating one.
func (c *Client) Connect(ctx context.Context, d provider.Descriptor) error {
	if c == nil {
		return ErrNilClient
	}

	if ctx == nil {
		return ErrNilContext
	}

	RegisterDriver()

	setup := c.currentSetup()

	var urlOpts []URLOption
	if setup.RequireSSLMode {
		urlOpts = append(urlOpts, WithSSLModeRequire())
	}

	jdbcURL := BuildURL(d, urlOpts...)

	cfg, err := poolConfigFromURL(jdbcURL, d.User, d.Password)
	if err != nil {
		return sanitizeError(err)
	}

	applySetup(cfg, setup)

	pool, err := c.registry.GetOrCreate(ctx, RegistryKey(jdbcURL, d.User, d.Password), cfg,
		func(ctx context.Context, pool Pool) error {
			return c.onPoolCreated(ctx, pool, setup, d, cfg.ConnConfig)
		})
	if err != nil {
		sanitized := sanitizeError(err)
		c.logger.Log(ctx, log.LevelError, "failed to connect to postgres",
			log.String("target", d.String()), log.Err(sanitized))

		return fmt.Errorf("failed to connect to %s: %w", d.DBName, sanitized)
	}

	c.mu.Lock()
	c.pool = pool
	c.jdbcURL = jdbcURL
	c.dbName = d.DBName
	c.mu.Unlock()

	c.logger.Log(ctx, log.LevelInfo, "connected to postgres",
		log.String("target", d.String()), log.String("data_source", setup.DataSourceName))

	return nil
}

// currentSetup returns the stored setup, or the defaults when Setup was never called.
func (c *Client) currentSetup() Setup {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.configured {
		return DefaultSetup()
	}

	return c.setup
}

// snapshot returns the pool and setup used by one acquisition.
func (c *Client) snapshot() (Pool, Setup, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pool == nil {
		return nil, Setup{}, "", ErrNotConnected
	}

	setup := c.setup
	if !c.configured {
		setup = DefaultSetup()
	}

	return c.pool, setup, c.dbName, nil
}

// warmUp leases up to n connections concurrently and returns them, so the
// pool starts with open connections. Failures only end the warm-up early.
func (c *Client) warmUp(ctx context.Context, pool Pool, n int, timeout time.Duration) {
	if n <= 0 {
		return
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conns := make([]provider.Conn, n)

	var g errgroup.Group

	for i := range conns {
		g.Go(func() error {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return err
			}

			conns[i] = conn

			return nil
		})
	}

	err := g.Wait()

	for _, conn := range conns {
		if conn != nil {
			conn.Release()
		}
	}

	if err != nil {
		c.logger.Log(ctx, log.LevelDebug, "pool warm-up incomplete", log.Err(sanitizeError(err)))
	}
}

// Status reports pool counters. Errors are embedded in the result, never returned.
func (c *Client) Status() (status string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			status = fmt.Sprintf("EXCEPTION:%v", recovered)
		}
	}()

	if c == nil {
		return "EXCEPTION:" + ErrNilClient.Error()
	}

	pool, setup, _, err := c.snapshot()
	if err != nil {
		return "EXCEPTION:" + err.Error()
	}

	stats := pool.Stat()

	var sb strings.Builder

	fmt.Fprintf(&sb, "# Connections: %d", stats.TotalConns)
	fmt.Fprintf(&sb, " , # Busy Connections: %d", stats.AcquiredConns)
	fmt.Fprintf(&sb, " , # Idle Connections: %d", stats.IdleConns)
	fmt.Fprintf(&sb, " , # Canceled Acquires: %d", stats.CanceledAcquireCount)
	fmt.Fprintf(&sb, " , # Min Pool Size: %d", setup.MinPoolSize)
	fmt.Fprintf(&sb, " , # Max Pool Size: %d", stats.MaxConns)
	fmt.Fprintf(&sb, " , # Max Statements Cache Per Session: %d", setup.MaxStatementsPerConnection)

	return sb.String()
}

// String implements fmt.Stringer with the pool status.
func (c *Client) String() string {
	return "DB_PostgreSQL[" + c.Status() + "]"
}

// NumBusyConnections reports how many connections are currently leased.
func (c *Client) NumBusyConnections() (int, error) {
	if c == nil {
		return 0, ErrNilClient
	}

	pool, _, _, err := c.snapshot()
	if err != nil {
		return 0, err
	}

	return int(pool.Stat().AcquiredConns), nil
}

// JdbcURL returns the URL of the last successful Connect.
func (c *Client) JdbcURL() string {
	if c == nil {
		return ""
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.jdbcURL
}

// Driver returns the registered database/sql driver.
//
//nolint:ireturn
func (c *Client) Driver() driver.Driver {
	return Driver()
}

// Close drops the client's pool reference and, when the client owns its
// registry, closes every pool in it. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	c.pool = nil
	owns := c.ownsRegistry
	c.mu.Unlock()

	if owns {
		c.registry.Close()
	}

	return nil
}

// newLeaseID returns a time-ordered identifier for a lease.
func newLeaseID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (c *Client) overdueReporter(dataSource, leaseID string, limit time.Duration) func() {
	stack := debug.Stack()

	return func() {
		ctx := context.Background()

		c.metrics.unreturned.Add(ctx, 1, c.metrics.dataSourceAttr(dataSource))
		c.logger.Log(ctx, log.LevelWarn, "connection lease exceeded unreturned connection limit",
			log.String("data_source", dataSource),
			log.String("lease_id", leaseID),
			log.Duration("limit", limit),
			log.String("acquired_at", string(stack)))
	}
}
