//go:build unit

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/hsharp/lib-dbprovider/provider/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	count int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}

	if len(dest) != 1 {
		return fmt.Errorf("expected 1 destination, got %d", len(dest))
	}

	target, ok := dest[0].(*int64)
	if !ok {
		return fmt.Errorf("unexpected destination %T", dest[0])
	}

	*target = r.count

	return nil
}

// fakeConn records the SQL it receives.
type fakeConn struct {
	mu       sync.Mutex
	queries  []string
	row      fakeRow
	block    bool
	pingErr  error
	releases atomic.Int32
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.record(sql)

	return pgconn.NewCommandTag("SELECT 1"), nil
}

//nolint:ireturn
func (c *fakeConn) QueryRow(ctx context.Context, sql string, _ ...any) pgx.Row {
	c.record(sql)

	if c.block {
		<-ctx.Done()

		return fakeRow{err: ctx.Err()}
	}

	return c.row
}

func (c *fakeConn) Ping(context.Context) error { return c.pingErr }

func (c *fakeConn) Release() { c.releases.Add(1) }

func (c *fakeConn) record(sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries = append(c.queries, sql)
}

func (c *fakeConn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.queries...)
}

// stubPool fails its first len(errs) acquisitions with errs, in order, then
// hands out conn. When alwaysFail is set every acquisition fails with the
// error of the current attempt.
type stubPool struct {
	mu          sync.Mutex
	errs        []error
	alwaysFail  bool
	attempts    int
	deadlines   []bool
	conn        *fakeConn
	stats       Stats
	panicOnStat bool
	onAcquire   func()
	closed      atomic.Int32
}

func newStubPool(failures int) *stubPool {
	errs := make([]error, failures)
	for i := range errs {
		errs[i] = fmt.Errorf("acquire failure #%d", i+1)
	}

	return &stubPool{errs: errs, conn: &fakeConn{}}
}

//nolint:ireturn
func (p *stubPool) Acquire(ctx context.Context) (provider.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++

	if p.onAcquire != nil {
		p.onAcquire()
	}

	_, hasDeadline := ctx.Deadline()
	p.deadlines = append(p.deadlines, hasDeadline)

	if p.alwaysFail {
		return nil, fmt.Errorf("acquire failure #%d", p.attempts)
	}

	if p.attempts <= len(p.errs) {
		return nil, p.errs[p.attempts-1]
	}

	return p.conn, nil
}

func (p *stubPool) Stat() Stats {
	if p.panicOnStat {
		panic("stats unavailable")
	}

	return p.stats
}

func (p *stubPool) Close() { p.closed.Add(1) }

func (p *stubPool) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.attempts
}

// recordingSleeper records requested waits without sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
	err   error
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waits = append(s.waits, d)

	return s.err
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.waits...)
}

// fixedSource always draws the same value, clamped to the range.
type fixedSource struct{ value int64 }

func (f fixedSource) Int64N(n int64) int64 {
	if f.value >= n {
		return n - 1
	}

	return f.value
}

type logEntry struct {
	level  log.Level
	msg    string
	fields []log.Field
}

// recordingLogger keeps every entry in memory.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) Log(_ context.Context, level log.Level, msg string, fields ...log.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

//nolint:ireturn
func (l *recordingLogger) With(...log.Field) log.Logger { return l }

//nolint:ireturn
func (l *recordingLogger) WithGroup(string) log.Logger { return l }

func (l *recordingLogger) Enabled(log.Level) bool { return true }

func (l *recordingLogger) Sync(context.Context) error { return nil }

func (l *recordingLogger) Has(level log.Level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}

	return false
}

// Field returns the value of key on the first entry logged with msg.
func (l *recordingLogger) Field(msg, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.msg != msg {
			continue
		}

		for _, f := range e.fields {
			if f.Key == key {
				return f.Value, true
			}
		}
	}

	return nil, false
}

func testSetup() Setup {
	return Setup{
		DataSourceName:  "orders-api",
		CheckoutTimeout: 5 * time.Second,
	}
}

// newConnectedClient returns a client wired to pool as if Connect had run.
func newConnectedClient(t *testing.T, pool Pool, setup Setup, opts ...Option) (*Client, *recordingSleeper) {
	t.Helper()

	sleeper := &recordingSleeper{}
	opts = append([]Option{WithSleeper(sleeper.Sleep), WithRandSource(fixedSource{})}, opts...)

	client := New(opts...)
	require.NoError(t, client.Setup(setup))

	client.pool = pool
	client.dbName = "orders"
	client.jdbcURL = "jdbc:postgresql://db.internal:5432/orders?encoding=UNICODE"

	return client, sleeper
}

var errBoom = errors.New("boom")
