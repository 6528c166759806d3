package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the subset of a connection pool the Client relies on.
// Implementations must support concurrent Acquire and Release.
type Pool interface {
	Acquire(ctx context.Context) (provider.Conn, error)
	Stat() Stats
	Close()
}

// Stats is a snapshot of pool counters.
type Stats struct {
	TotalConns           int32
	AcquiredConns        int32
	IdleConns            int32
	MaxConns             int32
	AcquireCount         int64
	CanceledAcquireCount int64
}

// PoolFactory creates a pool from a pgxpool configuration.
type PoolFactory func(ctx context.Context, cfg *pgxpool.Config) (Pool, error)

// NewPgxPool is the default PoolFactory, backed by pgxpool.
//
//nolint:ireturn
func NewPgxPool(ctx context.Context, cfg *pgxpool.Config) (Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &pgxPool{pool: pool}, nil
}

type pgxPool struct {
	pool *pgxpool.Pool
}

//nolint:ireturn
func (p *pgxPool) Acquire(ctx context.Context) (provider.Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func (p *pgxPool) Stat() Stats {
	stat := p.pool.Stat()

	return Stats{
		TotalConns:           stat.TotalConns(),
		AcquiredConns:        stat.AcquiredConns(),
		IdleConns:            stat.IdleConns(),
		MaxConns:             stat.MaxConns(),
		AcquireCount:         stat.AcquireCount(),
		CanceledAcquireCount: stat.CanceledAcquireCount(),
	}
}

func (p *pgxPool) Close() {
	p.pool.Close()
}

// lease wraps a pooled connection so Release is idempotent and, when enabled,
// a lease held past its limit is reported once.
type lease struct {
	provider.Conn
	once  sync.Once
	timer *time.Timer
}

func newLease(conn provider.Conn, limit time.Duration, onOverdue func()) *lease {
	l := &lease{Conn: conn}

	if limit > 0 && onOverdue != nil {
		l.timer = time.AfterFunc(limit, onOverdue)
	}

	return l
}

// Release returns the connection to its pool. Extra calls are ignored.
func (l *lease) Release() {
	l.once.Do(func() {
		if l.timer != nil {
			l.timer.Stop()
		}

		l.Conn.Release()
	})
}
