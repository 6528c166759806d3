package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// Registry caches pools by connection URL and credentials so repeated
// connects with the same identity share one pool. Safe for concurrent use.
type Registry struct {
	factory PoolFactory
	group   singleflight.Group
	mu      sync.RWMutex
	pools   map[string]Pool
	closed  bool
}

// NewRegistry creates an empty registry. A nil factory uses NewPgxPool.
func NewRegistry(factory PoolFactory) *Registry {
	if factory == nil {
		factory = NewPgxPool
	}

	return &Registry{
		factory: factory,
		pools:   make(map[string]Pool),
	}
}

// RegistryKey builds the cache key for a pool: url|user|password.
func RegistryKey(jdbcURL, user, password string) string {
	return jdbcURL + "|" + user + "|" + password
}

// GetOrCreate returns the pool stored under key, creating it from cfg when
// absent. Concurrent callers for the same key share a single creation.
// onCreate, when not nil, runs once against a newly created pool before it is
// published; if it fails the pool is closed and the error returned.
//
//nolint:ireturn
func (r *Registry) GetOrCreate(
	ctx context.Context,
	key string,
	cfg *pgxpool.Config,
	onCreate func(context.Context, Pool) error,
) (Pool, error) {
	if pool, ok, err := r.lookup(key); err != nil || ok {
		return pool, err
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		if pool, ok, err := r.lookup(key); err != nil || ok {
			return pool, err
		}

		pool, err := r.factory(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pool: %w", err)
		}

		if onCreate != nil {
			if err := onCreate(ctx, pool); err != nil {
				pool.Close()

				return nil, err
			}
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		if r.closed {
			pool.Close()

			return nil, ErrRegistryClosed
		}

		r.pools[key] = pool

		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	pool, _ := value.(Pool)

	return pool, nil
}

func (r *Registry) lookup(key string) (Pool, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, false, ErrRegistryClosed
	}

	pool, ok := r.pools[key]

	return pool, ok, nil
}

// Len reports how many pools are cached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.pools)
}

// Close closes every cached pool. It is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	pools := r.pools
	r.pools = make(map[string]Pool)
	r.closed = true
	r.mu.Unlock()

	for _, pool := range pools {
		pool.Close()
	}
}
