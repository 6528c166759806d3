package postgres

import (
	"database/sql"
	"database/sql/driver"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
)

// DriverName is the database/sql name the pgx driver is registered under.
const DriverName = "postgresql"

const defaultLoginTimeout = 10 * time.Second

var (
	registerOnce      sync.Once
	loginTimeoutNanos atomic.Int64
)

// RegisterDriver registers the pgx driver as DriverName and fixes the login
// timeout. It runs at most once per process; later calls are no-ops.
func RegisterDriver() {
	registerOnce.Do(func() {
		if !slices.Contains(sql.Drivers(), DriverName) {
			sql.Register(DriverName, stdlib.GetDefaultDriver())
		}

		loginTimeoutNanos.Store(int64(defaultLoginTimeout))
	})
}

// LoginTimeout is the connect timeout applied to every new physical connection.
// It is zero until RegisterDriver ran.
func LoginTimeout() time.Duration {
	return time.Duration(loginTimeoutNanos.Load())
}

// Driver returns the registered driver, registering it first if needed.
//
//nolint:ireturn
func Driver() driver.Driver {
	RegisterDriver()

	return stdlib.GetDefaultDriver()
}
