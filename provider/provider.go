package provider

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Descriptor identifies a database to connect to. It is supplied by the caller
// and treated as immutable for the duration of a connect attempt.
type Descriptor struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	DBName   string `yaml:"dbName" validate:"required"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSL      bool   `yaml:"ssl"`
}

// String renders the descriptor without its password.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s@%s:%d/%s (ssl=%t)", d.User, d.Host, d.Port, d.DBName, d.SSL)
}

// Conn is a connection leased from a pool. The holder has exclusive use of it
// until Release is called; Release must be called exactly once per lease and
// extra calls are ignored.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Release()
}

// Database is a pooled database provider.
type Database interface {
	// DefaultSetup returns the provider's default pool parameters.
	DefaultSetup() Setup
	// Setup applies pool parameters. It is called once, before Connect.
	Setup(setup Setup) error
	// Connect points the provider at the database described by d.
	Connect(ctx context.Context, d Descriptor) error
	// AcquireConnection leases a connection, retrying transient failures.
	AcquireConnection(ctx context.Context) (Conn, error)
	// Cleanup terminates long-idle backends of the connected database and
	// returns how many were terminated.
	Cleanup(ctx context.Context, conn Conn) (int64, error)
	// Status reports pool counters for diagnostics. It never fails.
	Status() string
	// Driver returns the registered database/sql driver.
	Driver() driver.Driver
	// Close releases the pool.
	Close() error
}

// Setup is an opaque set of pool parameters understood by one provider.
// Each provider documents its concrete type; passing another provider's
// Setup to Database.Setup returns an error.
type Setup interface {
	// Name is the data source name the parameters belong to.
	Name() string
}
