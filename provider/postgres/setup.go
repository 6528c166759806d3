package postgres

import (
	"context"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/hsharp/lib-dbprovider/provider/backoff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultIdleConnectionTestPeriod     = 1200 * time.Second
	defaultMaxIdleTimeExcessConnections = 1200 * time.Second
	defaultMaxIdleTime                  = 1200 * time.Second
	defaultAcquireRetryAttempts         = 10
	defaultInitialPoolSize              = 10
	defaultMinPoolSize                  = 5
	defaultMaxPoolSize                  = 90
	defaultMaxRetries                   = 5
	defaultMinWait                      = 2 * time.Second
	defaultMaxWait                      = 10 * time.Second
	defaultIdleBackendAge               = time.Minute

	defaultDataSourceName              = "default"
	defaultCheckoutTimeout             = 10 * time.Second
	defaultUnreturnedConnectionTimeout = 10 * time.Second

	checkinPingTTL = 5 * time.Second
)

var (
	// unreturnedLeaseLimit is how long a lease may stay out once unreturned
	// connection tracking is enabled, whatever timeout was configured.
	unreturnedLeaseLimit = 1200 * time.Second

	dialRetryDelay = time.Second
)

// Setup holds the pool parameters of a Client. Zero numeric and duration
// fields fall back to the documented defaults; CheckoutTimeout,
// UnreturnedConnectionTimeout and MaxStatementsPerConnection are only applied
// when greater than zero.
type Setup struct {
	// DataSourceName names the pool; it is sent as application_name. Required.
	DataSourceName string `yaml:"dataSourceName"`
	// IdleConnectionTestPeriod is how often idle connections are health checked. Default: 1200s.
	IdleConnectionTestPeriod time.Duration `yaml:"idleConnectionTestPeriod"`
	// MaxIdleTimeExcessConnections closes idle connections above MinPoolSize. Default: 1200s.
	MaxIdleTimeExcessConnections time.Duration `yaml:"maxIdleTimeExcessConnections"`
	// MaxIdleTime closes connections idle longer than this. Default: 1200s.
	MaxIdleTime time.Duration `yaml:"maxIdleTime"`
	// TestConnectionOnCheckin pings connections when they are returned.
	TestConnectionOnCheckin bool `yaml:"testConnectionOnCheckin"`
	// TestConnectionOnCheckout pings connections before they are leased.
	TestConnectionOnCheckout bool `yaml:"testConnectionOnCheckout"`
	// AcquireRetryAttempts is the number of dial attempts per new physical connection. Default: 10.
	AcquireRetryAttempts int `yaml:"acquireRetryAttempts"`
	// CheckoutTimeout bounds a single lease attempt. Zero or negative disables it.
	CheckoutTimeout time.Duration `yaml:"checkoutTimeout"`
	// InitialPoolSize is the number of connections opened when a pool is created. Default: 10.
	InitialPoolSize int `yaml:"initialPoolSize"`
	// MinPoolSize is the number of connections the pool keeps open. Default: 5.
	MinPoolSize int `yaml:"minPoolSize"`
	// MaxPoolSize caps the pool. Default: 90.
	MaxPoolSize int `yaml:"maxPoolSize"`
	// MaxStatementsPerConnection sizes the per-connection statement cache when positive.
	MaxStatementsPerConnection int `yaml:"maxStatementsPerConnection"`
	// UnreturnedConnectionTimeout enables reporting of leases held too long when positive.
	UnreturnedConnectionTimeout time.Duration `yaml:"unreturnedConnectionTimeout"`
	// MaxRetries is the number of lease attempts in AcquireConnection. Default: 5.
	MaxRetries int `yaml:"maxRetries"`
	// MinWait and MaxWait bound the random wait between lease attempts. Default: 2s and 10s.
	// An unset bound is defaulted without crossing the one that is set.
	MinWait time.Duration `yaml:"minWait"`
	MaxWait time.Duration `yaml:"maxWait"`
	// IdleBackendAge is how long a backend must be idle before Cleanup terminates it. Default: 1m.
	IdleBackendAge time.Duration `yaml:"idleBackendAge"`
	// RequireSSLMode adds sslmode=require to the URL of SSL descriptors.
	RequireSSLMode bool `yaml:"requireSSLMode"`
	// MigrationsPath, when set, is applied with golang-migrate each time a pool is created.
	MigrationsPath string `yaml:"migrationsPath"`
	// AllowMultiStatements lets a migration file hold several statements.
	AllowMultiStatements bool `yaml:"allowMultiStatements"`
}

var _ provider.Setup = Setup{}

// DefaultSetup returns the default pool parameters.
func DefaultSetup() Setup {
	return Setup{
		DataSourceName:              defaultDataSourceName,
		CheckoutTimeout:             defaultCheckoutTimeout,
		UnreturnedConnectionTimeout: defaultUnreturnedConnectionTimeout,
	}.withDefaults()
}

// Name implements provider.Setup.
func (s Setup) Name() string {
	return s.DataSourceName
}

func (s Setup) withDefaults() Setup {
	if s.IdleConnectionTestPeriod <= 0 {
		s.IdleConnectionTestPeriod = defaultIdleConnectionTestPeriod
	}

	if s.MaxIdleTimeExcessConnections <= 0 {
		s.MaxIdleTimeExcessConnections = defaultMaxIdleTimeExcessConnections
	}

	if s.MaxIdleTime <= 0 {
		s.MaxIdleTime = defaultMaxIdleTime
	}

	if s.AcquireRetryAttempts <= 0 {
		s.AcquireRetryAttempts = defaultAcquireRetryAttempts
	}

	if s.InitialPoolSize <= 0 {
		s.InitialPoolSize = defaultInitialPoolSize
	}

	if s.MinPoolSize <= 0 {
		s.MinPoolSize = defaultMinPoolSize
	}

	if s.MaxPoolSize <= 0 {
		s.MaxPoolSize = defaultMaxPoolSize
	}

	if s.MaxRetries <= 0 {
		s.MaxRetries = defaultMaxRetries
	}

	if s.MinWait <= 0 {
		s.MinWait = defaultMinWait
		if s.MaxWait > 0 {
			s.MinWait = min(defaultMinWait, s.MaxWait)
		}
	}

	if s.MaxWait <= 0 {
		s.MaxWait = max(defaultMaxWait, s.MinWait)
	}

	if s.IdleBackendAge <= 0 {
		s.IdleBackendAge = defaultIdleBackendAge
	}

	return s
}

func (s Setup) validate() error {
	if strings.TrimSpace(s.DataSourceName) == "" {
		return fmt.Errorf("%w: data source name is required", ErrInvalidSetup)
	}

	return nil
}

// toSetup accepts the postgres Setup in value or pointer form.
func toSetup(s provider.Setup) (Setup, error) {
	switch v := s.(type) {
	case Setup:
		return v, nil
	case *Setup:
		if v != nil {
			return *v, nil
		}
	}

	return Setup{}, fmt.Errorf("%w: unsupported setup type %T", ErrInvalidSetup, s)
}

// applySetup maps the pool parameters onto a pgxpool configuration.
// Range checks are left to pgxpool.
func applySetup(cfg *pgxpool.Config, s Setup) {
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}

	cfg.ConnConfig.RuntimeParams["application_name"] = s.DataSourceName

	if timeout := LoginTimeout(); timeout > 0 {
		cfg.ConnConfig.ConnectTimeout = timeout
	}

	cfg.HealthCheckPeriod = s.IdleConnectionTestPeriod
	cfg.MaxConnIdleTime = idleCutoff(s)
	cfg.MinConns = clampInt32(s.MinPoolSize)
	cfg.MaxConns = clampInt32(s.MaxPoolSize)

	if s.MaxStatementsPerConnection > 0 {
		cfg.ConnConfig.StatementCacheCapacity = s.MaxStatementsPerConnection
	}

	if s.TestConnectionOnCheckout {
		cfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
			return conn.Ping(ctx) == nil
		}
	}

	if s.TestConnectionOnCheckin {
		cfg.AfterRelease = func(conn *pgx.Conn) bool {
			ctx, cancel := context.WithTimeout(context.Background(), checkinPingTTL)
			defer cancel()

			return conn.Ping(ctx) == nil
		}
	}

	cfg.ConnConfig.DialFunc = retryingDial(s.AcquireRetryAttempts, cfg.ConnConfig.DialFunc)
}

// idleCutoff picks the tighter of the two idle thresholds. pgxpool only reaps
// idle connections above MinConns, which matches the excess-connection rule.
func idleCutoff(s Setup) time.Duration {
	if s.MaxIdleTime > 0 && s.MaxIdleTime < s.MaxIdleTimeExcessConnections {
		return s.MaxIdleTime
	}

	return s.MaxIdleTimeExcessConnections
}

// retryingDial retries the physical dial of a new connection, pausing
// dialRetryDelay between attempts, until attempts are used or ctx ends.
func retryingDial(attempts int, dial pgconn.DialFunc) pgconn.DialFunc {
	if dial == nil {
		dialer := &net.Dialer{KeepAlive: 5 * time.Minute}
		dial = dialer.DialContext
	}

	if attempts <= 1 {
		return dial
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var lastErr error

		for attempt := 1; attempt <= attempts; attempt++ {
			conn, err := dial(ctx, network, addr)
			if err == nil {
				return conn, nil
			}

			lastErr = err

			if attempt == attempts {
				break
			}

			if sleepErr := backoff.SleepWithContext(ctx, dialRetryDelay); sleepErr != nil {
				break
			}
		}

		return nil, lastErr
	}
}

func clampInt32(v int) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}
