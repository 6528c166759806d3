package postgres

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hsharp/lib-dbprovider/provider"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jdbcPrefix = "jdbc:"

type urlOptions struct {
	sslModeRequire bool
}

// URLOption customizes BuildURL.
type URLOption func(*urlOptions)

// WithSSLModeRequire appends &sslmode=require after &ssl=true for SSL descriptors.
func WithSSLModeRequire() URLOption {
	return func(o *urlOptions) {
		o.sslModeRequire = true
	}
}

// BuildURL returns the JDBC-style connection URL for d:
//
//	jdbc:postgresql://<host>:<port>/<dbname>?encoding=UNICODE[&ssl=true[&sslmode=require]]
//
// Values are used as supplied, without escaping or validation.
func BuildURL(d provider.Descriptor, opts ...URLOption) string {
	var o urlOptions

	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	var sb strings.Builder

	sb.WriteString("jdbc:postgresql://")
	sb.WriteString(d.Host)
	sb.WriteString(":")
	sb.WriteString(strconv.Itoa(d.Port))
	sb.WriteString("/")
	sb.WriteString(d.DBName)
	sb.WriteString("?encoding=UNICODE")

	if d.SSL {
		sb.WriteString("&ssl=true")

		if o.sslModeRequire {
			sb.WriteString("&sslmode=require")
		}
	}

	return sb.String()
}

// poolConfigFromURL turns a JDBC-style URL into a pgxpool configuration.
// encoding=UNICODE becomes client_encoding=UTF8 and ssl=true becomes
// sslmode=require unless sslmode is already present. Credentials are set on
// the parsed config and never placed in the connection string.
func poolConfigFromURL(jdbcURL, user, password string) (*pgxpool.Config, error) {
	u, err := url.Parse(strings.TrimPrefix(jdbcURL, jdbcPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection url: %w", err)
	}

	query := u.Query()
	ssl := strings.EqualFold(query.Get("ssl"), "true")

	query.Del("ssl")
	query.Del("encoding")

	if query.Get("sslmode") == "" {
		if ssl {
			query.Set("sslmode", "require")
		} else {
			query.Set("sslmode", "disable")
		}
	}

	query.Set("client_encoding", "UTF8")
	u.RawQuery = query.Encode()

	cfg, err := pgxpool.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if user != "" {
		cfg.ConnConfig.User = user
	}

	if password != "" {
		cfg.ConnConfig.Password = password
	}

	return cfg, nil
}
