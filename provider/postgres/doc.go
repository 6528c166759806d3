// Package postgres provides the PostgreSQL implementation of provider.Database.
//
// Pools come from pgxpool and are cached in a Registry keyed by connection URL
// and credentials. AcquireConnection leases from the pool with a bounded number
// of randomized retries and, once a lease succeeds, terminates long-idle
// backends of the same database to relieve server-side connection pressure.
package postgres
