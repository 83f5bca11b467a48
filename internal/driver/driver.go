// Package driver narrows the ring database down to the small surface
// the core data plane needs: cluster metadata, prepared statements,
// and async execution. spec.md scopes the concrete wire driver out of
// the core; this package is the "narrow interface" collaborator it
// asks for, plus one concrete implementation (sqlsession) built atop
// database/sql + lib/pq, reusing the teacher's internal/database.Database
// (Connect/ConfigurePool/pq.ParseURL validation) almost verbatim.
package driver

import (
	"context"

	"github.com/sandinv/ringcopy/internal/ring"
)

// Row is one result row, column values already as driver-native Go
// types (string, int64, float64, []byte, time.Time, ...).
type Row []any

// ResultStream yields pages of rows from an async SELECT. Implementations
// may block in Next() until the next page arrives.
type ResultStream interface {
	// Next returns the next page of rows, or ok=false once exhausted.
	Next(ctx context.Context) (rows []Row, ok bool, err error)
}

// Statement is a prepared or ad-hoc query/insert/update, opaque to the
// core beyond what Session.ExecuteAsync needs.
type Statement interface {
	// Text returns the original CQL/SQL text, for diagnostics.
	Text() string
}

// ExecOptions configures one ExecuteAsync call.
type ExecOptions struct {
	PageSize         int
	ConsistencyLevel string
	Replicas         []string // preferred replica order, per spec.md §4.10's fast token-aware policy
}

// Session is the narrow collaborator interface the export/import
// workers depend on. One Session is opened per host (spec.md §4.7:
// "opens a session connecting only to that host").
type Session interface {
	// Prepare compiles stmt once for repeated execution.
	Prepare(ctx context.Context, stmt string) (Statement, error)
	// ExecuteAsync runs a SELECT and returns a paged result stream.
	ExecuteAsync(ctx context.Context, stmt Statement, args []any, opts ExecOptions) (ResultStream, error)
	// ExecuteWrite runs an INSERT/UPDATE/batch and returns only an
	// error, which the caller's retry policy classifies; rows affected
	// are not reported.
	ExecuteWrite(ctx context.Context, stmt Statement, args []any, opts ExecOptions) error
	// Close releases the session's connection(s).
	Close() error
}

// ClusterMetadata is the narrow slice of driver metadata the ring
// package needs to build a TokenMap (spec.md §4.4).
type ClusterMetadata interface {
	Hosts() []ring.HostInfo
	TokenMap(keyspace string) *ring.TokenMap
	Partitioner() ring.Partitioner
}
