package driver

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	pq "github.com/lib/pq"
)

// sqlStatement is the Statement implementation for sqlsession.
type sqlStatement struct {
	text string
}

func (s *sqlStatement) Text() string { return s.text }

// pagedRows adapts database/sql's cursor-style *sql.Rows to the
// page-at-a-time ResultStream contract async drivers expose, fetching
// pageSize rows per Next call. Grounded on the teacher's
// internal/database (formerly query.go) row-scan loop, generalized from
// "drain everything" to "drain one page".
type pagedRows struct {
	rows     *sql.Rows
	pageSize int
	ncols    int
	onDone   func()
	done     bool
}

func (p *pagedRows) Next(ctx context.Context) ([]Row, bool, error) {
	var page []Row
	for len(page) < p.pageSize {
		if !p.rows.Next() {
			p.markDone()
			return page, len(page) > 0, p.rows.Err()
		}
		vals := make([]any, p.ncols)
		ptrs := make([]any, p.ncols)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := p.rows.Scan(ptrs...); err != nil {
			p.markDone()
			return nil, false, fmt.Errorf("scan row: %w", err)
		}
		page = append(page, Row(vals))
	}
	return page, true, nil
}

func (p *pagedRows) markDone() {
	if !p.done && p.onDone != nil {
		p.done = true
		p.onDone()
	}
}

// sqlSession is a Session bound to exactly one backing host, per
// spec.md §4.7's "opens a session connecting only to that host" rule.
// It reuses the teacher's Connect/ConfigurePool/pq.ParseURL validation
// shape (internal/database.Database in the original teacher tree).
type sqlSession struct {
	db       *sql.DB
	host     string
	inFlight int64
}

// Dial opens a sqlSession to host, retrying the initial ping with
// exponential backoff (github.com/cenkalti/backoff/v4) since a replica
// that is merely slow to accept connections shouldn't fail the whole
// worker the way it would with a single bare dial attempt.
func Dial(ctx context.Context, connString, host string) (*sqlSession, error) {
	if _, err := pq.ParseURL(connString); err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	pingErr := backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, b)
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", host, pingErr)
	}

	return &sqlSession{db: db, host: host}, nil
}

// ConfigurePool sizes the connection pool for the given concurrency,
// mirroring the teacher's Database.ConfigurePool.
func (s *sqlSession) ConfigurePool(maxInFlight int) {
	s.db.SetMaxOpenConns(maxInFlight * 2)
	s.db.SetMaxIdleConns(maxInFlight)
	s.db.SetConnMaxLifetime(time.Minute)
}

func (s *sqlSession) Prepare(ctx context.Context, stmt string) (Statement, error) {
	return &sqlStatement{text: stmt}, nil
}

func (s *sqlSession) ExecuteAsync(ctx context.Context, stmt Statement, args []any, opts ExecOptions) (ResultStream, error) {
	atomic.AddInt64(&s.inFlight, 1)
	rows, err := s.db.QueryContext(ctx, stmt.Text(), args...)
	if err != nil {
		atomic.AddInt64(&s.inFlight, -1)
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		atomic.AddInt64(&s.inFlight, -1)
		return nil, err
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &pagedRows{rows: rows, pageSize: pageSize, ncols: len(cols), onDone: func() { atomic.AddInt64(&s.inFlight, -1) }}, nil
}

func (s *sqlSession) ExecuteWrite(ctx context.Context, stmt Statement, args []any, opts ExecOptions) error {
	atomic.AddInt64(&s.inFlight, 1)
	defer atomic.AddInt64(&s.inFlight, -1)
	_, err := s.db.ExecContext(ctx, stmt.Text(), args...)
	return err
}

func (s *sqlSession) Close() error { return s.db.Close() }

// InFlight returns the number of requests this session is currently
// carrying, used by the export worker's maxrequests throttle
// (spec.md §4.7).
func (s *sqlSession) InFlight() int { return int(atomic.LoadInt64(&s.inFlight)) }
