package exportcoord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/driver"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

// WorkerConfig names the fixed, per-run query shape an export worker
// builds, per spec.md §4.7.
type WorkerConfig struct {
	Keyspace    string
	Table       string
	Columns     []string
	ColumnTypes []convert.ColumnType
	PKColumn    string // column name passed to token() in the WHERE clause
	MaxRequests int
	PageSize    int
	// PageTimeoutSeconds overrides the max(10, 10*pagesize/1000) default
	// derived from PageSize, per spec.md §6's pagetimeout copy option.
	// <=0 means use the default formula.
	PageTimeoutSeconds int
}

// Worker pulls range assignments from its inbound Link, executes the
// paged SELECT against the least-loaded replica, and streams CSV rows
// back on its outbound Link, per spec.md §4.7. It never exits on its
// own; it stops when ctx is cancelled (as the Coordinator does) or the
// inbound Link is closed.
type Worker struct {
	cfg       WorkerConfig
	pool      *driver.SessionPool
	converter *convert.Converter
	inbound   *ringchan.Link[Assignment]
	outbound  *ringchan.Link[Result]
}

// NewWorker builds a Worker bound to the given session pool and
// channel pair.
func NewWorker(cfg WorkerConfig, pool *driver.SessionPool, converter *convert.Converter, inbound *ringchan.Link[Assignment], outbound *ringchan.Link[Result]) *Worker {
	return &Worker{cfg: cfg, pool: pool, converter: converter, inbound: inbound, outbound: outbound}
}

// Run drains the inbound Link until it is closed or ctx is cancelled,
// dispatching each range to buildQuery/runRange. Errors from one range
// never stop the loop; they're reported and the worker moves to the
// next assignment.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-w.inbound.Chan():
			if !ok {
				return nil
			}
			w.throttle(ctx)
			w.runRange(ctx, a)
		}
	}
}

// throttle sleeps 1ms at a time while total in-flight requests across
// every session in the worker's pool meets or exceeds maxrequests. The
// Coordinator gives all its workers one shared pool, so the limit
// applies to the workers together, not to each worker separately.
func (w *Worker) throttle(ctx context.Context) {
	for w.pool.TotalInFlight() >= w.cfg.MaxRequests {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func (w *Worker) buildQuery(r Assignment) string {
	var where string
	switch {
	case r.Range.Begin != nil && r.Range.End != nil:
		where = fmt.Sprintf(" WHERE token(%s) > %d AND token(%s) <= %d", w.cfg.PKColumn, *r.Range.Begin, w.cfg.PKColumn, *r.Range.End)
	case r.Range.Begin != nil:
		where = fmt.Sprintf(" WHERE token(%s) > %d", w.cfg.PKColumn, *r.Range.Begin)
	case r.Range.End != nil:
		where = fmt.Sprintf(" WHERE token(%s) <= %d", w.cfg.PKColumn, *r.Range.End)
	}
	return fmt.Sprintf("SELECT %s FROM %s.%s%s", strings.Join(w.cfg.Columns, ", "), w.cfg.Keyspace, w.cfg.Table, where)
}

func (w *Worker) runRange(ctx context.Context, a Assignment) {
	session, err := w.pool.LeastLoaded(ctx, a.State.Hosts)
	if err != nil {
		w.outbound.Send(Result{Range: &a.Range, Err: fmt.Errorf("no session available: %w", err)})
		return
	}

	stmt, err := session.Prepare(ctx, w.buildQuery(a))
	if err != nil {
		w.outbound.Send(Result{Range: &a.Range, Err: err})
		return
	}

	pageTimeoutSeconds := w.cfg.PageTimeoutSeconds
	if pageTimeoutSeconds <= 0 {
		pageTimeoutSeconds = maxInt(10, 10*w.cfg.PageSize/1000)
	}
	pageTimeout := time.Duration(pageTimeoutSeconds) * time.Second
	stream, err := session.ExecuteAsync(ctx, stmt, nil, driver.ExecOptions{PageSize: w.cfg.PageSize})
	if err != nil {
		w.outbound.Send(Result{Range: &a.Range, Err: err})
		return
	}

	for {
		pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
		rows, ok, err := stream.Next(pageCtx)
		cancel()
		if err != nil {
			w.outbound.Send(Result{Range: &a.Range, Err: err})
			return
		}
		if len(rows) > 0 {
			csvRows, convErr := w.toCSVRows(rows)
			if convErr != nil {
				w.outbound.Send(Result{Range: &a.Range, Err: convErr})
				return
			}
			w.outbound.Send(Result{Range: &a.Range, Rows: csvRows})
		}
		if !ok {
			break
		}
	}
	w.outbound.Send(Result{Range: &a.Range, Done: true})
}

func (w *Worker) toCSVRows(rows []driver.Row) ([][]string, error) {
	out := make([][]string, len(rows))
	for i, row := range rows {
		fields := make([]string, len(row))
		for col, v := range row {
			s, err := w.converter.Export(w.cfg.ColumnTypes[col], v)
			if err != nil {
				return nil, fmt.Errorf("export column %d: %w", col, err)
			}
			fields[col] = s
		}
		out[i] = fields
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
