package importcoord

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/driver"
	"github.com/sandinv/ringcopy/internal/retry"
	"github.com/sandinv/ringcopy/internal/ring"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

// WorkerConfig names the fixed, per-run shape an import worker uses to
// parse, convert, and write chunks, per spec.md §4.10.
type WorkerConfig struct {
	Keyspace           string
	Table              string
	Columns            []string
	ColumnTypes        []convert.ColumnType
	PKIndexes          []int
	CounterColumns     []bool // parallel to Columns; true marks a counter column
	SkipColIndexes     map[int]bool
	PreparedStatements bool
	MaxBatchSize       int
	MinBatchSize       int
	// PKBytes serializes a row's already-converted primary-key values
	// into the byte form the ring's partitioner hashes into a token.
	PKBytes func(pkValues []any) []byte
}

// Worker pulls chunks from its inbound Link, parses/converts/batches
// their rows by ring position, writes each batch, and reports per-batch
// outcomes on its outbound Link, per spec.md §4.10. It exits when the
// coordinator sends the poison WorkItem (Chunk == nil).
type Worker struct {
	cfg       WorkerConfig
	pool      *driver.SessionPool
	converter *convert.Converter
	tm        *ring.TokenMap
	policy    *retry.Policy
	inbound   *ringchan.Link[WorkItem]
	outbound  *ringchan.Link[Event]
}

// NewWorker builds a Worker.
func NewWorker(cfg WorkerConfig, pool *driver.SessionPool, converter *convert.Converter, tm *ring.TokenMap, policy *retry.Policy, inbound *ringchan.Link[WorkItem], outbound *ringchan.Link[Event]) *Worker {
	return &Worker{cfg: cfg, pool: pool, converter: converter, tm: tm, policy: policy, inbound: inbound, outbound: outbound}
}

// Run drains the inbound Link until the poison WorkItem arrives or ctx
// is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-w.inbound.Chan():
			if !ok || item.Chunk == nil {
				return nil
			}
			w.processChunk(ctx, item.Chunk)
		}
	}
}

type convertedRow struct {
	raw    csvio.Row
	values []any
}

// dropSkipCols removes the CSV columns named by skipcols before the
// remaining fields are matched up against the table's column list.
func dropSkipCols(raw csvio.Row, skip map[int]bool) []string {
	if len(skip) == 0 {
		return []string(raw)
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		if skip[i] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (w *Worker) processChunk(ctx context.Context, chunk *Chunk) {
	var valid []convertedRow
	parseErrsByMsg := map[string][]csvio.Row{}

	for _, raw := range chunk.Rows {
		fields := dropSkipCols(raw, w.cfg.SkipColIndexes)
		values, err := w.converter.ConvertRow(w.cfg.ColumnTypes, fields, w.cfg.PKIndexes)
		if err != nil {
			parseErrsByMsg[err.Error()] = append(parseErrsByMsg[err.Error()], raw)
			continue
		}
		valid = append(valid, convertedRow{raw: raw, values: values})
	}

	for msg, rows := range parseErrsByMsg {
		w.outbound.Send(Event{TaskErr: &TaskError{Kind: "ParseError", Msg: msg, Rows: rows, Final: true}})
		w.outbound.Send(Event{Imported: len(rows)})
	}

	batches := w.buildBatches(valid)

	type outcome struct {
		n   int
		err error
		raw []csvio.Row
	}
	results := make(chan outcome, len(batches))
	for _, b := range batches {
		b := b
		go func() {
			err := w.runBatchWithRetry(ctx, b)
			if err != nil {
				raw := make([]csvio.Row, len(b.rows))
				for i, r := range b.rows {
					raw[i] = r.raw
				}
				results <- outcome{n: len(b.rows), err: err, raw: raw}
				return
			}
			results <- outcome{n: len(b.rows)}
		}()
	}

	for range batches {
		o := <-results
		if o.err != nil {
			w.outbound.Send(Event{TaskErr: &TaskError{Kind: "InsertError", Msg: o.err.Error(), Rows: o.raw, Final: true}})
		}
		w.outbound.Send(Event{Imported: o.n})
	}
}

type rowBatch struct {
	rows     []convertedRow
	replicas []string
}

// buildBatches groups converted rows by ring position, splitting large
// groups into maxbatchsize slices tagged with all of that position's
// replicas, and pooling small groups under their first valid replica,
// per spec.md §4.10 step 3.
func (w *Worker) buildBatches(rows []convertedRow) []rowBatch {
	type posGroup struct {
		rows     []convertedRow
		replicas []string
	}
	groups := map[int]*posGroup{}
	var order []int
	for _, r := range rows {
		pkValues := make([]any, len(w.cfg.PKIndexes))
		for i, idx := range w.cfg.PKIndexes {
			pkValues[i] = r.values[idx]
		}
		token := w.tm.PKToToken(w.cfg.PKBytes(pkValues))
		pos := w.tm.GetRingPos(token)
		g, ok := groups[pos]
		if !ok {
			g = &posGroup{replicas: w.tm.FilterReplicas(w.tm.Replicas[pos])}
			groups[pos] = g
			order = append(order, pos)
		}
		g.rows = append(g.rows, r)
	}

	var batches []rowBatch
	pooled := map[string][]convertedRow{}
	pooledReplicas := map[string][]string{}
	var pooledOrder []string

	for _, pos := range order {
		g := groups[pos]
		if len(g.rows) > w.cfg.MinBatchSize {
			for _, chunk := range sliceRows(g.rows, w.cfg.MaxBatchSize) {
				batches = append(batches, rowBatch{rows: chunk, replicas: g.replicas})
			}
			continue
		}
		host := "unreachable"
		if len(g.replicas) > 0 {
			host = g.replicas[0]
		}
		if _, ok := pooled[host]; !ok {
			pooledOrder = append(pooledOrder, host)
		}
		pooled[host] = append(pooled[host], g.rows...)
		pooledReplicas[host] = g.replicas
	}
	for _, host := range pooledOrder {
		for _, chunk := range sliceRows(pooled[host], w.cfg.MaxBatchSize) {
			batches = append(batches, rowBatch{rows: chunk, replicas: pooledReplicas[host]})
		}
	}
	return batches
}

func sliceRows(rows []convertedRow, size int) [][]convertedRow {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]convertedRow
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}

func (w *Worker) runBatchWithRetry(ctx context.Context, b rowBatch) error {
	attempt := 0
	for {
		err := w.executeBatch(ctx, b)
		if err == nil {
			return nil
		}
		outcome, delay := w.policy.Decide(attempt)
		attempt++
		if outcome == retry.GiveUp {
			return err
		}
		w.policy.Await(delay)
	}
}

// executeBatch writes every row in b against the least-loaded
// replica, one statement per row. A real CQL unlogged batch combines
// many rows into one wire message; database/sql's extended query
// protocol does not support multiple parameterized statements in one
// Exec call, so this issues them sequentially within the same
// goroutine instead of a single round trip. Replica selection and the
// retry/backoff semantics around it are otherwise unchanged.
func (w *Worker) executeBatch(ctx context.Context, b rowBatch) error {
	session, err := w.pool.LeastLoaded(ctx, b.replicas)
	if err != nil {
		return fmt.Errorf("no session available: %w", err)
	}
	for _, r := range b.rows {
		text, args, err := w.buildStatement(r.values)
		if err != nil {
			return err
		}
		stmt, err := session.Prepare(ctx, text)
		if err != nil {
			return err
		}
		if err := session.ExecuteWrite(ctx, stmt, args, driver.ExecOptions{Replicas: b.replicas}); err != nil {
			return err
		}
	}
	return nil
}

// buildStatement picks the statement shape for one row, per spec.md
// §4.10: a counter UPDATE when any column is a counter, a prepared
// parameterized INSERT otherwise, or (when PreparedStatements is
// false) a fully textual INSERT with protector-quoted literals.
func (w *Worker) buildStatement(values []any) (string, []any, error) {
	hasCounter := false
	for _, c := range w.cfg.CounterColumns {
		if c {
			hasCounter = true
			break
		}
	}
	if hasCounter {
		return w.buildCounterUpdate(values)
	}
	if w.cfg.PreparedStatements {
		return w.buildPreparedInsert(values)
	}
	return w.buildTextualInsert(values)
}

func (w *Worker) buildPreparedInsert(values []any) (string, []any, error) {
	placeholders := make([]string, len(w.cfg.Columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	text := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		w.cfg.Keyspace, w.cfg.Table, strings.Join(w.cfg.Columns, ", "), strings.Join(placeholders, ", "))
	return text, values, nil
}

func (w *Worker) buildTextualInsert(values []any) (string, []any, error) {
	literals := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			literals[i] = "null"
			continue
		}
		lit, err := w.converter.Protect(w.cfg.ColumnTypes[i], v)
		if err != nil {
			return "", nil, err
		}
		literals[i] = lit
	}
	text := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		w.cfg.Keyspace, w.cfg.Table, strings.Join(w.cfg.Columns, ", "), strings.Join(literals, ", "))
	return text, nil, nil
}

// buildCounterUpdate targets an UPDATE ... SET col = col + ? form for
// every counter column, keyed by the row's primary-key columns, per
// spec.md §4.5's counter-table note.
func (w *Worker) buildCounterUpdate(values []any) (string, []any, error) {
	pkSet := make(map[int]bool, len(w.cfg.PKIndexes))
	for _, i := range w.cfg.PKIndexes {
		pkSet[i] = true
	}

	var sets []string
	var args []any
	argN := 1
	for i, isCounter := range w.cfg.CounterColumns {
		if !isCounter {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s + $%d", w.cfg.Columns[i], w.cfg.Columns[i], argN))
		args = append(args, values[i])
		argN++
	}

	var conds []string
	for _, i := range w.cfg.PKIndexes {
		conds = append(conds, fmt.Sprintf("%s = $%d", w.cfg.Columns[i], argN))
		args = append(args, values[i])
		argN++
	}

	text := fmt.Sprintf("UPDATE %s.%s SET %s WHERE %s",
		w.cfg.Keyspace, w.cfg.Table, strings.Join(sets, ", "), strings.Join(conds, " AND "))
	return text, args, nil
}
