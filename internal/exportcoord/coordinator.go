package exportcoord

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/driver"
	"github.com/sandinv/ringcopy/internal/ratemeter"
	"github.com/sandinv/ringcopy/internal/ring"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

// Config is the coordinator's per-run configuration, spec.md §4.6.
type Config struct {
	Keyspace           string
	Table              string
	Columns            []string
	ColumnTypes        []convert.ColumnType
	PKColumn           string
	NumProcesses       int
	MaxRequests        int
	PageSize           int
	PageTimeoutSeconds int
	MaxAttempts        int
	Partitioner        ring.Partitioner
	BeginToken         *int64
	EndToken           *int64
}

// Summary reports the outcome of one EXPORT run.
type Summary struct {
	RangesTotal     int
	RangesSucceeded int
	RangesFailed    int
	RowsWritten     int64
}

// Coordinator drives one EXPORT run: compute ranges, spawn workers,
// drain their results into the writer, and retry ranges that failed
// before any rows arrived (spec.md §4.6).
type Coordinator struct {
	cfg       Config
	pool      *driver.SessionPool
	converter *convert.Converter
	writer    *csvio.Writer
	meter     *ratemeter.Meter
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(cfg Config, pool *driver.SessionPool, converter *convert.Converter, writer *csvio.Writer, meter *ratemeter.Meter) *Coordinator {
	return &Coordinator{cfg: cfg, pool: pool, converter: converter, writer: writer, meter: meter}
}

// Run computes token ranges from tm, spawns cfg.NumProcesses workers,
// and drives the receive loop of spec.md §4.6 step 5 to completion.
func (c *Coordinator) Run(ctx context.Context, tm *ring.TokenMap) (Summary, error) {
	pending := tm.BuildRanges(c.cfg.Partitioner, c.cfg.BeginToken, c.cfg.EndToken)
	order := make([]ring.TokenRange, 0, len(pending))
	for rng := range pending {
		order = append(order, rng)
	}
	total := len(order)

	numWorkers := c.cfg.NumProcesses
	if numWorkers < 1 {
		numWorkers = 1
	}

	inbounds := make([]*ringchan.Link[Assignment], numWorkers)
	outbounds := make([]*ringchan.Link[Result], numWorkers)
	workers := make([]*Worker, numWorkers)
	wcfg := WorkerConfig{
		Keyspace: c.cfg.Keyspace, Table: c.cfg.Table, Columns: c.cfg.Columns,
		ColumnTypes: c.cfg.ColumnTypes, PKColumn: c.cfg.PKColumn,
		MaxRequests: c.cfg.MaxRequests, PageSize: c.cfg.PageSize,
		PageTimeoutSeconds: c.cfg.PageTimeoutSeconds,
	}
	for i := 0; i < numWorkers; i++ {
		inbounds[i] = ringchan.NewLink[Assignment](4)
		outbounds[i] = ringchan.NewLink[Result](16)
		workers[i] = NewWorker(wcfg, c.pool, c.converter, inbounds[i], outbounds[i])
	}

	// cancel (not closing the inbound Links) is how the coordinator
	// stops the pool: a Link Close() racing an in-flight dispatch Send
	// would panic, whereas every worker already selects on ctx.Done().
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(runCtx)
	for _, w := range workers {
		w := w
		eg.Go(func() error { return runSafely(egCtx, w.Run) })
	}
	workersDone := make(chan error, 1)
	go func() { workersDone <- eg.Wait() }()

	group := ringchan.NewGroup(outbounds)

	dispatchCounter := 0
	dispatch := func(rng ring.TokenRange) {
		state := pending[rng]
		state.Attempts++
		idx := dispatchCounter % numWorkers
		dispatchCounter++
		// Dispatched off the main loop's goroutine: a worker's inbound
		// buffer may be momentarily full while it drains a prior range,
		// and the coordinator must keep servicing the result Group in
		// the meantime rather than block on Send.
		go inbounds[idx].Send(Assignment{Range: rng, State: state})
	}
	for _, rng := range order {
		dispatch(rng)
	}

	var summary Summary
	summary.RangesTotal = total

	for summary.RangesSucceeded+summary.RangesFailed < total {
		select {
		case err := <-workersDone:
			return summary, fmt.Errorf("export worker pool terminated early: %w", err)
		default:
		}

		_, res, ok := group.Recv(100 * time.Millisecond)
		if !ok {
			continue
		}

		if res.Range == nil {
			return summary, fmt.Errorf("fatal export worker error: %w", res.Err)
		}

		state := pending[*res.Range]
		switch {
		case res.Err != nil:
			if state.Attempts < c.cfg.MaxAttempts && state.Rows == 0 {
				dispatch(*res.Range)
			} else {
				summary.RangesFailed++
			}
		case res.Done:
			summary.RangesSucceeded++
		case res.Rows != nil:
			for _, row := range res.Rows {
				if err := c.writer.WriteRow(row); err != nil {
					return summary, fmt.Errorf("write export row: %w", err)
				}
			}
			state.Rows += len(res.Rows)
			c.meter.Increment(int64(len(res.Rows)))
			c.meter.MaybeUpdate(false)
			summary.RowsWritten += int64(len(res.Rows))
		}
	}

	return summary, nil
}

func runSafely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return fn(ctx)
}
