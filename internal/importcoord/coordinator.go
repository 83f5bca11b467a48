package importcoord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/errorfile"
	"github.com/sandinv/ringcopy/internal/ratemeter"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

// ErrorSink persists rows that failed conversion or insertion, so a
// later run can be pointed back at just the rows that didn't make it,
// per spec.md §4.12.
type ErrorSink interface {
	WriteRow(row csvio.Row) error
}

// Config is the import coordinator's per-run configuration, spec.md
// §4.9-§4.11.
type Config struct {
	NumProcesses    int
	ChunkSize       int
	IngestRate      int
	MaxParseErrors  int
	MaxInsertErrors int
}

// Summary reports the outcome of one IMPORT run.
type Summary struct {
	Sent         int
	Received     int
	ParseErrors  int
	InsertErrors int
	NumSources   int
	SkipRows     int
}

// Coordinator spawns one Feeder and NumProcesses-1 Workers, drains
// their Events to completion, and persists failed rows to errSink,
// per spec.md §4.11.
type Coordinator struct {
	cfg     Config
	meter   *ratemeter.Meter
	errSink ErrorSink

	newWorker func(inbound *ringchan.Link[WorkItem], outbound *ringchan.Link[Event]) *Worker
}

// NewCoordinator builds a Coordinator. newWorker constructs one Worker
// per spawned inbound/outbound Link pair, letting callers bind the
// session pool, converter, token map, and retry policy once.
func NewCoordinator(cfg Config, meter *ratemeter.Meter, errSink ErrorSink, newWorker func(*ringchan.Link[WorkItem], *ringchan.Link[Event]) *Worker) *Coordinator {
	return &Coordinator{cfg: cfg, meter: meter, errSink: errSink, newWorker: newWorker}
}

// Run feeds rows (from csvio.FilesReader.Rows or csvio.PipeReader.Rows)
// through the worker pool until the feeder reports completion and
// every row it sent has been accounted for, an error threshold trips,
// or a child dies, per spec.md §4.11 step 2.
func (c *Coordinator) Run(ctx context.Context, rows <-chan csvio.Row, rowsErr <-chan error, numSources, skipRows int) (Summary, error) {
	numWorkers := c.cfg.NumProcesses - 1
	if numWorkers < 1 {
		numWorkers = 1
	}

	workerIn := make([]*ringchan.Link[WorkItem], numWorkers)
	workerOut := make([]*ringchan.Link[Event], numWorkers)
	workers := make([]*Worker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		workerIn[i] = ringchan.NewLink[WorkItem](4)
		workerOut[i] = ringchan.NewLink[Event](16)
		workers[i] = c.newWorker(workerIn[i], workerOut[i])
	}

	feederOut := ringchan.NewLink[Event](4)
	feederPoison := ringchan.NewLink[struct{}](1)
	feeder := NewFeeder(feederOut, workerIn, feederPoison, c.cfg.ChunkSize, c.cfg.IngestRate, c.meter)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	childDone := make(chan struct{})
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSafely(runCtx, w.Run)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		feeder.Run(runCtx, rows, rowsErr, numSources, skipRows)
	}()
	go func() {
		wg.Wait()
		close(childDone)
	}()

	group := ringchan.NewGroup(append(append([]*ringchan.Link[Event]{}, workerOut...), feederOut))

	var summary Summary
	summary.Sent = -1 // unknown until the feeder reports FeederDone

	done := func() bool {
		return summary.Sent >= 0 && summary.Received >= summary.Sent
	}

	var fatalErr error
	for !done() && fatalErr == nil {
		select {
		case <-childDone:
			if !done() {
				fatalErr = fmt.Errorf("import child pool exited before all rows were accounted for")
			}
		default:
		}
		if fatalErr != nil {
			break
		}

		_, ev, ok := group.Recv(100 * time.Millisecond)
		if !ok {
			continue
		}

		if ev.FatalErr != nil {
			fatalErr = ev.FatalErr
			break
		}
		summary.Received += ev.Imported
		if ev.TaskErr != nil {
			if err := c.recordTaskError(ev.TaskErr, &summary); err != nil {
				fatalErr = err
				break
			}
			if errorfile.Exceeded(summary.ParseErrors, c.cfg.MaxParseErrors) || errorfile.Exceeded(summary.InsertErrors, c.cfg.MaxInsertErrors) {
				fatalErr = fmt.Errorf("import aborted: %d parse errors, %d insert errors exceeded threshold", summary.ParseErrors, summary.InsertErrors)
				break
			}
		}
		if ev.FeederDone != nil {
			summary.Sent = ev.FeederDone.Sent
			summary.NumSources = ev.FeederDone.NumSources
			summary.SkipRows = ev.FeederDone.SkipRows
		}
	}

	cancel()
	for _, in := range workerIn {
		in.Send(WorkItem{Chunk: nil})
	}
	feederPoison.Send(struct{}{})
	<-childDone

	if fatalErr != nil {
		return summary, fatalErr
	}
	return summary, nil
}

func (c *Coordinator) recordTaskError(te *TaskError, summary *Summary) error {
	if errorfile.IsParseError(te.Kind) {
		summary.ParseErrors += len(te.Rows)
	} else {
		summary.InsertErrors += len(te.Rows)
	}
	if te.Final {
		for _, row := range te.Rows {
			if err := c.errSink.WriteRow(row); err != nil {
				return fmt.Errorf("persist failed row: %w", err)
			}
		}
	}
	return nil
}

func runSafely(ctx context.Context, fn func(context.Context) error) {
	defer func() { recover() }()
	_ = fn(ctx)
}
