package importcoord

import (
	"context"

	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/ratemeter"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

// Feeder reads CSV rows from a pull-based row channel (built by
// csvio.FilesReader.Rows or csvio.PipeReader.Rows) and fans them out as
// fixed-size chunks across the worker pool, throttled by the
// configured ingest rate, per spec.md §4.9.
type Feeder struct {
	toCoordinator *ringchan.Link[Event]
	toWorkers     []*ringchan.Link[WorkItem]
	poison        *ringchan.Link[struct{}]
	chunkSize     int
	ingestRate    int
	meter         *ratemeter.Meter

	nextID int
	sent   int
}

// NewFeeder builds a Feeder.
func NewFeeder(toCoordinator *ringchan.Link[Event], toWorkers []*ringchan.Link[WorkItem], poison *ringchan.Link[struct{}], chunkSize, ingestRate int, meter *ratemeter.Meter) *Feeder {
	return &Feeder{
		toCoordinator: toCoordinator, toWorkers: toWorkers, poison: poison,
		chunkSize: chunkSize, ingestRate: ingestRate, meter: meter,
	}
}

// Run drains rows until the channel closes (or rowsErr reports a
// failure), dispatching chunksize-capped, rate-limited chunks to each
// worker channel in round robin, then reports FeedingProcessResult and
// waits for the coordinator's poison sentinel before returning.
func (f *Feeder) Run(ctx context.Context, rows <-chan csvio.Row, rowsErr <-chan error, numSources, skipRows int) {
	workerIdx := 0
	open := true

	for open {
		select {
		case <-ctx.Done():
			open = false
			continue
		default:
		}

		budget := f.ingestRate - int(f.meter.CurrentWindowRecords())
		if budget <= 0 {
			f.meter.MaybeUpdate(true) // yields until the next rate window
			continue
		}
		limit := budget
		if f.chunkSize < limit {
			limit = f.chunkSize
		}

		batch := make([]csvio.Row, 0, limit)
		for len(batch) < limit {
			select {
			case row, ok := <-rows:
				if !ok {
					open = false
				} else {
					batch = append(batch, row)
				}
			case <-ctx.Done():
				open = false
			}
			if !open {
				break
			}
		}

		if len(batch) > 0 {
			f.meter.Increment(int64(len(batch)))
			f.nextID++
			chunk := &Chunk{ID: f.nextID, Rows: batch, Imported: 0, Attempts: 1}
			f.sent += len(batch)
			f.toWorkers[workerIdx].Send(WorkItem{Chunk: chunk})
			workerIdx = (workerIdx + 1) % len(f.toWorkers)
		}
	}

	if err := drainErr(rowsErr); err != nil {
		f.toCoordinator.Send(Event{TaskErr: &TaskError{Kind: "ParseError", Msg: err.Error()}})
	}

	f.toCoordinator.Send(Event{FeederDone: &FeedingProcessResult{Sent: f.sent, NumSources: numSources, SkipRows: skipRows}})
	waitForPoison(f.poison)
}

// waitForPoison blocks until the coordinator's sentinel Link delivers a
// value or is closed; either way the feeder is done waiting.
func waitForPoison(link *ringchan.Link[struct{}]) {
	<-link.Chan()
}

func drainErr(errc <-chan error) error {
	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}
