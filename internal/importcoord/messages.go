// Package importcoord implements the IMPORT half of the bridge:
// spec.md §4.9-§4.11's feeder, worker pool, and coordinator. Grounded
// on the teacher's internal/benchmark.Runner (worker channels fanned
// out, one shared results channel fanned in), generalized from a
// single fixed query shape to chunked, ring-routed batches of
// converted rows.
package importcoord

import "github.com/sandinv/ringcopy/internal/csvio"

// Chunk is a bundle of raw CSV rows handed from the feeder to a
// worker, per spec.md's glossary entry and §4.9.
type Chunk struct {
	ID       int
	Rows     []csvio.Row
	Imported int
	Attempts int
}

// WorkItem is what the coordinator/feeder send on a worker's inbound
// Link: either a Chunk to process, or (when Chunk is nil) the poison
// sentinel telling the worker to exit.
type WorkItem struct {
	Chunk *Chunk
}

// TaskError is spec.md §4.10/§4.12's ImportTaskError: a batched,
// per-message count of rows that failed the same way.
type TaskError struct {
	Kind  string // "ParseError" or "InsertError"
	Msg   string
	Rows  []csvio.Row
	Final bool // rows go to the error file: always for ParseError, for InsertError once maxattempts is exhausted
}

// FeedingProcessResult is the feeder's completion report to the
// coordinator, per spec.md §4.9.
type FeedingProcessResult struct {
	Sent       int
	NumSources int
	SkipRows   int
}

// Event is the tagged union every child (feeder or worker) reports to
// the coordinator on its outbound Link.
type Event struct {
	Imported   int                   // ImportProcessResult(n)
	TaskErr    *TaskError            // ImportTaskError
	FatalErr   error                 // WorkerError: aborts the run
	FeederDone *FeedingProcessResult // feeder's end-of-input report
}
