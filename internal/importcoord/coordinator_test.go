package importcoord

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/ratemeter"
	"github.com/sandinv/ringcopy/internal/retry"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

type fakeErrorSink struct{ rows []csvio.Row }

func (s *fakeErrorSink) WriteRow(row csvio.Row) error {
	s.rows = append(s.rows, row)
	return nil
}

func TestCoordinatorEndToEndSuccess(t *testing.T) {
	session := &fakeSession{}
	pool := newTestPool(session)
	converter := testConverter()
	tm := degenerateTM()
	policy := retry.NewPolicy(3)
	meter, err := ratemeter.New(time.Hour, "")
	if err != nil {
		t.Fatal(err)
	}
	defer meter.Close()
	errSink := &fakeErrorSink{}

	wcfg := WorkerConfig{
		Keyspace: "ks", Table: "t", Columns: []string{"id", "name"},
		ColumnTypes:        []convert.ColumnType{{Kind: convert.KindInt}, {Kind: convert.KindText}},
		PKIndexes:          []int{0},
		PreparedStatements: true,
		MaxBatchSize:       20,
		MinBatchSize:       10,
		PKBytes:            idBytes,
	}
	newWorker := func(inbound *ringchan.Link[WorkItem], outbound *ringchan.Link[Event]) *Worker {
		return NewWorker(wcfg, pool, converter, tm, policy, inbound, outbound)
	}

	coord := NewCoordinator(Config{
		NumProcesses: 3, ChunkSize: 10, IngestRate: 1_000_000,
		MaxParseErrors: -1, MaxInsertErrors: -1,
	}, meter, errSink, newWorker)

	rowsCh := make(chan csvio.Row, 8)
	errCh := make(chan error, 1)
	for _, r := range []csvio.Row{{"1", "alice"}, {"2", "bob"}, {"3", "carol"}} {
		rowsCh <- r
	}
	close(rowsCh)
	errCh <- nil
	close(errCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := coord.Run(ctx, rowsCh, errCh, 1, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Sent != 3 || summary.Received != 3 {
		t.Errorf("summary = %+v, want Sent=3 Received=3", summary)
	}
	if summary.ParseErrors != 0 || summary.InsertErrors != 0 {
		t.Errorf("summary = %+v, want no errors", summary)
	}
	if session.writeCount() != 3 {
		t.Errorf("writes = %d, want 3", session.writeCount())
	}
}

func TestCoordinatorRecordsFailedRowsToErrorSink(t *testing.T) {
	session := &fakeSession{writeErr: func(args []any) error { return errors.New("insert timeout") }}
	pool := newTestPool(session)
	converter := testConverter()
	tm := degenerateTM()
	policy := &retry.Policy{MaxAttempts: 1, Sleep: func(time.Duration) {}, Rand: rand.New(rand.NewSource(1))}
	meter, err := ratemeter.New(time.Hour, "")
	if err != nil {
		t.Fatal(err)
	}
	defer meter.Close()
	errSink := &fakeErrorSink{}

	wcfg := WorkerConfig{
		Keyspace: "ks", Table: "t", Columns: []string{"id"},
		ColumnTypes:        []convert.ColumnType{{Kind: convert.KindInt}},
		PKIndexes:          []int{0},
		PreparedStatements: true,
		MaxBatchSize:       20,
		MinBatchSize:       10,
		PKBytes:            idBytes,
	}
	newWorker := func(inbound *ringchan.Link[WorkItem], outbound *ringchan.Link[Event]) *Worker {
		return NewWorker(wcfg, pool, converter, tm, policy, inbound, outbound)
	}

	coord := NewCoordinator(Config{
		NumProcesses: 2, ChunkSize: 10, IngestRate: 1_000_000,
		MaxParseErrors: -1, MaxInsertErrors: -1,
	}, meter, errSink, newWorker)

	rowsCh := make(chan csvio.Row, 2)
	errCh := make(chan error, 1)
	rowsCh <- csvio.Row{"1"}
	close(rowsCh)
	errCh <- nil
	close(errCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := coord.Run(ctx, rowsCh, errCh, 1, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.InsertErrors != 1 {
		t.Errorf("InsertErrors = %d, want 1", summary.InsertErrors)
	}
	if len(errSink.rows) != 1 || errSink.rows[0][0] != "1" {
		t.Errorf("errSink.rows = %+v, want [[1]]", errSink.rows)
	}
}

func TestCoordinatorAbortsWhenParseErrorThresholdExceeded(t *testing.T) {
	session := &fakeSession{}
	pool := newTestPool(session)
	converter := testConverter()
	tm := degenerateTM()
	policy := retry.NewPolicy(3)
	meter, err := ratemeter.New(time.Hour, "")
	if err != nil {
		t.Fatal(err)
	}
	defer meter.Close()
	errSink := &fakeErrorSink{}

	wcfg := WorkerConfig{
		Keyspace: "ks", Table: "t", Columns: []string{"id", "name"},
		ColumnTypes:        []convert.ColumnType{{Kind: convert.KindInt}, {Kind: convert.KindText}},
		PKIndexes:          []int{0},
		PreparedStatements: true,
		MaxBatchSize:       20,
		MinBatchSize:       10,
		PKBytes:            idBytes,
	}
	newWorker := func(inbound *ringchan.Link[WorkItem], outbound *ringchan.Link[Event]) *Worker {
		return NewWorker(wcfg, pool, converter, tm, policy, inbound, outbound)
	}

	coord := NewCoordinator(Config{
		NumProcesses: 2, ChunkSize: 10, IngestRate: 1_000_000,
		MaxParseErrors: 0, MaxInsertErrors: -1,
	}, meter, errSink, newWorker)

	rowsCh := make(chan csvio.Row, 2)
	errCh := make(chan error, 1)
	rowsCh <- csvio.Row{"1", "alice", "extra"} // wrong column count: parse error
	close(rowsCh)
	errCh <- nil
	close(errCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = coord.Run(ctx, rowsCh, errCh, 1, 0)
	if err == nil {
		t.Fatal("expected the run to abort once maxparseerrors was exceeded")
	}
}
