package exportcoord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/driver"
	"github.com/sandinv/ringcopy/internal/ring"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

type fakeStatement struct{ text string }

func (s *fakeStatement) Text() string { return s.text }

type fakeStream struct {
	pages [][]driver.Row
	idx   int
	err   error
}

func (s *fakeStream) Next(ctx context.Context) ([]driver.Row, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	if s.idx >= len(s.pages) {
		return nil, false, nil
	}
	page := s.pages[s.idx]
	s.idx++
	return page, s.idx < len(s.pages), nil
}

type fakeSession struct {
	stream *fakeStream
}

func (f *fakeSession) Prepare(ctx context.Context, stmt string) (driver.Statement, error) {
	return &fakeStatement{text: stmt}, nil
}
func (f *fakeSession) ExecuteAsync(ctx context.Context, stmt driver.Statement, args []any, opts driver.ExecOptions) (driver.ResultStream, error) {
	return f.stream, nil
}
func (f *fakeSession) ExecuteWrite(ctx context.Context, stmt driver.Statement, args []any, opts driver.ExecOptions) error {
	return nil
}
func (f *fakeSession) Close() error  { return nil }
func (f *fakeSession) InFlight() int { return 0 }

func newTestPool(stream *fakeStream) *driver.SessionPool {
	return driver.NewSessionPoolWithDialer("tmpl", func(ctx context.Context, connString, host string) (driver.Session, error) {
		return &fakeSession{stream: stream}, nil
	})
}

func TestWorkerStreamsRowsThenDone(t *testing.T) {
	stream := &fakeStream{pages: [][]driver.Row{
		{{int64(1), "a"}, {int64(2), "b"}},
		{{int64(3), "c"}},
	}}
	pool := newTestPool(stream)
	converter := convert.New(convert.Config{NullVal: "", TrueStr: "True", FalseStr: "False", DecimalSep: "."})

	inbound := ringchan.NewLink[Assignment](1)
	outbound := ringchan.NewLink[Result](8)
	cfg := WorkerConfig{
		Keyspace: "ks", Table: "t", Columns: []string{"id", "name"},
		ColumnTypes: []convert.ColumnType{{Kind: convert.KindInt}, {Kind: convert.KindText}},
		PKColumn:    "id", MaxRequests: 6, PageSize: 1000,
	}
	w := NewWorker(cfg, pool, converter, inbound, outbound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	rng := ring.TokenRange{}
	inbound.Send(Assignment{Range: rng, State: &ring.RangeState{Hosts: []string{"h1"}}})

	var rowsSeen int
	done := false
	for !done {
		res, ok := outbound.Recv(time.Second)
		if !ok {
			t.Fatal("timed out waiting for result")
		}
		if res.Rows != nil {
			rowsSeen += len(res.Rows)
		}
		if res.Done {
			done = true
		}
	}
	if rowsSeen != 3 {
		t.Errorf("rowsSeen = %d, want 3", rowsSeen)
	}
}

func TestWorkerReportsRangeError(t *testing.T) {
	stream := &fakeStream{err: errors.New("boom")}
	pool := newTestPool(stream)
	converter := convert.New(convert.Config{NullVal: "", TrueStr: "True", FalseStr: "False", DecimalSep: "."})

	inbound := ringchan.NewLink[Assignment](1)
	outbound := ringchan.NewLink[Result](8)
	cfg := WorkerConfig{Keyspace: "ks", Table: "t", Columns: []string{"id"}, ColumnTypes: []convert.ColumnType{{Kind: convert.KindInt}}, PKColumn: "id", MaxRequests: 6, PageSize: 1000}
	w := NewWorker(cfg, pool, converter, inbound, outbound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	inbound.Send(Assignment{Range: ring.TokenRange{}, State: &ring.RangeState{Hosts: []string{"h1"}}})

	res, ok := outbound.Recv(time.Second)
	if !ok {
		t.Fatal("timed out waiting for result")
	}
	if res.Err == nil {
		t.Fatal("expected range error")
	}
}
