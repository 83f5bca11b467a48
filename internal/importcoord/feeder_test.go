package importcoord

import (
	"context"
	"testing"
	"time"

	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/ratemeter"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

func TestFeederDispatchesChunksRoundRobinAndReportsDone(t *testing.T) {
	out := ringchan.NewLink[Event](4)
	w1 := ringchan.NewLink[WorkItem](4)
	w2 := ringchan.NewLink[WorkItem](4)
	poison := ringchan.NewLink[struct{}](1)
	meter, err := ratemeter.New(time.Hour, "")
	if err != nil {
		t.Fatal(err)
	}
	defer meter.Close()

	feeder := NewFeeder(out, []*ringchan.Link[WorkItem]{w1, w2}, poison, 2, 1_000_000, meter)

	rows := make(chan csvio.Row, 8)
	errc := make(chan error, 1)
	for _, r := range []csvio.Row{{"1"}, {"2"}, {"3"}} {
		rows <- r
	}
	close(rows)
	errc <- nil
	close(errc)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		feeder.Run(ctx, rows, errc, 1, 0)
		close(done)
	}()

	item1, ok := w1.Recv(time.Second)
	if !ok || item1.Chunk == nil || len(item1.Chunk.Rows) != 2 {
		t.Fatalf("worker 1 chunk = %+v, ok=%v", item1, ok)
	}
	item2, ok := w2.Recv(time.Second)
	if !ok || item2.Chunk == nil || len(item2.Chunk.Rows) != 1 {
		t.Fatalf("worker 2 chunk = %+v, ok=%v", item2, ok)
	}

	ev, ok := out.Recv(time.Second)
	if !ok || ev.FeederDone == nil {
		t.Fatalf("expected FeederDone event, got %+v ok=%v", ev, ok)
	}
	if ev.FeederDone.Sent != 3 || ev.FeederDone.NumSources != 1 {
		t.Errorf("FeederDone = %+v, want Sent=3 NumSources=1", ev.FeederDone)
	}

	poison.Send(struct{}{})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("feeder did not exit after poison")
	}
}
