package ringchan

import (
	"reflect"
	"time"
)

// Group lets a parent receive from any of several child Links without
// starving any one of them for longer than timeout, per spec.md §4.1
// ("receive is fair-enough ... no starvation for more than timeout").
// Readiness is multiplexed via reflect.Select over the member channels
// rather than micro-polling, since Go's select already gives us the
// platform's readiness multiplexing for free.
type Group[T any] struct {
	links []*Link[T]
}

// NewGroup wraps an existing slice of Links for fan-in receive.
func NewGroup[T any](links []*Link[T]) *Group[T] {
	return &Group[T]{links: links}
}

// Recv blocks up to timeout for a message from any member Link,
// returning the source index and the message with ok=true. On timeout,
// or when the Group has no member Links, it returns index -1 and
// ok=false. When a member Link has been closed and drained, it returns
// that member's index and ok=false.
func (g *Group[T]) Recv(timeout time.Duration) (idx int, v T, ok bool) {
	live := make([]int, 0, len(g.links))
	cases := make([]reflect.SelectCase, 0, len(g.links)+1)
	for i, l := range g.links {
		if l == nil {
			continue
		}
		live = append(live, i)
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(l.Chan()),
		})
	}
	if len(cases) == 0 {
		return -1, v, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})

	chosen, recv, recvOK := reflect.Select(cases)
	if chosen == len(cases)-1 {
		return -1, v, false // timed out
	}
	if !recvOK {
		return live[chosen], v, false // that child's Link closed
	}
	return live[chosen], recv.Interface().(T), true
}

// CloseAll closes every member Link; safe to call more than once.
func (g *Group[T]) CloseAll() {
	for _, l := range g.links {
		if l != nil {
			l.Close()
		}
	}
}
