package driver

import (
	"context"
	"fmt"
	"sync"
)

// InFlightCounter is implemented by sessions that report their current
// in-flight request count, used by SessionPool.LeastLoaded and the
// export worker's maxrequests throttle.
type InFlightCounter interface {
	InFlight() int
}

// DialFunc opens a new Session to host. Tests inject a fake in place of
// the real Dial (database/sql + lib/pq) to avoid touching the network.
type DialFunc func(ctx context.Context, connString, host string) (Session, error)

// SessionPool lazily creates and caches one Session per host, shutting
// them all down on Close. Every holder of the pool shares its sessions:
// the export and import coordinators hand one pool to all of their
// workers, and sessions stay open until the pool's owner calls Close.
type SessionPool struct {
	mu       sync.Mutex
	connTmpl string
	dial     DialFunc
	sessions map[string]Session
}

// NewSessionPool builds a pool that dials connTmpl (a connection
// string with a %s host placeholder) on first use per host, using the
// real sqlsession Dial.
func NewSessionPool(connTmpl string) *SessionPool {
	return NewSessionPoolWithDialer(connTmpl, func(ctx context.Context, connString, host string) (Session, error) {
		return Dial(ctx, connString, host)
	})
}

// NewSessionPoolWithDialer builds a pool using a caller-supplied dial
// function, letting tests substitute a fake Session.
func NewSessionPoolWithDialer(connTmpl string, dial DialFunc) *SessionPool {
	return &SessionPool{connTmpl: connTmpl, dial: dial, sessions: map[string]Session{}}
}

// Get returns the cached session for host, dialing one if needed.
func (p *SessionPool) Get(ctx context.Context, host string) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[host]; ok {
		return s, nil
	}
	connString := fmt.Sprintf(p.connTmpl, host)
	s, err := p.dial(ctx, connString, host)
	if err != nil {
		return nil, err
	}
	p.sessions[host] = s
	return s, nil
}

// LeastLoaded returns the session among candidates with the fewest
// in-flight requests, dialing sessions as needed, per spec.md §4.7's
// "picks the replica with the fewest active requests."
func (p *SessionPool) LeastLoaded(ctx context.Context, candidates []string) (Session, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate replicas")
	}
	var best Session
	bestLoad := -1
	for _, host := range candidates {
		s, err := p.Get(ctx, host)
		if err != nil {
			continue
		}
		load := 0
		if c, ok := s.(InFlightCounter); ok {
			load = c.InFlight()
		}
		if best == nil || load < bestLoad {
			best, bestLoad = s, load
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no reachable replica among %v", candidates)
	}
	return best, nil
}

// TotalInFlight sums in-flight requests across every session this pool
// has opened, for the worker's maxrequests throttle.
func (p *SessionPool) TotalInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, s := range p.sessions {
		if c, ok := s.(InFlightCounter); ok {
			total += c.InFlight()
		}
	}
	return total
}

// Close shuts down every session in the pool.
func (p *SessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, s := range p.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
