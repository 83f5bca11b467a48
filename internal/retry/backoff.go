// Package retry implements the exponential-uniform backoff policy
// spec.md §4.3 applies to driver-level read and write timeouts.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Outcome is the retry decision returned to the caller's query
// execution loop.
type Outcome int

const (
	// Retry means: sleep, then resubmit at the same consistency level.
	Retry Outcome = iota
	// GiveUp means: max attempts exhausted, surface the timeout as a
	// final InsertError/RangeError.
	GiveUp
)

// Policy decides RETRY vs GIVE_UP on a driver timeout, per spec.md
// §4.3. It applies identically to read and write timeouts. Sleep is
// swappable in tests (a no-op, or one that records durations) rather
// than calling time.Sleep directly.
type Policy struct {
	MaxAttempts int
	Sleep       func(time.Duration)
	Rand        *rand.Rand
}

// NewPolicy builds a Policy that sleeps for real and draws delays from
// a process-seeded random source.
func NewPolicy(maxAttempts int) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		Sleep:       time.Sleep,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Decide implements original_source copyutil.py's
// ExpBackoffRetryPolicy.backoff: once retryNum reaches MaxAttempts,
// give up; otherwise sleep a uniformly random duration in
// [0, 2^(retryNum+1)) seconds and retry.
func (p *Policy) Decide(retryNum int) (Outcome, time.Duration) {
	if retryNum >= p.MaxAttempts {
		return GiveUp, 0
	}
	upperBound := int64(math.Pow(2, float64(retryNum+1)))
	delaySeconds := p.Rand.Int63n(upperBound)
	return Retry, time.Duration(delaySeconds) * time.Second
}

// Await sleeps for d using the policy's injectable Sleep function, so
// tests never actually block.
func (p *Policy) Await(d time.Duration) {
	if d <= 0 {
		return
	}
	p.Sleep(d)
}
