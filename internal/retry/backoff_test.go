package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestDecideGivesUpAtMaxAttempts(t *testing.T) {
	p := &Policy{MaxAttempts: 3, Rand: rand.New(rand.NewSource(1))}
	outcome, delay := p.Decide(3)
	if outcome != GiveUp {
		t.Errorf("Decide(3) outcome = %v, want GiveUp", outcome)
	}
	if delay != 0 {
		t.Errorf("Decide(3) delay = %v, want 0", delay)
	}
}

func TestDecideRetriesWithinBound(t *testing.T) {
	p := &Policy{MaxAttempts: 5, Rand: rand.New(rand.NewSource(1))}
	for retryNum := 0; retryNum < 5; retryNum++ {
		outcome, delay := p.Decide(retryNum)
		if outcome != Retry {
			t.Fatalf("Decide(%d) outcome = %v, want Retry", retryNum, outcome)
		}
		maxDelay := time.Duration(1<<uint(retryNum+1)) * time.Second
		if delay < 0 || delay >= maxDelay {
			t.Errorf("Decide(%d) delay = %v, want in [0, %v)", retryNum, delay, maxDelay)
		}
	}
}

func TestAwaitCallsInjectedSleep(t *testing.T) {
	var slept time.Duration
	p := &Policy{Sleep: func(d time.Duration) { slept = d }}
	p.Await(2 * time.Second)
	if slept != 2*time.Second {
		t.Errorf("slept = %v, want 2s", slept)
	}
}

func TestAwaitSkipsNonPositiveDelay(t *testing.T) {
	called := false
	p := &Policy{Sleep: func(time.Duration) { called = true }}
	p.Await(0)
	if called {
		t.Error("Await(0) should not invoke Sleep")
	}
}
