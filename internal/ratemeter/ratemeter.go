// Package ratemeter implements the windowed rate accounting described
// in spec.md §4.2: a smoothed exponential average of per-window rates,
// with an optional progress line to stdout and an append-only log
// file.
package ratemeter

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Meter tracks {start, last_checkpoint, current_rate, current_record,
// total_records, update_interval, log_file} from spec.md §3. Safe for
// concurrent Increment calls, mirroring the teacher's
// internal/stats.Statistics mutex-guarded counters.
type Meter struct {
	mu sync.Mutex

	start          time.Time
	lastCheckpoint time.Time
	updateInterval time.Duration

	currentRate   float64
	currentRecord int64
	totalRecords  int64

	logFile io.WriteCloser
	now     func() time.Time
}

// New creates a Meter. logPath == "" disables file logging, per
// spec.md §6's ratefile default.
func New(updateInterval time.Duration, logPath string) (*Meter, error) {
	m := &Meter{
		updateInterval: updateInterval,
		now:            time.Now,
	}
	m.start = m.now()
	m.lastCheckpoint = m.start

	if logPath != "" {
		// Open once, append-only, for the life of the run: the source
		// never rotates this file mid-run (DESIGN.md Open Question 2).
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open rate log %q: %w", logPath, err)
		}
		m.logFile = f
	}
	return m, nil
}

// Close releases the log file, if any.
func (m *Meter) Close() error {
	if m.logFile != nil {
		return m.logFile.Close()
	}
	return nil
}

// Increment adds n to the current window's record count.
func (m *Meter) Increment(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentRecord += n
}

// MaybeUpdate rolls the current window into totals once update_interval
// has elapsed, smoothing current_rate as the average of the old and
// new rate (or just the new rate on the first window). When sleep is
// true and the window hasn't elapsed yet, it sleeps for the remaining
// time to help throttle the caller, per spec.md §4.2.
func (m *Meter) MaybeUpdate(sleep bool) {
	m.mu.Lock()
	now := m.now()
	elapsed := now.Sub(m.lastCheckpoint)
	if elapsed < m.updateInterval {
		remaining := m.updateInterval - elapsed
		m.mu.Unlock()
		if sleep && remaining > 0 {
			time.Sleep(remaining)
		}
		return
	}

	newRate := float64(m.currentRecord) / elapsed.Seconds()
	if m.currentRate > 0 {
		m.currentRate = (m.currentRate + newRate) / 2
	} else {
		m.currentRate = newRate
	}
	m.totalRecords += m.currentRecord
	record, total, rate := m.currentRecord, m.totalRecords, m.currentRate
	m.currentRecord = 0
	m.lastCheckpoint = now
	m.mu.Unlock()

	m.logProgress(record, total, rate)
}

// CurrentWindowRecords returns the record count accumulated in the
// window since the last rollover, used by the import feeder's
// `ingestrate - meter.current_record` budget check (spec.md §4.9).
func (m *Meter) CurrentWindowRecords() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRecord
}

// Total returns the monotonic count of records accounted for so far,
// including any not-yet-rolled-over current window.
func (m *Meter) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalRecords + m.currentRecord
}

// Rate returns the last smoothed rate, in records/second.
func (m *Meter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRate
}

func (m *Meter) logProgress(windowRecords, total int64, rate float64) {
	line := fmt.Sprintf("Processed %s rows; Rate: %s rows/s (total %s)\n",
		humanize.Comma(windowRecords), humanize.Comma(int64(rate)), humanize.Comma(total))
	fmt.Print(line)
	if m.logFile != nil {
		_, _ = io.WriteString(m.logFile, line)
	}
}
