// Package errorfile persists rows that failed import so a later run
// can be pointed back at just what didn't make it, per spec.md §4.12
// and original_source copyutil.py's ImportErrorHandler.
package errorfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sandinv/ringcopy/internal/csvio"
)

// File appends failed rows to one CSV file for the life of a run.
// Safe for concurrent WriteRow calls.
type File struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// Open rotates any pre-existing file at path aside (renamed with a
// .YYYYMMDD_HHMMSS suffix, per copyutil.py's ImportErrorHandler.__init__)
// and opens a fresh append-only file at path.
func Open(path string, now func() time.Time) (*File, error) {
	if now == nil {
		now = time.Now
	}
	if _, err := os.Stat(path); err == nil {
		rotated := path + now().Format(".20060102_150405")
		if err := os.Rename(path, rotated); err != nil {
			return nil, fmt.Errorf("rotate existing error file %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat error file %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error file %q: %w", path, err)
	}
	return &File{f: f, w: csv.NewWriter(f)}, nil
}

// WriteRow appends one failed row, flushing immediately so a crash
// mid-run doesn't lose already-recorded failures.
func (e *File) WriteRow(row csvio.Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.w.Write([]string(row)); err != nil {
		return err
	}
	e.w.Flush()
	return e.w.Error()
}

// Close flushes and releases the underlying file.
func (e *File) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		e.f.Close()
		return err
	}
	return e.f.Close()
}

// IsParseError reports whether a task error kind/name is treated as
// an unrecoverable parse error rather than an insert error, per
// copyutil.py's ImportTaskError.is_parse_error: value, type, parse,
// index, and read errors are never retried and count against
// maxparseerrors rather than maxinserterrors.
func IsParseError(kind string) bool {
	for _, prefix := range []string{"ValueError", "TypeError", "ParseError", "IndexError", "ReadError"} {
		if strings.HasPrefix(kind, prefix) {
			return true
		}
	}
	return false
}

// Exceeded reports whether count has exceeded max, where a negative
// max disables the check (copyutil.py's `count > max >= 0` guard).
func Exceeded(count, max int) bool {
	return max >= 0 && count > max
}
