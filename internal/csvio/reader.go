// Package csvio streams CSV rows in and out of the bridge, grounded on
// the teacher's internal/parser.CSVParser (line-by-line encoding/csv
// reading, strict-vs-lenient error handling) and generalized from
// "one record shape, one hash-routed destination" to "arbitrary
// columns, glob-expanded multi-file sources, skiprows/maxrows limits."
package csvio

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Row is one CSV record as raw string fields.
type Row []string

// SourceOptions configures how a FilesReader walks its inputs.
type SourceOptions struct {
	Header   bool // first line of each file is a header, skipped
	SkipRows int  // rows to discard after the header, counted across all files combined
	MaxRows  int  // stop after this many data rows; <=0 means unbounded
}

// FilesReader streams rows from one or more comma-separated, glob-expandable
// file paths, in the teacher's "line by line, minimum memory" style.
type FilesReader struct {
	paths   []string
	opts    SourceOptions
	files   []string
	skipped int
	emitted int
}

// NewFilesReader expands pathSpec (comma-separated glob patterns, per
// spec.md §6's `file`) into a concrete file list.
func NewFilesReader(pathSpec string, opts SourceOptions) (*FilesReader, error) {
	var files []string
	for _, part := range strings.Split(pathSpec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		matches, err := filepath.Glob(part)
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", part, err)
		}
		if len(matches) == 0 {
			matches = []string{part} // let the later Open report "not found"
		}
		files = append(files, matches...)
	}
	return &FilesReader{paths: files, opts: opts}, nil
}

// NumSources reports how many files this reader will iterate.
func (r *FilesReader) NumSources() int { return len(r.paths) }

// ReadAll streams every row across every source file to fn, honoring
// header/skiprows/maxrows, stopping early if fn returns an error or ctx
// is cancelled. openFn is injected so tests can supply in-memory readers
// instead of real files.
func (r *FilesReader) ReadAll(ctx context.Context, openFn func(path string) (io.ReadCloser, error), fn func(Row) error) error {
	for _, path := range r.paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := openFn(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		err = r.readOne(ctx, f, fn)
		f.Close()
		if err != nil {
			return err
		}
		if r.opts.MaxRows > 0 && r.emitted >= r.opts.MaxRows {
			break
		}
	}
	return nil
}

func (r *FilesReader) readOne(ctx context.Context, f io.Reader, fn func(Row) error) error {
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	if r.opts.Header {
		if _, err := cr.Read(); err != nil && err != io.EOF {
			return fmt.Errorf("read header: %w", err)
		}
	}

	for {
		if r.opts.MaxRows > 0 && r.emitted >= r.opts.MaxRows {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}

		if r.skipped < r.opts.SkipRows {
			r.skipped++
			continue
		}

		if err := fn(Row(rec)); err != nil {
			return err
		}
		r.emitted++
	}
}

// Rows runs ReadAll on a background goroutine and streams each row onto
// a channel, so pull-based consumers (the import feeder's chunking
// loop) don't have to invert their own control flow around ReadAll's
// push-style callback. The returned error channel receives exactly one
// value (nil on a clean EOF) once the row channel has been closed.
func (r *FilesReader) Rows(ctx context.Context, openFn func(path string) (io.ReadCloser, error)) (<-chan Row, <-chan error) {
	rows := make(chan Row, 256)
	errc := make(chan error, 1)
	go func() {
		defer close(rows)
		err := r.ReadAll(ctx, openFn, func(row Row) error {
			select {
			case rows <- row:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errc <- err
		close(errc)
	}()
	return rows, errc
}

// PipeReader consumes rows forwarded by the coordinator from stdin
// (spec.md §4.9's `\.`-terminated COPY FROM STDIN protocol), rather
// than opening files itself.
type PipeReader struct {
	lines   <-chan string
	opts    SourceOptions
	skipped int
	emitted int
}

// NewPipeReader wraps a channel of raw lines (already split from stdin
// by the coordinator) as a row source.
func NewPipeReader(lines <-chan string, opts SourceOptions) *PipeReader {
	return &PipeReader{lines: lines, opts: opts}
}

// ReadAll streams every row from the pipe to fn, honoring the same
// header/skiprows/maxrows rules as FilesReader.
func (r *PipeReader) ReadAll(ctx context.Context, fn func(Row) error) error {
	headerSeen := !r.opts.Header
	for {
		if r.opts.MaxRows > 0 && r.emitted >= r.opts.MaxRows {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-r.lines:
			if !ok {
				return nil
			}
			if !headerSeen {
				headerSeen = true
				continue
			}
			rec, err := csv.NewReader(strings.NewReader(line)).Read()
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			if r.skipped < r.opts.SkipRows {
				r.skipped++
				continue
			}
			if err := fn(Row(rec)); err != nil {
				return err
			}
			r.emitted++
		}
	}
}

// Rows runs ReadAll on a background goroutine and streams each row onto
// a channel; see FilesReader.Rows.
func (r *PipeReader) Rows(ctx context.Context) (<-chan Row, <-chan error) {
	rows := make(chan Row, 256)
	errc := make(chan error, 1)
	go func() {
		defer close(rows)
		err := r.ReadAll(ctx, func(row Row) error {
			select {
			case rows <- row:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errc <- err
		close(errc)
	}()
	return rows, errc
}
