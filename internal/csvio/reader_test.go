package csvio

import (
	"context"
	"io"
	"strings"
	"testing"
)

type stringReadCloser struct{ *strings.Reader }

func (stringReadCloser) Close() error { return nil }

func openFixtures(fixtures map[string]string) func(string) (io.ReadCloser, error) {
	return func(path string) (io.ReadCloser, error) {
		return stringReadCloser{strings.NewReader(fixtures[path])}, nil
	}
}

func TestFilesReaderSkipsHeader(t *testing.T) {
	r, err := NewFilesReader("a.csv", SourceOptions{Header: true})
	if err != nil {
		t.Fatal(err)
	}
	var got []Row
	fixtures := map[string]string{"a.csv": "id,name\n1,a\n2,b\n"}
	err = r.ReadAll(context.Background(), openFixtures(fixtures), func(row Row) error {
		got = append(got, row)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0] != "1" {
		t.Errorf("got %v", got)
	}
}

func TestFilesReaderSkipRowsAndMaxRows(t *testing.T) {
	r, err := NewFilesReader("a.csv", SourceOptions{SkipRows: 1, MaxRows: 2})
	if err != nil {
		t.Fatal(err)
	}
	fixtures := map[string]string{"a.csv": "1,a\n2,b\n3,c\n4,d\n"}
	var got []Row
	err = r.ReadAll(context.Background(), openFixtures(fixtures), func(row Row) error {
		got = append(got, row)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0] != "2" || got[1][0] != "3" {
		t.Errorf("got %v, want rows 2 and 3", got)
	}
}

func TestFilesReaderMultipleSources(t *testing.T) {
	r, err := NewFilesReader("a.csv,b.csv", SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r.NumSources() != 2 {
		t.Fatalf("NumSources() = %d, want 2", r.NumSources())
	}
	fixtures := map[string]string{"a.csv": "1,a\n", "b.csv": "2,b\n"}
	var got []Row
	err = r.ReadAll(context.Background(), openFixtures(fixtures), func(row Row) error {
		got = append(got, row)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d rows, want 2", len(got))
	}
}

func TestFilesReaderStopsEarlyOnCallbackError(t *testing.T) {
	r, err := NewFilesReader("a.csv", SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	fixtures := map[string]string{"a.csv": "1,a\n2,b\n"}
	calls := 0
	wantErr := errBoom
	err = r.ReadAll(context.Background(), openFixtures(fixtures), func(row Row) error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

var errBoom = &sentinelErr{"boom"}

type sentinelErr struct{ msg string }

func (e *sentinelErr) Error() string { return e.msg }

func TestFilesReaderRowsChannelAdapter(t *testing.T) {
	r, err := NewFilesReader("a.csv", SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	fixtures := map[string]string{"a.csv": "1,a\n2,b\n"}
	ctx := context.Background()
	rowCh, errc := r.Rows(ctx, openFixtures(fixtures))

	var got []Row
	for row := range rowCh {
		got = append(got, row)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Rows error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d rows, want 2", len(got))
	}
}

func TestPipeReaderSkipsHeaderAndRespectsMaxRows(t *testing.T) {
	lines := make(chan string, 10)
	lines <- "id,name"
	lines <- "1,a"
	lines <- "2,b"
	lines <- "3,c"
	close(lines)

	pr := NewPipeReader(lines, SourceOptions{Header: true, MaxRows: 2})
	var got []Row
	err := pr.ReadAll(context.Background(), func(row Row) error {
		got = append(got, row)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0] != "1" || got[1][0] != "2" {
		t.Errorf("got %v", got)
	}
}
