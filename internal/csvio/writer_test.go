package csvio

import (
	"bytes"
	"io"
	"testing"
)

type memFile struct {
	*bytes.Buffer
	closed bool
}

func (m *memFile) Close() error { m.closed = true; return nil }

func memOpener(store map[string]*memFile) func(string) (io.WriteCloser, error) {
	return func(path string) (io.WriteCloser, error) {
		f := &memFile{Buffer: &bytes.Buffer{}}
		store[path] = f
		return f, nil
	}
}

func TestWriterSingleFileNoSplit(t *testing.T) {
	store := map[string]*memFile{}
	w, err := NewWriter("out.csv", WriterOptions{}, memOpener(store))
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}} {
		if err := w.WriteRow(row); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.TotalWritten() != 3 {
		t.Errorf("TotalWritten() = %d, want 3", w.TotalWritten())
	}
	if len(store) != 1 {
		t.Fatalf("expected 1 file written, got %d", len(store))
	}
	if store["out.csv"].String() != "1,a\n2,b\n3,c\n" {
		t.Errorf("content = %q", store["out.csv"].String())
	}
}

func TestWriterHeaderOncePerFile(t *testing.T) {
	store := map[string]*memFile{}
	w, err := NewWriter("out.csv", WriterOptions{Header: true, HeaderFields: []string{"id", "name"}, MaxOutputSize: 1}, memOpener(store))
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range [][]string{{"1", "a"}, {"2", "b"}} {
		if err := w.WriteRow(row); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if len(store) != 2 {
		t.Fatalf("expected 2 files, got %d", len(store))
	}
	if store["out.csv"].String() != "id,name\n1,a\n" {
		t.Errorf("file 0 content = %q", store["out.csv"].String())
	}
	if store["out.csv.1"].String() != "id,name\n2,b\n" {
		t.Errorf("file 1 content = %q", store["out.csv.1"].String())
	}
}

func TestWriterMaxOutputSizeRollsOverFiles(t *testing.T) {
	store := map[string]*memFile{}
	w, err := NewWriter("out.csv", WriterOptions{MaxOutputSize: 2}, memOpener(store))
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}
	for _, row := range rows {
		if err := w.WriteRow(row); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if len(store) != 3 {
		t.Fatalf("expected 3 files (2+2+1), got %d", len(store))
	}
	if store["out.csv"].String() != "1\n2\n" {
		t.Errorf("file 0 = %q", store["out.csv"].String())
	}
	if store["out.csv.1"].String() != "3\n4\n" {
		t.Errorf("file 1 = %q", store["out.csv.1"].String())
	}
	if store["out.csv.2"].String() != "5\n" {
		t.Errorf("file 2 = %q", store["out.csv.2"].String())
	}
}
