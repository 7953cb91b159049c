package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"tickflow/models"
)

// writeTar creates a tar file at path containing the given members.
func writeTar(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range members {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("write member %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write tar file: %v", err)
	}
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	bbo := filepath.Join(root, "bbo")

	for _, ticker := range []string{"AAPL", "MSFT"} {
		dir := filepath.Join(bbo, ticker)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		writeTar(t, filepath.Join(dir, ticker+".tar"), nil)
	}
	// Ticker directory without any archive: skipped, not fatal.
	if err := os.MkdirAll(filepath.Join(bbo, "EMPTY"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	located, err := Locate(root, models.KindQuote, ".tar")
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if len(located) != 2 {
		t.Fatalf("located %d tickers, want 2: %v", len(located), located)
	}
	if _, ok := located["EMPTY"]; ok {
		t.Fatalf("archive-less ticker must be skipped")
	}
}

func TestLocateMultipleArchivesDeterministic(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bbo", "AAPL")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTar(t, filepath.Join(dir, "b.tar"), nil)
	writeTar(t, filepath.Join(dir, "a.tar"), nil)

	located, err := Locate(root, models.KindQuote, ".tar")
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if got := filepath.Base(located["AAPL"]); got != "a.tar" {
		t.Fatalf("got %s, want lexicographically first a.tar", got)
	}
}

func TestLocateMissingRoot(t *testing.T) {
	_, err := Locate(filepath.Join(t.TempDir(), "nope"), models.KindQuote, ".tar")
	if !errors.Is(err, ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot, got %v", err)
	}
}

func TestSelectorMatch(t *testing.T) {
	sel := Selector{MonthPrefixes: []string{"2008-07", "2008-08"}, MemberExt: ".csv.gz"}

	tests := []struct {
		name string
		want bool
	}{
		{"2008-07-01-AAPL.csv.gz", true},
		{"2008-08-29-AAPL.csv.gz", true},
		{"2008-09-02-AAPL.csv.gz", false}, // outside configured months
		{"2008-07-01-AAPL.csv", false},    // wrong suffix
		{"README", false},
		{"prefix/2008-07-01-AAPL.csv.gz", true}, // prefix applies to the base name
	}
	for _, tt := range tests {
		if got := sel.Match(tt.name); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWalkOrderAndAllowList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AAPL.tar")
	writeTar(t, path, map[string][]byte{
		"2008-07-01-AAPL.csv.gz": []byte("a"),
		"2008-09-01-AAPL.csv.gz": []byte("decoy"),
		"notes.txt":              []byte("x"),
		"2008-08-01-AAPL.csv.gz": []byte("b"),
	})

	sel := Selector{MonthPrefixes: []string{"2008-07", "2008-08"}, MemberExt: ".csv.gz"}
	var seen []string
	err := Walk(path, sel, func(m Member, r io.Reader) error {
		seen = append(seen, m.Name)
		_, err := io.ReadAll(r)
		return err
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("walked %d members, want 2: %v", len(seen), seen)
	}
	for _, name := range seen {
		if name == "2008-09-01-AAPL.csv.gz" || name == "notes.txt" {
			t.Fatalf("member %s should have been excluded", name)
		}
	}
}

func TestTickers(t *testing.T) {
	root := t.TempDir()
	for _, ticker := range []string{"MSFT", "AAPL"} {
		if err := os.MkdirAll(filepath.Join(root, "bbo", ticker), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	tickers, err := Tickers(root, models.KindQuote)
	if err != nil {
		t.Fatalf("tickers: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "MSFT" {
		t.Fatalf("got %v, want sorted [AAPL MSFT]", tickers)
	}
}
