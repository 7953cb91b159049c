package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorCreatesMetadata(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "bbo")
	df := DataFile{
		Path:        filepath.Join(dir, "kind=bbo/year=2008/month=07/day=01/bbo-run.parquet"),
		FileSize:    100,
		RecordCount: 10,
		Partition: map[string]any{
			"kind":  "bbo",
			"year":  2008,
			"month": 7,
			"day":   1,
		},
		Timestamp: time.Unix(0, 0),
	}
	if err := gen.AddFile(df); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "metadata", "metadata.json")); err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	catalogDir := filepath.Join(dir, "catalog")
	if err := gen.WriteCatalogEntry(catalogDir); err != nil {
		t.Fatalf("catalog entry: %v", err)
	}
	if _, err := os.Stat(filepath.Join(catalogDir, "bbo.json")); err != nil {
		t.Fatalf("catalog entry not written: %v", err)
	}
}
