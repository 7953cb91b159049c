package pipeline

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tickflow/config"
	"tickflow/internal/aggregate"
	"tickflow/models"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		Data: config.DataConfig{
			Root:       root,
			Months:     []string{"2008-07", "2008-08"},
			ArchiveExt: ".tar",
			MemberExt:  ".csv.gz",
		},
		Exchange: config.ExchangeConfig{
			Timezone:     "America/New_York",
			TradingOpen:  "09:30:00",
			TradingClose: "16:00:00",
		},
		Filters: config.FilterConfig{
			OnlyRegularHours:     true,
			OnlyNonSpecialTrades: true,
			MergeSameTimestamp:   true,
		},
		Pipeline: config.PipelineConfig{MaxWorkers: 2},
	}
}

func gzipBytes(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(body)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// member is one named csv.gz file placed inside a ticker archive.
type member struct {
	name string
	csv  string
}

func writeTickerArchive(t *testing.T, root string, kind models.Kind, ticker string, members []member) {
	t.Helper()
	dir := filepath.Join(root, kind.String(), ticker)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		data := gzipBytes(t, m.csv)
		hdr := &tar.Header{Name: m.name, Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ticker+".tar"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write tar: %v", err)
	}
}

const quoteHeader = "xltime,bid-price,ask-price,bid-volume,ask-volume\n"
const tradeHeader = "xltime,trade-price,trade-volume,trade-rawflag,trade-stringflag\n"

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()

	// Each archive holds one July and one August member plus a September
	// decoy that the member selector must exclude. The 12:00 UTC row is
	// 08:00 in New York and falls outside regular trading hours.
	for _, ticker := range []string{"AAPL", "MSFT"} {
		writeTickerArchive(t, root, models.KindQuote, ticker, []member{
			{"2008-07-01-" + ticker + ".csv.gz", quoteHeader +
				"39630.583333333336,100.0,100.5,10,12\n" + // 10:00 New York
				"39630.5,99.0,99.5,10,12\n"}, // 08:00 New York, filtered
			{"2008-08-01-" + ticker + ".csv.gz", quoteHeader +
				"39661.625,101.0,101.5,10,12\n"}, // 11:00 New York
			{"2008-09-01-" + ticker + ".csv.gz", quoteHeader +
				"39692.583333333336,1.0,2.0,1,1\n"}, // decoy month
		})
	}

	ds, err := Run(testConfig(root), models.KindQuote)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Two retained rows per ticker.
	if ds.Frame.NumRows() != 4 {
		t.Fatalf("rows = %d, want 4", ds.Frame.NumRows())
	}

	stock := ds.Frame.Column(models.ColStock)
	idx := ds.Frame.Column(models.ColIndex)
	bid := ds.Frame.Column(models.ColBidPrice)
	// Tickers are merged in lexicographic order.
	wantStocks := []string{"AAPL", "AAPL", "MSFT", "MSFT"}
	for i := 0; i < ds.Frame.NumRows(); i++ {
		s, ok := stock.Str(i)
		if !ok || s != wantStocks[i] {
			t.Fatalf("row %d Stock = (%q, %v), want %q", i, s, ok, wantStocks[i])
		}
		ts, ok := idx.Time(i)
		if !ok {
			t.Fatalf("row %d has null index", i)
		}
		if zone, _ := ts.Zone(); zone != "EDT" {
			t.Fatalf("row %d zone = %s, want EDT", i, zone)
		}
		sec := ts.Hour()*3600 + ts.Minute()*60 + ts.Second()
		if sec < 9*3600+30*60 || sec > 16*3600 {
			t.Fatalf("row %d outside trading hours: %v", i, ts)
		}
		if b, _ := bid.Float(i); b == 99.0 || b == 1.0 {
			t.Fatalf("row %d carries a filtered or decoy value: %v", i, b)
		}
	}

	if ds.Report.MembersDecoded != 4 {
		t.Fatalf("members decoded = %d, want 4", ds.Report.MembersDecoded)
	}
}

func TestRunEmptyUniverse(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bbo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg := testConfig(root)
	cfg.Data.Tickers = []string{"ZZZZ"}
	ds, err := Run(cfg, models.KindQuote)
	if err != nil {
		t.Fatalf("empty universe must not fail: %v", err)
	}
	if ds.Frame.NumRows() != 0 {
		t.Fatalf("rows = %d, want 0", ds.Frame.NumRows())
	}
	for _, col := range models.KindQuote.Columns() {
		if ds.Frame.Column(col) == nil {
			t.Fatalf("empty dataset missing typed column %q", col)
		}
	}
}

func TestRunMissingRoot(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "nope"))
	cfg.Data.Tickers = []string{"AAPL"}
	if _, err := Run(cfg, models.KindQuote); err == nil {
		t.Fatalf("missing root must be fatal")
	}
}

func TestRunBadMemberIsolated(t *testing.T) {
	root := t.TempDir()
	writeTickerArchive(t, root, models.KindQuote, "AAPL", []member{
		{"2008-07-01-AAPL.csv.gz", quoteHeader + "39630.583333333336,100.0,100.5,10,12\n"},
	})
	// Corrupt member: not gzip at all.
	dir := filepath.Join(root, "bbo", "MSFT")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	bad := []byte("this is not gzip")
	ok := gzipBytes(t, quoteHeader+"39661.625,101.0,101.5,10,12\n")
	for _, m := range []struct {
		name string
		data []byte
	}{
		{"2008-07-02-MSFT.csv.gz", bad},
		{"2008-08-01-MSFT.csv.gz", ok},
	} {
		hdr := &tar.Header{Name: m.name, Mode: 0o644, Size: int64(len(m.data))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(m.data); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "MSFT.tar"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write tar: %v", err)
	}

	ds, err := Run(testConfig(root), models.KindQuote)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// The bad MSFT member is dropped, its sibling and AAPL survive.
	if ds.Frame.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", ds.Frame.NumRows())
	}
	if ds.Report.MembersFailed != 1 {
		t.Fatalf("members failed = %d, want 1", ds.Report.MembersFailed)
	}
}

func TestRunTradesSharedTimestampNotMerged(t *testing.T) {
	root := t.TempDir()
	// Both tickers trade at exactly 14:00 UTC. Aggregation groups by
	// timestamp only, so it must run per ticker: the two prints stay
	// separate in the final dataset.
	writeTickerArchive(t, root, models.KindTrade, "AAPL", []member{
		{"2008-07-01-AAPL.csv.gz", tradeHeader +
			"39630.583333333336,100.0,10,0,uncategorized\n" +
			"39630.583333333336,102.0,30,0,uncategorized\n"},
	})
	writeTickerArchive(t, root, models.KindTrade, "MSFT", []member{
		{"2008-07-01-MSFT.csv.gz", tradeHeader +
			"39630.583333333336,50.0,10,0,uncategorized\n"},
	})

	cfg := testConfig(root)
	cfg.Data.Tickers = []string{"AAPL", "MSFT"}
	ds, err := Run(cfg, models.KindTrade)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ds.Frame.NumRows() != 2 {
		t.Fatalf("rows = %d, want one VWAP row per ticker", ds.Frame.NumRows())
	}

	price := ds.Frame.Column(models.ColTradePrice)
	volume := ds.Frame.Column(models.ColTradeVolume)
	p0, _ := price.Float(0)
	v0, _ := volume.Float(0)
	if p0 != 101.5 || v0 != 40 {
		t.Fatalf("AAPL vwap = (%v, %v), want (101.5, 40)", p0, v0)
	}
	p1, _ := price.Float(1)
	if p1 != 50.0 {
		t.Fatalf("MSFT price = %v, must not absorb AAPL prints", p1)
	}
}

func TestRunTradesZeroVolumeEscalates(t *testing.T) {
	root := t.TempDir()
	writeTickerArchive(t, root, models.KindTrade, "AAPL", []member{
		{"2008-07-01-AAPL.csv.gz", tradeHeader +
			"39630.583333333336,100.0,5,0,uncategorized\n" +
			"39630.583333333336,102.0,-5,0,uncategorized\n"},
	})

	cfg := testConfig(root)
	cfg.Data.Tickers = []string{"AAPL"}
	_, err := Run(cfg, models.KindTrade)
	var zv *aggregate.ZeroVolumeError
	if !errors.As(err, &zv) {
		t.Fatalf("expected *ZeroVolumeError, got %v", err)
	}
	if zv.Stock != "AAPL" {
		t.Fatalf("error must name the ticker: %+v", zv)
	}
	want := time.Date(2008, 7, 1, 14, 0, 0, 0, time.UTC)
	if !zv.Index.Equal(want) {
		t.Fatalf("error timestamp = %v, want %v", zv.Index, want)
	}
}
