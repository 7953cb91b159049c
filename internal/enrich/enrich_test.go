package enrich

import (
	"math"
	"testing"
	"time"

	"tickflow/internal/frame"
	"tickflow/models"
)

var ts = time.Date(2008, 7, 1, 10, 0, 0, 0, time.UTC)

func TestCleanDropsNullIndexAndDuplicates(t *testing.T) {
	f, _ := frame.New(
		frame.NewTimes(models.ColIndex, []time.Time{ts, {}, ts, ts.Add(time.Second)}, []bool{true, false, true, true}),
		frame.NewFloats(models.ColBidPrice, []float64{100, 100, 100, 101}, nil),
	)

	out, err := Clean(f, models.KindQuote, Options{DropNullIndex: true, Deduplicate: true})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	// Null-index row dropped, exact duplicate of row 0 dropped.
	if out.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", out.NumRows())
	}
}

func TestCleanEnforcePositive(t *testing.T) {
	f, _ := frame.New(
		frame.NewTimes(models.ColIndex, []time.Time{ts, ts.Add(time.Second)}, nil),
		frame.NewFloats(models.ColBidPrice, []float64{100, -1}, nil),
		frame.NewFloats(models.ColAskPrice, []float64{101, 101}, nil),
		frame.NewFloats(models.ColBidVolume, []float64{10, 10}, nil),
		frame.NewFloats(models.ColAskVolume, []float64{10, 10}, nil),
	)
	out, err := Clean(f, models.KindQuote, Options{EnforcePositive: true})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out.NumRows() != 1 {
		t.Fatalf("rows = %d, want 1", out.NumRows())
	}
}

func TestDeriveQuotes(t *testing.T) {
	f, _ := frame.New(
		frame.NewFloats(models.ColBidPrice, []float64{100}, nil),
		frame.NewFloats(models.ColAskPrice, []float64{102}, nil),
		frame.NewFloats(models.ColBidVolume, []float64{10}, nil),
		frame.NewFloats(models.ColAskVolume, []float64{20}, nil),
	)

	out, err := DeriveQuotes(f)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	checks := []struct {
		col  string
		want float64
	}{
		{ColMidPrice, 101},
		{ColSpread, 1},
		{ColBidValue, 1000},
		{ColAskValue, 2040},
		{ColTotalVolume, 30},
		{ColLogMidPrice, math.Log(101)},
	}
	for _, c := range checks {
		col := out.Column(c.col)
		if col == nil {
			t.Fatalf("column %q missing", c.col)
		}
		v, ok := col.Float(0)
		if !ok || math.Abs(v-c.want) > 1e-12 {
			t.Errorf("%s = (%v, %v), want %v", c.col, v, ok, c.want)
		}
	}
}

func TestDeriveQuotesNullPropagation(t *testing.T) {
	f, _ := frame.New(
		frame.NewFloats(models.ColBidPrice, []float64{100, 0}, []bool{true, false}),
		frame.NewFloats(models.ColAskPrice, []float64{102, 102}, nil),
		frame.NewFloats(models.ColBidVolume, []float64{10, 10}, nil),
		frame.NewFloats(models.ColAskVolume, []float64{20, 20}, nil),
	)
	out, err := DeriveQuotes(f)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if _, ok := out.Column(ColMidPrice).Float(1); ok {
		t.Fatalf("mid-price must be null when bid is null")
	}
	if _, ok := out.Column(ColTotalVolume).Float(1); !ok {
		t.Fatalf("total-volume only needs the volume columns")
	}
}

func TestSummarize(t *testing.T) {
	f, _ := frame.New(
		frame.NewFloats("p", []float64{1, 3, 0}, []bool{true, true, false}),
		frame.NewStrings("s", []string{"a", "b", "c"}, nil),
	)
	sum := Summarize(f)
	if sum.Rows != 3 {
		t.Fatalf("rows = %d, want 3", sum.Rows)
	}
	p := sum.Columns[0]
	if p.Nulls != 1 || p.Min != 1 || p.Max != 3 || p.Mean != 2 {
		t.Fatalf("unexpected numeric summary: %+v", p)
	}
	if sum.Columns[1].Nulls != 0 {
		t.Fatalf("string column should have no nulls: %+v", sum.Columns[1])
	}
}
