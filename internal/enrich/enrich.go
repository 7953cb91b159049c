// Package enrich post-processes a built dataset: cleaning passes shared by
// both kinds and the derived quote columns used by downstream return and
// volatility analysis.
package enrich

import (
	"fmt"
	"math"
	"strings"

	"tickflow/internal/frame"
	"tickflow/models"
)

// Derived column names.
const (
	ColMidPrice    = "mid-price"
	ColSpread      = "spread"
	ColBidValue    = "bid-value"
	ColAskValue    = "ask-value"
	ColTotalVolume = "total-volume"
	ColLogMidPrice = "log-mid-price"
)

// Options selects the cleaning passes.
type Options struct {
	DropNullIndex   bool
	Deduplicate     bool
	EnforcePositive bool
}

// Clean drops rows with a null timestamp, removes exact duplicate rows
// (first occurrence wins) and optionally drops rows with non-positive
// values in the kind's numeric columns.
func Clean(f *frame.Frame, kind models.Kind, opts Options) (*frame.Frame, error) {
	n := f.NumRows()
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}

	if opts.DropNullIndex {
		idx := f.Column(models.ColIndex)
		if idx == nil {
			return nil, fmt.Errorf("enrich: frame missing %q", models.ColIndex)
		}
		for i := 0; i < n; i++ {
			if _, ok := idx.Time(i); !ok {
				mask[i] = false
			}
		}
	}

	if opts.Deduplicate {
		seen := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			if !mask[i] {
				continue
			}
			k := rowKey(f, i)
			if seen[k] {
				mask[i] = false
				continue
			}
			seen[k] = true
		}
	}

	if opts.EnforcePositive {
		for _, name := range kind.Columns() {
			col := f.Column(name)
			if col == nil || col.Typ != frame.Float {
				continue
			}
			for i := 0; i < n; i++ {
				if !mask[i] {
					continue
				}
				if v, ok := col.Float(i); ok && v <= 0 {
					mask[i] = false
				}
			}
		}
	}

	return f.Filter(mask)
}

// rowKey renders one row to a string for duplicate detection.
func rowKey(f *frame.Frame, i int) string {
	var b strings.Builder
	for _, name := range f.Columns() {
		col := f.Column(name)
		switch col.Typ {
		case frame.Float:
			if v, ok := col.Float(i); ok {
				fmt.Fprintf(&b, "%g|", v)
			} else {
				b.WriteString("~|")
			}
		case frame.String:
			if v, ok := col.Str(i); ok {
				b.WriteString(v)
				b.WriteByte('|')
			} else {
				b.WriteString("~|")
			}
		case frame.Time:
			if v, ok := col.Time(i); ok {
				fmt.Fprintf(&b, "%d|", v.UnixNano())
			} else {
				b.WriteString("~|")
			}
		}
	}
	return b.String()
}

// DeriveQuotes appends the quote analytics columns: mid-price, half-spread,
// per-side notional value, total top-of-book volume and log mid-price. Rows
// where an input is null get a null derived value.
func DeriveQuotes(f *frame.Frame) (*frame.Frame, error) {
	bid := f.Column(models.ColBidPrice)
	ask := f.Column(models.ColAskPrice)
	bidVol := f.Column(models.ColBidVolume)
	askVol := f.Column(models.ColAskVolume)
	if bid == nil || ask == nil || bidVol == nil || askVol == nil {
		return nil, fmt.Errorf("enrich: quote frame missing price or volume columns")
	}

	n := f.NumRows()
	mid := make([]float64, n)
	spread := make([]float64, n)
	logMid := make([]float64, n)
	bidValue := make([]float64, n)
	askValue := make([]float64, n)
	totalVol := make([]float64, n)
	priceValid := make([]bool, n)
	logValid := make([]bool, n)
	bidValValid := make([]bool, n)
	askValValid := make([]bool, n)
	volValid := make([]bool, n)

	for i := 0; i < n; i++ {
		b, bok := bid.Float(i)
		a, aok := ask.Float(i)
		bv, bvok := bidVol.Float(i)
		av, avok := askVol.Float(i)

		if bok && aok {
			mid[i] = (b + a) / 2
			spread[i] = (a - b) / 2
			priceValid[i] = true
			if mid[i] > 0 {
				logMid[i] = math.Log(mid[i])
				logValid[i] = true
			}
		}
		if bok && bvok {
			bidValue[i] = b * bv
			bidValValid[i] = true
		}
		if aok && avok {
			askValue[i] = a * av
			askValValid[i] = true
		}
		if bvok && avok {
			totalVol[i] = bv + av
			volValid[i] = true
		}
	}

	out := f.WithColumn(frame.NewFloats(ColMidPrice, mid, priceValid))
	out = out.WithColumn(frame.NewFloats(ColSpread, spread, priceValid))
	out = out.WithColumn(frame.NewFloats(ColBidValue, bidValue, bidValValid))
	out = out.WithColumn(frame.NewFloats(ColAskValue, askValue, askValValid))
	out = out.WithColumn(frame.NewFloats(ColTotalVolume, totalVol, volValid))
	out = out.WithColumn(frame.NewFloats(ColLogMidPrice, logMid, logValid))
	return out, nil
}

// ColumnSummary describes one column of a dataset.
type ColumnSummary struct {
	Name  string
	Type  string
	Nulls int
	Min   float64
	Max   float64
	Mean  float64
}

// Summary is a compact description of a dataset, logged after a run so
// obviously broken ingests (all-null columns, absurd price ranges) show up
// without opening the output file.
type Summary struct {
	Rows    int
	Columns []ColumnSummary
}

// Summarize computes per-column null counts and, for numeric columns,
// min/max/mean over non-null values.
func Summarize(f *frame.Frame) Summary {
	s := Summary{Rows: f.NumRows()}
	for _, name := range f.Columns() {
		col := f.Column(name)
		cs := ColumnSummary{Name: name, Type: col.Typ.String()}
		for i := 0; i < col.Len(); i++ {
			if !col.Valid[i] {
				cs.Nulls++
			}
		}
		if col.Typ == frame.Float {
			count := 0
			sum := 0.0
			cs.Min = math.Inf(1)
			cs.Max = math.Inf(-1)
			for i := 0; i < col.Len(); i++ {
				v, ok := col.Float(i)
				if !ok {
					continue
				}
				sum += v
				count++
				if v < cs.Min {
					cs.Min = v
				}
				if v > cs.Max {
					cs.Max = v
				}
			}
			if count > 0 {
				cs.Mean = sum / float64(count)
			} else {
				cs.Min, cs.Max = 0, 0
			}
		}
		s.Columns = append(s.Columns, cs)
	}
	return s
}
