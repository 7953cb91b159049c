// Package aggregate collapses records that share one timestamp: the last
// quote in force wins, trades merge into a volume-weighted print.
package aggregate

import (
	"fmt"
	"time"

	"tickflow/internal/frame"
	"tickflow/models"
)

// ZeroVolumeError reports a same-timestamp trade group whose total volume
// is zero. The volume-weighted price is undefined there, and a zero-volume
// print is itself a data-quality signal, so this surfaces to the caller
// instead of being coerced to zero or NaN.
type ZeroVolumeError struct {
	Stock string
	Index time.Time
}

func (e *ZeroVolumeError) Error() string {
	return fmt.Sprintf("aggregate: zero total volume for %s at %s", e.Stock, e.Index.Format(time.RFC3339Nano))
}

// groupKey identifies one timestamp group. Null timestamps group together,
// mirroring the source engine's grouping semantics.
type groupKey struct {
	valid bool
	ns    int64
}

func keyAt(idx *frame.Series, i int) groupKey {
	ts, ok := idx.Time(i)
	if !ok {
		return groupKey{}
	}
	return groupKey{valid: true, ns: ts.UnixNano()}
}

// Apply collapses same-timestamp rows for the kind. With merge disabled it
// is the identity and keeps the original row order. Groups are emitted in
// first-occurrence order of their timestamp, never re-sorted.
func Apply(f *frame.Frame, kind models.Kind, merge bool) (*frame.Frame, error) {
	if !merge || f.NumRows() == 0 {
		return f, nil
	}
	idx := f.Column(models.ColIndex)
	if idx == nil {
		return nil, fmt.Errorf("aggregate: frame missing %q", models.ColIndex)
	}
	if kind == models.KindTrade {
		return trades(f, idx)
	}
	return quotes(f, idx)
}

// quotes keeps the last row of every timestamp group: the most recent quote
// at a timestamp is the one in force.
func quotes(f *frame.Frame, idx *frame.Series) (*frame.Frame, error) {
	var order []groupKey
	last := make(map[groupKey]int)
	for i := 0; i < f.NumRows(); i++ {
		k := keyAt(idx, i)
		if _, seen := last[k]; !seen {
			order = append(order, k)
		}
		last[k] = i
	}

	rows := make([]int, len(order))
	for gi, k := range order {
		rows[gi] = last[k]
	}
	return f.Take(rows), nil
}

// trades replaces every timestamp group with one synthetic print carrying
// the volume-weighted average price and the summed volume. Non-aggregated
// columns keep the group's first row value; the flag columns are dropped
// since they do not survive merging meaningfully.
func trades(f *frame.Frame, idx *frame.Series) (*frame.Frame, error) {
	price := f.Column(models.ColTradePrice)
	volume := f.Column(models.ColTradeVolume)
	if price == nil || volume == nil {
		return nil, fmt.Errorf("aggregate: trade frame missing %q or %q", models.ColTradePrice, models.ColTradeVolume)
	}
	stock := f.Column(models.ColStock)

	var order []groupKey
	first := make(map[groupKey]int)
	sumPV := make(map[groupKey]float64)
	sumV := make(map[groupKey]float64)
	for i := 0; i < f.NumRows(); i++ {
		k := keyAt(idx, i)
		if _, seen := first[k]; !seen {
			order = append(order, k)
			first[k] = i
		}
		p, pok := price.Float(i)
		v, vok := volume.Float(i)
		if !pok || !vok {
			continue
		}
		sumPV[k] += p * v
		sumV[k] += v
	}

	rows := make([]int, len(order))
	prices := make([]float64, len(order))
	volumes := make([]float64, len(order))
	for gi, k := range order {
		i := first[k]
		if sumV[k] == 0 {
			name := ""
			if stock != nil {
				name, _ = stock.Str(i)
			}
			ts, _ := idx.Time(i)
			return nil, &ZeroVolumeError{Stock: name, Index: ts}
		}
		rows[gi] = i
		prices[gi] = sumPV[k] / sumV[k]
		volumes[gi] = sumV[k]
	}

	out := f.Take(rows)
	out = out.WithColumn(frame.NewFloats(models.ColTradePrice, prices, nil))
	out = out.WithColumn(frame.NewFloats(models.ColTradeVolume, volumes, nil))
	out = out.Drop(models.ColTradeRaw)
	return out.Drop(models.ColTradeFlag), nil
}
