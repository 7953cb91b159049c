// Package filter applies the per-kind quality predicates: quote sanity,
// trade classification, and the regular-trading-hours window.
package filter

import (
	"fmt"

	"tickflow/internal/frame"
	"tickflow/models"
)

// Options toggles the individual predicates. Enabled predicates compose by
// logical AND; the stage only ever removes rows.
type Options struct {
	// OnlyRegularHours retains rows whose exchange-local time of day lies
	// inside [Open, Close], inclusive at both ends.
	OnlyRegularHours bool
	Open             string // "HH:MM:SS"
	Close            string // "HH:MM:SS"

	// OnlyNonSpecialTrades retains trade rows classified "uncategorized".
	OnlyNonSpecialTrades bool
}

// Apply runs the enabled predicates for the kind and returns the retained
// rows in original order. A row that is null in a predicate's column is
// dropped by that predicate.
func Apply(f *frame.Frame, kind models.Kind, opts Options) (*frame.Frame, error) {
	n := f.NumRows()
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}

	if kind == models.KindQuote {
		if err := quoteSanity(f, mask); err != nil {
			return nil, err
		}
	}
	if kind == models.KindTrade && opts.OnlyNonSpecialTrades {
		if err := nonSpecialTrades(f, mask); err != nil {
			return nil, err
		}
	}
	if opts.OnlyRegularHours {
		if err := regularHours(f, mask, opts.Open, opts.Close); err != nil {
			return nil, err
		}
	}

	return f.Filter(mask)
}

// quoteSanity enforces ask > 0, bid > 0 and ask > bid on every row. These
// are not optional: a quote violating them is unusable for any downstream
// statistic.
func quoteSanity(f *frame.Frame, mask []bool) error {
	bid := f.Column(models.ColBidPrice)
	ask := f.Column(models.ColAskPrice)
	if bid == nil || ask == nil {
		return fmt.Errorf("filter: quote frame missing %q or %q", models.ColBidPrice, models.ColAskPrice)
	}
	for i := range mask {
		if !mask[i] {
			continue
		}
		b, bok := bid.Float(i)
		a, aok := ask.Float(i)
		mask[i] = bok && aok && a > 0 && b > 0 && a > b
	}
	return nil
}

func nonSpecialTrades(f *frame.Frame, mask []bool) error {
	flag := f.Column(models.ColTradeFlag)
	if flag == nil {
		return fmt.Errorf("filter: trade frame missing %q", models.ColTradeFlag)
	}
	for i := range mask {
		if !mask[i] {
			continue
		}
		v, ok := flag.Str(i)
		mask[i] = ok && v == models.UncategorizedTrade
	}
	return nil
}

func regularHours(f *frame.Frame, mask []bool, open, close string) error {
	idx := f.Column(models.ColIndex)
	if idx == nil {
		return fmt.Errorf("filter: frame missing %q", models.ColIndex)
	}
	openSec, err := models.ParseHHMMSS(open)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	closeSec, err := models.ParseHHMMSS(close)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	for i := range mask {
		if !mask[i] {
			continue
		}
		ts, ok := idx.Time(i)
		if !ok {
			mask[i] = false
			continue
		}
		sec := ts.Hour()*3600 + ts.Minute()*60 + ts.Second()
		mask[i] = sec >= openSec && sec <= closeSec
	}
	return nil
}
