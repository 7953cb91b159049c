// Package decode turns one compressed daily archive member into a typed
// frame tagged with its ticker.
package decode

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"tickflow/internal/frame"
	"tickflow/models"
)

// DecodeError reports a malformed member. The member is dropped and its
// siblings keep processing; the error identifies the member for the logs.
type DecodeError struct {
	Ticker string
	Member string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s): %v", e.Member, e.Ticker, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// defaultNullSentinels are the literal tokens the source feed uses for
// missing values. The empty field is null as well.
var defaultNullSentinels = map[string]bool{
	"()": true,
	"":   true,
}

// Member decompresses and parses one daily csv.gz member. Numeric columns
// are parsed as float64 with trade-volume forced numeric whatever its
// literal form; the trade classification flag stays textual. Every row of
// the result carries a constant Stock column equal to ticker. Any parse
// failure yields a *DecodeError for this member only.
func Member(r io.Reader, kind models.Kind, ticker, member string) (*frame.Frame, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, &DecodeError{Ticker: ticker, Member: member, Err: err}
	}
	defer gz.Close()

	cr := csv.NewReader(gz)
	header, err := cr.Read()
	if err != nil {
		return nil, &DecodeError{Ticker: ticker, Member: member, Err: fmt.Errorf("reading header: %w", err)}
	}

	cells := make([][]string, len(header))
	rows := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DecodeError{Ticker: ticker, Member: member, Err: fmt.Errorf("row %d: %w", rows+1, err)}
		}
		for i, v := range record {
			cells[i] = append(cells[i], v)
		}
		rows++
	}

	stringCols := kind.StringColumns()
	series := make([]*frame.Series, 0, len(header))
	for i, name := range header {
		if stringCols[name] {
			series = append(series, stringSeries(name, cells[i]))
			continue
		}
		s, err := floatSeries(name, cells[i])
		if err != nil {
			return nil, &DecodeError{Ticker: ticker, Member: member, Err: err}
		}
		series = append(series, s)
	}

	f, err := frame.New(series...)
	if err != nil {
		return nil, &DecodeError{Ticker: ticker, Member: member, Err: err}
	}
	return f.WithConstString(models.ColStock, ticker), nil
}

func stringSeries(name string, cells []string) *frame.Series {
	vals := make([]string, len(cells))
	valid := make([]bool, len(cells))
	for i, c := range cells {
		if defaultNullSentinels[c] {
			continue
		}
		vals[i] = c
		valid[i] = true
	}
	return frame.NewStrings(name, vals, valid)
}

func floatSeries(name string, cells []string) (*frame.Series, error) {
	vals := make([]float64, len(cells))
	valid := make([]bool, len(cells))
	for i, c := range cells {
		if defaultNullSentinels[c] {
			continue
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i+1, err)
		}
		vals[i] = v
		valid[i] = true
	}
	return frame.NewFloats(name, vals, valid), nil
}
