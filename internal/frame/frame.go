// Package frame implements the small columnar table the ingestion pipeline
// is built on: typed series with per-row validity, boolean-mask filtering and
// the relaxed vertical union used to stitch per-day and per-ticker tables
// together.
package frame

import (
	"fmt"
	"time"
)

// Type enumerates the series element types the pipeline needs.
type Type int

const (
	Float Type = iota
	String
	Time
)

func (t Type) String() string {
	switch t {
	case Float:
		return "float"
	case String:
		return "string"
	case Time:
		return "time"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Series is one named column. Exactly one of the value slices is populated
// according to Typ; Valid marks non-null rows and always has the series
// length.
type Series struct {
	Name    string
	Typ     Type
	Floats  []float64
	Strings []string
	Times   []time.Time
	Valid   []bool
}

func NewFloats(name string, vals []float64, valid []bool) *Series {
	if valid == nil {
		valid = allValid(len(vals))
	}
	return &Series{Name: name, Typ: Float, Floats: vals, Valid: valid}
}

func NewStrings(name string, vals []string, valid []bool) *Series {
	if valid == nil {
		valid = allValid(len(vals))
	}
	return &Series{Name: name, Typ: String, Strings: vals, Valid: valid}
}

func NewTimes(name string, vals []time.Time, valid []bool) *Series {
	if valid == nil {
		valid = allValid(len(vals))
	}
	return &Series{Name: name, Typ: Time, Times: vals, Valid: valid}
}

// Empty returns a zero-row series of the given name and type.
func Empty(name string, typ Type) *Series {
	return &Series{Name: name, Typ: typ, Valid: []bool{}}
}

func allValid(n int) []bool {
	v := make([]bool, n)
	for i := range v {
		v[i] = true
	}
	return v
}

func (s *Series) Len() int {
	return len(s.Valid)
}

// Float returns the value at row i and whether it is non-null.
func (s *Series) Float(i int) (float64, bool) {
	if s.Typ != Float || !s.Valid[i] {
		return 0, false
	}
	return s.Floats[i], true
}

func (s *Series) Str(i int) (string, bool) {
	if s.Typ != String || !s.Valid[i] {
		return "", false
	}
	return s.Strings[i], true
}

func (s *Series) Time(i int) (time.Time, bool) {
	if s.Typ != Time || !s.Valid[i] {
		return time.Time{}, false
	}
	return s.Times[i], true
}

func (s *Series) appendNulls(n int) {
	for i := 0; i < n; i++ {
		s.Valid = append(s.Valid, false)
		switch s.Typ {
		case Float:
			s.Floats = append(s.Floats, 0)
		case String:
			s.Strings = append(s.Strings, "")
		case Time:
			s.Times = append(s.Times, time.Time{})
		}
	}
}

func (s *Series) appendAll(src *Series) error {
	if src.Typ != s.Typ {
		return fmt.Errorf("series %q: cannot append %s values to %s column", s.Name, src.Typ, s.Typ)
	}
	s.Valid = append(s.Valid, src.Valid...)
	switch s.Typ {
	case Float:
		s.Floats = append(s.Floats, src.Floats...)
	case String:
		s.Strings = append(s.Strings, src.Strings...)
	case Time:
		s.Times = append(s.Times, src.Times...)
	}
	return nil
}

func (s *Series) filter(mask []bool) *Series {
	out := &Series{Name: s.Name, Typ: s.Typ}
	for i, keep := range mask {
		if !keep {
			continue
		}
		out.Valid = append(out.Valid, s.Valid[i])
		switch s.Typ {
		case Float:
			out.Floats = append(out.Floats, s.Floats[i])
		case String:
			out.Strings = append(out.Strings, s.Strings[i])
		case Time:
			out.Times = append(out.Times, s.Times[i])
		}
	}
	if out.Valid == nil {
		out.Valid = []bool{}
	}
	return out
}

// Frame is an ordered collection of equal-length series. Stages treat frames
// as immutable values: every operation returns a new frame.
type Frame struct {
	series []*Series
	byName map[string]*Series
}

// New builds a frame from the given series, which must all share one length.
func New(series ...*Series) (*Frame, error) {
	f := &Frame{byName: make(map[string]*Series, len(series))}
	n := -1
	for _, s := range series {
		if n >= 0 && s.Len() != n {
			return nil, fmt.Errorf("series %q has %d rows, want %d", s.Name, s.Len(), n)
		}
		n = s.Len()
		if _, dup := f.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate series %q", s.Name)
		}
		f.series = append(f.series, s)
		f.byName[s.Name] = s
	}
	return f, nil
}

// NumRows reports the row count; an empty frame has zero rows.
func (f *Frame) NumRows() int {
	if len(f.series) == 0 {
		return 0
	}
	return f.series[0].Len()
}

// Columns returns the column names in frame order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.series))
	for i, s := range f.series {
		names[i] = s.Name
	}
	return names
}

// Column returns the named series or nil.
func (f *Frame) Column(name string) *Series {
	return f.byName[name]
}

// WithConstString returns a copy of the frame with a constant string column
// appended (or replaced if the name exists).
func (f *Frame) WithConstString(name, value string) *Frame {
	n := f.NumRows()
	vals := make([]string, n)
	for i := range vals {
		vals[i] = value
	}
	return f.WithColumn(NewStrings(name, vals, nil))
}

// WithColumn returns a copy of the frame with the series appended, replacing
// any same-named column in place.
func (f *Frame) WithColumn(s *Series) *Frame {
	out := &Frame{byName: make(map[string]*Series, len(f.series)+1)}
	replaced := false
	for _, c := range f.series {
		if c.Name == s.Name {
			out.series = append(out.series, s)
			replaced = true
		} else {
			out.series = append(out.series, c)
		}
	}
	if !replaced {
		out.series = append(out.series, s)
	}
	for _, c := range out.series {
		out.byName[c.Name] = c
	}
	return out
}

// Drop returns a copy of the frame without the named column. Dropping a
// missing column is a no-op.
func (f *Frame) Drop(name string) *Frame {
	out := &Frame{byName: make(map[string]*Series, len(f.series))}
	for _, c := range f.series {
		if c.Name == name {
			continue
		}
		out.series = append(out.series, c)
		out.byName[c.Name] = c
	}
	return out
}

// Filter returns the rows for which mask is true, in original order.
func (f *Frame) Filter(mask []bool) (*Frame, error) {
	if len(mask) != f.NumRows() {
		return nil, fmt.Errorf("mask has %d entries, frame has %d rows", len(mask), f.NumRows())
	}
	out := &Frame{byName: make(map[string]*Series, len(f.series))}
	for _, c := range f.series {
		fc := c.filter(mask)
		out.series = append(out.series, fc)
		out.byName[fc.Name] = fc
	}
	return out, nil
}

// Take returns the rows at the given indices, in the given order.
func (f *Frame) Take(indices []int) *Frame {
	out := &Frame{byName: make(map[string]*Series, len(f.series))}
	for _, c := range f.series {
		s := Empty(c.Name, c.Typ)
		for _, i := range indices {
			s.Valid = append(s.Valid, c.Valid[i])
			switch c.Typ {
			case Float:
				s.Floats = append(s.Floats, c.Floats[i])
			case String:
				s.Strings = append(s.Strings, c.Strings[i])
			case Time:
				s.Times = append(s.Times, c.Times[i])
			}
		}
		out.series = append(out.series, s)
		out.byName[s.Name] = s
	}
	return out
}

// ConcatRelaxed vertically unions the given frames. Columns are reconciled
// by name in first-seen order; a column absent from an input is null-filled
// for that input's rows. Inputs disagreeing on a column's type is an error.
func ConcatRelaxed(frames []*Frame) (*Frame, error) {
	out := &Frame{byName: make(map[string]*Series)}
	for _, in := range frames {
		for _, c := range in.series {
			if _, ok := out.byName[c.Name]; ok {
				continue
			}
			s := Empty(c.Name, c.Typ)
			out.series = append(out.series, s)
			out.byName[c.Name] = s
		}
	}
	total := 0
	for _, in := range frames {
		rows := in.NumRows()
		for _, s := range out.series {
			src := in.byName[s.Name]
			if src == nil {
				s.appendNulls(rows)
				continue
			}
			if err := s.appendAll(src); err != nil {
				return nil, err
			}
		}
		total += rows
	}
	for _, s := range out.series {
		if s.Len() != total {
			return nil, fmt.Errorf("series %q ended with %d rows, want %d", s.Name, s.Len(), total)
		}
	}
	return out, nil
}
