package models

import "testing"

func TestKindValid(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindQuote, true},
		{KindTrade, true},
		{Kind("quotes"), false},
		{Kind(""), false},
	}
	for _, c := range cases {
		if got := c.kind.Valid(); got != c.want {
			t.Errorf("Kind(%q).Valid() = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestKindColumns(t *testing.T) {
	for _, col := range KindQuote.Columns() {
		if KindQuote.StringColumns()[col] {
			t.Errorf("quote column %q must be numeric", col)
		}
	}
	if !KindTrade.StringColumns()[ColTradeFlag] {
		t.Fatalf("%q must decode as string", ColTradeFlag)
	}
}

func TestParseHHMMSS(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00:00", 0, false},
		{"09:30:00", 9*3600 + 30*60, false},
		{"16:00:00", 16 * 3600, false},
		{"23:59:59", 86399, false},
		{"24:00:00", 0, true},
		{"09:60:00", 0, true},
		{"0930", 0, true},
		{"ab:cd:ef", 0, true},
	}
	for _, c := range cases {
		got, err := ParseHHMMSS(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseHHMMSS(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHHMMSS(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseHHMMSS(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
