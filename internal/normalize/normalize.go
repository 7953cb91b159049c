// Package normalize converts the source's spreadsheet serial-date column
// into an absolute, exchange-local timestamp.
package normalize

import (
	"fmt"
	"math"
	"time"

	"tickflow/internal/frame"
	"tickflow/models"
)

// Epoch is the spreadsheet serial-date origin. It is 1899-12-30, not
// 1900-01-01: the two-day shift absorbs the 1-based day count and the
// convention's phantom 1900-02-29. Fixture values only round-trip against
// this exact date.
var Epoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ToTime converts a fractional serial day count to an absolute UTC instant,
// rounded to microsecond resolution. Whole days are added calendar-wise so
// precision does not degrade with the size of the day count.
func ToTime(serial float64) time.Time {
	days := math.Floor(serial)
	frac := serial - days
	us := math.Round(frac * 24 * 3600 * 1e6)
	return Epoch.AddDate(0, 0, int(days)).Add(time.Duration(us) * time.Microsecond)
}

// ToSerial is the inverse of ToTime, within floating-point tolerance.
func ToSerial(t time.Time) float64 {
	return t.Sub(Epoch).Seconds() / (24 * 3600)
}

// Apply replaces the serial-date column with a zone-aware "index" column in
// the given location. Pure projection: row count is preserved, null serial
// values map to null timestamps, nothing is filtered here.
func Apply(f *frame.Frame, loc *time.Location) (*frame.Frame, error) {
	serial := f.Column(models.ColSerialTime)
	if serial == nil {
		return nil, fmt.Errorf("normalize: column %q missing", models.ColSerialTime)
	}
	if serial.Typ != frame.Float {
		return nil, fmt.Errorf("normalize: column %q is %s, want float", models.ColSerialTime, serial.Typ)
	}

	n := serial.Len()
	times := make([]time.Time, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		v, ok := serial.Float(i)
		if !ok {
			continue
		}
		times[i] = ToTime(v).In(loc)
		valid[i] = true
	}

	out := f.WithColumn(frame.NewTimes(models.ColIndex, times, valid))
	return out.Drop(models.ColSerialTime), nil
}
