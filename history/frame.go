package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/yahoo"
)

// Columns are the CSV columns after the date.
var Columns = []string{"Open", "High", "Low", "Close", "Volume"}

// Frame is a table of daily bars sorted by date. Missing values are NaN.
type Frame struct {
	Bars []yahoo.Bar
	// Missing lists the columns absent from the source file.
	Missing []string
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Bars)
}

// Empty reports whether f has no rows.
func (f *Frame) Empty() bool { return f.Len() == 0 }

// Closes returns the close column as a dated series.
func (f *Frame) Closes() *date.History {
	h := new(date.History)
	if f == nil {
		return h
	}
	for _, b := range f.Bars {
		h.Append(b.Date, b.Close)
	}
	return h
}

// Close returns the close n rows before the last one, or the oldest close when the frame
// is shorter than n+1 rows.
func (f *Frame) Close(n int) (float64, bool) {
	if f.Empty() || n < 0 {
		return math.NaN(), false
	}
	i := len(f.Bars) - 1 - n
	if i < 0 {
		i = 0
	}
	c := f.Bars[i].Close
	return c, !math.IsNaN(c)
}

// Has reports whether a row exists for day.
func (f *Frame) Has(day date.Date) bool {
	for i := len(f.Bars) - 1; i >= 0; i-- {
		if f.Bars[i].Date == day {
			return true
		}
		if f.Bars[i].Date.Before(day) {
			return false
		}
	}
	return false
}

// Scaled returns a copy with price columns multiplied by k. Volume is kept.
func (f *Frame) Scaled(k float64) *Frame {
	out := &Frame{Bars: make([]yahoo.Bar, len(f.Bars)), Missing: f.Missing}
	for i, b := range f.Bars {
		b.Open *= k
		b.High *= k
		b.Low *= k
		b.Close *= k
		out.Bars[i] = b
	}
	return out
}

// usable reports whether every price column is less than 95% NaN.
func (f *Frame) usable() bool {
	if f.Empty() {
		return false
	}
	var open, high, low, cl int
	for _, b := range f.Bars {
		if math.IsNaN(b.Open) {
			open++
		}
		if math.IsNaN(b.High) {
			high++
		}
		if math.IsNaN(b.Low) {
			low++
		}
		if math.IsNaN(b.Close) {
			cl++
		}
	}
	limit := 0.95 * float64(len(f.Bars))
	for _, n := range []int{open, high, low, cl} {
		if float64(n) >= limit {
			return false
		}
	}
	return true
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// WriteCSV writes f with a Date,Open,High,Low,Close,Volume header.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Date"}, Columns...)); err != nil {
		return err
	}
	for _, b := range f.Bars {
		rec := []string{
			b.Date.String(),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a frame written by WriteCSV. Columns may come in any order after the date;
// absent columns read as NaN and are listed in Missing.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Frame{}, nil
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	f := new(Frame)
	for _, c := range Columns {
		if _, ok := index[c]; !ok {
			f.Missing = append(f.Missing, c)
		}
	}
	get := func(rec []string, col string) float64 {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return math.NaN()
		}
		return parseFloat(rec[i])
	}

	var days []date.Date
	rows := make(map[date.Date]yahoo.Bar)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || len(rec[0]) < 10 {
			continue
		}
		// timestamps like "2025-01-02 00:00:00+01:00" keep their day
		on, err := date.Parse(rec[0][:10])
		if err != nil {
			return nil, fmt.Errorf("row %q: %w", rec[0], err)
		}
		if _, dup := rows[on]; !dup {
			days = append(days, on)
		}
		rows[on] = yahoo.Bar{
			Date:   on,
			Open:   get(rec, "Open"),
			High:   get(rec, "High"),
			Low:    get(rec, "Low"),
			Close:  get(rec, "Close"),
			Volume: get(rec, "Volume"),
		}
	}
	slices.SortFunc(days, date.Date.Compare)
	for _, on := range days {
		f.Bars = append(f.Bars, rows[on])
	}
	return f, nil
}

// saveCSV writes f to path through a temporary file.
func saveCSV(path string, f *Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := f.WriteCSV(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func loadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}
