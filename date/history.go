package date

import (
	"iter"
	"math"
	"slices"
	"sort"
)

// History stores a chronological series of prices, each associated with a specific date.
// Dates are unique and the series is always sorted.
type History struct {
	days   []Date
	values []float64
}

// Latest returns the latest date and value in the history.
// If the history is empty, it returns zero values.
func (h *History) Latest() (day Date, value float64) {
	last := len(h.days) - 1
	if last < 0 {
		return Date{}, 0
	}
	return h.days[last], h.values[last]
}

// First returns the oldest date and value.
func (h *History) First() (day Date, value float64) {
	if len(h.days) == 0 {
		return Date{}, 0
	}
	return h.days[0], h.values[0]
}

// Len returns the number of items in the history.
func (h *History) Len() int { return len(h.days) }

type chronological struct{ *History }

func (s chronological) Less(i, j int) bool { return s.days[i].Before(s.days[j]) }

func (s chronological) Swap(i, j int) {
	s.days[i], s.days[j] = s.days[j], s.days[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}

// Append adds a point to the history.
//
// Existing value at that date is overwritten.
func (h *History) Append(on Date, v float64) *History {
	if i := slices.Index(h.days, on); i >= 0 {
		h.values[i] = v
		return h
	}
	h.days, h.values = append(h.days, on), append(h.values, v)
	// most appends arrive in order
	if n := len(h.days); n > 1 && h.days[n-1].Before(h.days[n-2]) {
		sort.Sort(chronological{h})
	}
	return h
}

// Values returns an iterator over all date/value pairs in chronological order.
func (h *History) Values() iter.Seq2[Date, float64] {
	return func(yield func(Date, float64) bool) {
		for i, on := range h.days {
			if !yield(on, h.values[i]) {
				return
			}
		}
	}
}

// Days returns a copy of the dates.
func (h *History) Days() []Date { return slices.Clone(h.days) }

// Floats returns a copy of the values.
func (h *History) Floats() []float64 { return slices.Clone(h.values) }

// Get returns the value at 'day' and true or zero value and false.
func (h *History) Get(day Date) (float64, bool) {
	i, found := slices.BinarySearchFunc(h.days, day, Date.Compare)
	if !found {
		return 0, false
	}
	return h.values[i], true
}

// ValueAsOf returns the value on a given day, or the most recent value before it.
func (h *History) ValueAsOf(day Date) (float64, bool) {
	i, found := slices.BinarySearchFunc(h.days, day, Date.Compare)
	if found {
		return h.values[i], true
	}
	if i == 0 {
		return 0, false
	}
	return h.values[i-1], true
}

// DropNaN returns a copy without NaN values.
func (h *History) DropNaN() *History {
	out := new(History)
	for i, v := range h.values {
		if !math.IsNaN(v) {
			out.days = append(out.days, h.days[i])
			out.values = append(out.values, v)
		}
	}
	return out
}

// Since returns the points on or after 'from'.
func (h *History) Since(from Date) *History {
	i, _ := slices.BinarySearchFunc(h.days, from, Date.Compare)
	return &History{days: slices.Clone(h.days[i:]), values: slices.Clone(h.values[i:])}
}

// Returns computes the percentage change between consecutive points, NaN values skipped.
// The result is dated on the later point of each pair.
func (h *History) Returns() *History {
	clean := h.DropNaN()
	out := new(History)
	for i := 1; i < len(clean.values); i++ {
		prev := clean.values[i-1]
		if prev == 0 {
			continue
		}
		out.days = append(out.days, clean.days[i])
		out.values = append(out.values, (clean.values[i]-prev)/prev*100)
	}
	return out
}

// Align returns the dates common to all histories, with non NaN values, and the matching values
// for each history in the same order.
func Align(histories ...*History) ([]Date, [][]float64) {
	if len(histories) == 0 {
		return nil, nil
	}
	var common []Date
	for on, v := range histories[0].Values() {
		if math.IsNaN(v) {
			continue
		}
		ok := true
		for _, other := range histories[1:] {
			if w, found := other.Get(on); !found || math.IsNaN(w) {
				ok = false
				break
			}
		}
		if ok {
			common = append(common, on)
		}
	}
	values := make([][]float64, len(histories))
	for i, h := range histories {
		values[i] = make([]float64, len(common))
		for j, on := range common {
			values[i][j], _ = h.Get(on)
		}
	}
	return common, values
}
