package shorts

import (
	"context"
	"maps"
	"math"
	"slices"
	"time"
)

// Trend directions.
const (
	NoData     = "no_data"
	Stable     = "stable"
	Up         = "up"
	Down       = "down"
	StrongUp   = "strong_up"
	StrongDown = "strong_down"
)

// StrongChange is the change in percentage points above which a trend is strong.
const StrongChange = 0.5

var arrows = map[string]string{
	NoData:     "?",
	Stable:     "→",
	Up:         "↑",
	Down:       "↓",
	StrongUp:   "⬆",
	StrongDown: "⬇",
}

// Trend compares the latest short percentage of a company with the one lookback days ago.
type Trend struct {
	Direction string
	Arrow     string
	Change    float64
	Current   float64
	Past      float64
	PastDate  string
}

// Companies returns the companies with history in the feed, sorted.
func (t *Tracker) Companies(ctx context.Context) ([]string, error) {
	feed, err := t.feed.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(feed.Historical)), nil
}

// History returns the daily short percentages of company over the last days, by ISO date.
func (t *Tracker) History(ctx context.Context, company string, days int) (map[string]float64, error) {
	feed, err := t.feed.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	h, ok := feed.Historical[company]
	if !ok {
		return nil, nil
	}
	cutoff := t.now().AddDate(0, 0, -days).Format(time.DateOnly)
	out := make(map[string]float64)
	for day, v := range h.History {
		if day >= cutoff {
			out[day] = v.Percentage
		}
	}
	return out, nil
}

// Trend returns the short trend of company. Changes below threshold are stable.
func (t *Tracker) Trend(ctx context.Context, company string, lookback int, threshold float64) (Trend, error) {
	history, err := t.History(ctx, company, lookback+5)
	if err != nil {
		return Trend{}, err
	}
	return trend(history, t.now().AddDate(0, 0, -lookback), threshold), nil
}

func trend(history map[string]float64, target time.Time, threshold float64) Trend {
	if len(history) < 2 {
		return Trend{Direction: NoData, Arrow: arrows[NoData]}
	}
	days := slices.Sorted(maps.Keys(history))
	current := history[days[len(days)-1]]

	// closest day on or before the target, else the oldest day
	pastDay := days[0]
	limit := target.Format(time.DateOnly)
	for i := len(days) - 1; i >= 0; i-- {
		if days[i] <= limit {
			pastDay = days[i]
			break
		}
	}
	past := history[pastDay]
	change := current - past

	dir := Stable
	switch {
	case math.Abs(change) < threshold:
	case change >= StrongChange:
		dir = StrongUp
	case change > 0:
		dir = Up
	case change <= -StrongChange:
		dir = StrongDown
	default:
		dir = Down
	}
	return Trend{Direction: dir, Arrow: arrows[dir], Change: change, Current: current, Past: past, PastDate: pastDay}
}
