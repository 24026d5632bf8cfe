package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/h4jen/yspy/date"
)

// lastTradingDay returns the most recent weekday strictly before day.
func lastTradingDay(day date.Date) date.Date {
	d := day.Add(-1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.Add(-1)
	}
	return d
}

// CloseDaysAgo returns the SEK close n trading rows before the latest one.
//
// A fresh cache file is used first. When yesterday's session is missing from it, or the
// value is NaN for a recent row, the close is rebuilt from intraday bars. Then the bulk
// frame of the day is used, then a fetch of the default period, then intraday bars.
func (m *Manager) CloseDaysAgo(ctx context.Context, ticker string, n int) (float64, error) {
	path := m.Path(ticker, m.opts.Period, m.opts.Interval, true)
	if !m.fileStale(path) {
		if f, err := loadCSV(path); err == nil && !f.Empty() {
			if n == 1 && !f.Has(lastTradingDay(date.Of(m.now()))) {
				if v, err := m.intradayClose(ctx, ticker, n); err == nil {
					return v, nil
				}
			}
			if f.Len() >= n+1 {
				if v, ok := f.Close(n); ok {
					return v, nil
				}
				if n <= 7 {
					if v, err := m.intradayClose(ctx, ticker, n); err == nil {
						return v, nil
					}
				}
				return 0, fmt.Errorf("%s close %d days ago: %w", ticker, n, ErrNoData)
			}
		}
	}

	m.mu.Lock()
	bulk := m.bulk[ticker]
	fresh := m.bulkOn == m.today()
	m.mu.Unlock()
	if fresh && !bulk.Empty() {
		if v, ok := bulk.Close(n); ok {
			k, err := m.factor(ctx, ticker)
			if err != nil {
				return 0, err
			}
			return v * k, nil
		}
		return 0, fmt.Errorf("%s close %d days ago: %w", ticker, n, ErrNoData)
	}

	f, err := m.fetch(ctx, ticker, m.opts.Period, m.opts.Interval)
	if err == nil {
		m.mu.Lock()
		if m.bulkOn != m.today() {
			m.bulk = make(map[string]*Frame)
			m.bulkOn = m.today()
		}
		m.bulk[ticker] = f
		m.mu.Unlock()
		if v, ok := f.Close(n); ok {
			k, err := m.factor(ctx, ticker)
			if err != nil {
				return 0, err
			}
			return v * k, nil
		}
	}
	return m.intradayClose(ctx, ticker, n)
}

// CloseDaysAgoNative is CloseDaysAgo in the ticker's own currency, price scale kept.
func (m *Manager) CloseDaysAgoNative(ctx context.Context, ticker string, n int) (float64, error) {
	v, err := m.CloseDaysAgo(ctx, ticker, n)
	if err != nil {
		return 0, err
	}
	r, err := m.rates.Rate(ctx, m.rates.Currency(ticker))
	if err != nil || r == 0 {
		return v, err
	}
	return v / r, nil
}

// intradayClose rebuilds a daily close from the last intraday bar of the session.
// Minute bars are used within a week, hourly bars beyond.
func (m *Manager) intradayClose(ctx context.Context, ticker string, n int) (float64, error) {
	today := date.Of(m.now())
	target := today.Add(-n)
	for target.Weekday() == time.Saturday || target.Weekday() == time.Sunday {
		target = target.Add(-1)
		n++
	}
	span, interval := "7d", "1m"
	if today.DaysSince(target) > 7 {
		span, interval = "14d", "1h"
	}
	m.record()
	bars, err := m.src.Chart(ctx, ticker, span, interval)
	if err != nil {
		return 0, fmt.Errorf("intraday %s: %w", ticker, err)
	}

	type session struct {
		day    date.Date
		close  float64
		volume float64
	}
	var days []session
	for _, b := range bars {
		if math.IsNaN(b.Close) {
			continue
		}
		if len(days) == 0 || days[len(days)-1].day != b.Date {
			days = append(days, session{day: b.Date})
		}
		s := &days[len(days)-1]
		s.close = b.Close
		if !math.IsNaN(b.Volume) {
			s.volume += b.Volume
		}
	}

	k, err := m.factor(ctx, ticker)
	if err != nil {
		return 0, err
	}
	for _, s := range days {
		if s.day == target && s.volume > 0 {
			return s.close * k, nil
		}
	}
	if len(days) >= n+1 {
		return days[len(days)-1-n].close * k, nil
	}
	return 0, fmt.Errorf("intraday %s on %s: %w", ticker, target, ErrNoData)
}
