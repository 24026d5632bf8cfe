package history

import (
	"context"
	"slices"

	"github.com/h4jen/yspy/yahoo"
)

// Report summarizes a refresh run.
type Report struct {
	Succeeded []string
	Fallback  []string // saved with warnings, or stale data kept
	Failed    []string
}

// Updated returns the tickers whose data changed or was kept usable.
func (r Report) Updated() []string { return append(slices.Clone(r.Succeeded), r.Fallback...) }

// BulkRefresh fetches the default period of all tickers in one bulk call and saves every
// frame without critical issues.
func (m *Manager) BulkRefresh(ctx context.Context, tickers []string) Report {
	var rep Report
	if len(tickers) == 0 {
		return rep
	}
	m.log.Info().Int("tickers", len(tickers)).Msg("bulk refreshing historical data")
	frames, err := m.BulkFetch(yahoo.Fresh(ctx), tickers, m.opts.Period, m.opts.Interval)
	if err != nil {
		m.log.Warn().Err(err).Msg("bulk fetch incomplete")
	}
	for _, t := range tickers {
		f, ok := frames[t]
		if !ok || f.Empty() {
			rep.Failed = append(rep.Failed, t)
			continue
		}
		f, err := m.toSEK(ctx, t, f)
		if err != nil {
			m.log.Error().Err(err).Str("ticker", t).Msg("cannot convert to SEK")
			rep.Failed = append(rep.Failed, t)
			continue
		}
		issues := Quality(f)
		if !m.save(t, m.Path(t, m.opts.Period, m.opts.Interval, true), f) {
			rep.Failed = append(rep.Failed, t)
			continue
		}
		m.remember(key(t, m.opts.Period, m.opts.Interval, true), f)
		if len(issues) > 0 {
			rep.Fallback = append(rep.Fallback, t)
		} else {
			rep.Succeeded = append(rep.Succeeded, t)
		}
	}
	m.Invalidate(rep.Updated())
	m.log.Info().
		Int("succeeded", len(rep.Succeeded)).
		Int("warnings", len(rep.Fallback)).
		Strs("failed", rep.Failed).
		Msg("bulk refresh complete")
	return rep
}

// Update refreshes tickers one by one. Problematic tickers are force refreshed first.
func (m *Manager) Update(ctx context.Context, tickers []string) Report {
	var rep Report
	if len(tickers) == 0 {
		return rep
	}
	problematic := m.ProblematicTickers(tickers)
	for _, t := range problematic {
		if ctx.Err() != nil {
			break
		}
		_ = m.ForceRefresh(ctx, t)
	}

	for _, t := range tickers {
		if ctx.Err() != nil {
			rep.Failed = append(rep.Failed, t)
			continue
		}
		f, err := m.Load(ctx, t, m.opts.Period, m.opts.Interval, true)
		switch {
		case err != nil:
			m.log.Error().Err(err).Str("ticker", t).Msg("historical update failed")
			rep.Failed = append(rep.Failed, t)
		case len(Quality(f)) > 0 || m.IsStale(t):
			rep.Fallback = append(rep.Fallback, t)
		default:
			rep.Succeeded = append(rep.Succeeded, t)
		}
	}

	if len(problematic) > 0 {
		if still := m.ProblematicTickers(problematic); len(still) > 0 {
			m.log.Warn().Strs("tickers", still).Msg("still problematic after refresh")
		}
	}
	m.Invalidate(rep.Updated())
	m.log.Info().
		Int("total", len(tickers)).
		Int("succeeded", len(rep.Succeeded)).
		Int("fallback", len(rep.Fallback)).
		Int("failed", len(rep.Failed)).
		Msg("historical update summary")
	return rep
}
