package portfolio

import (
	"context"
	"time"

	"github.com/h4jen/yspy/history"
	"github.com/h4jen/yspy/scheduler"
)

// UpdateStats reports the live and historical update activity.
type UpdateStats struct {
	BulkUpdates    int
	LastBulkUpdate time.Time
	APICalls       int
	LastAPICall    time.Time

	ContinuousUpdates bool
	UpdateInterval    time.Duration
	StaleThreshold    time.Duration
	LastRefresh       time.Time
	RefreshError      string

	StaleCount   int
	StaleTickers []string // the first five
}

// UpdateStats collects the update counters.
func (p *Portfolio) UpdateStats() UpdateStats {
	st := UpdateStats{
		UpdateInterval: p.opts.UpdateInterval,
		StaleThreshold: p.opts.StaleThreshold,
	}
	st.BulkUpdates, st.LastBulkUpdate = p.quotes.Stats()
	st.APICalls, st.LastAPICall = p.hist.CallStats()
	if job, ok := p.sched.Status(scheduler.HistoricalJobName); ok {
		p.mu.RLock()
		st.ContinuousUpdates = p.started
		p.mu.RUnlock()
		st.LastRefresh = job.LastRun
		st.RefreshError = job.LastError
	}
	stale := p.hist.StaleTickers(p.Tickers())
	st.StaleCount = len(stale)
	if len(stale) > 5 {
		stale = stale[:5]
	}
	st.StaleTickers = stale
	return st
}

// HistoricalProgress returns how many tickers finished their initial historical load.
func (p *Portfolio) HistoricalProgress() (done, total int) {
	p.progress.Lock()
	defer p.progress.Unlock()
	for _, ok := range p.progress.done {
		if ok {
			done++
		}
	}
	return done, len(p.progress.done) + len(p.progress.pending)
}

// Refresh fetches again the historical data of tickers, all of them when empty,
// refills the bulk frames and drops the cached prices table.
func (p *Portfolio) Refresh(ctx context.Context, tickers ...string) history.Report {
	if len(tickers) == 0 {
		tickers = p.Tickers()
	}
	rep := p.hist.BulkRefresh(ctx, tickers)
	p.ensureBulk(ctx)
	return rep
}
