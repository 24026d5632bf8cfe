package scheduler

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/h4jen/yspy/history"
	"github.com/h4jen/yspy/shorts"
)

// Job names.
const (
	HistoricalJobName = "historical-refresh"
	ShortsJobName     = "shorts-refresh"
)

// Historical is the part of the historical data manager used by the refresh job.
type Historical interface {
	StaleTickers(tickers []string) []string
	ProblematicTickers(tickers []string) []string
	Update(ctx context.Context, tickers []string) history.Report
}

// HistoricalJob refreshes stale tickers on every run and problematic ones every
// ProblemEvery runs.
type HistoricalJob struct {
	hist         Historical
	tickers      func() []string
	problemEvery int
	log          zerolog.Logger

	runs int
	last history.Report
}

// NewHistoricalJob returns the refresh job over the tickers returned by tickers.
func NewHistoricalJob(hist Historical, tickers func() []string, problemEvery int, log zerolog.Logger) *HistoricalJob {
	if problemEvery <= 0 {
		problemEvery = 5
	}
	return &HistoricalJob{hist: hist, tickers: tickers, problemEvery: problemEvery, log: log}
}

func (j *HistoricalJob) Name() string { return HistoricalJobName }

// Run refreshes the tickers needing it. It fails when every refreshed ticker failed.
func (j *HistoricalJob) Run(ctx context.Context) error {
	j.runs++
	all := j.tickers()
	todo := j.hist.StaleTickers(all)
	if j.runs%j.problemEvery == 0 {
		for _, t := range j.hist.ProblematicTickers(all) {
			if !slices.Contains(todo, t) {
				todo = append(todo, t)
			}
		}
	}
	if len(todo) == 0 {
		j.log.Debug().Int("run", j.runs).Msg("historical data is current")
		j.last = history.Report{}
		return nil
	}
	j.log.Info().Int("run", j.runs).Strs("tickers", todo).Msg("refreshing historical data")
	j.last = j.hist.Update(ctx, todo)
	if len(j.last.Failed) == len(todo) {
		return fmt.Errorf("historical refresh failed for %d tickers", len(todo))
	}
	return nil
}

// Last returns the report of the last run.
func (j *HistoricalJob) Last() history.Report { return j.last }

// Shorts is the part of the short-selling tracker used by the refresh job.
type Shorts interface {
	NeedsUpdate(portfolio map[string]string) bool
	Update(ctx context.Context, portfolio map[string]string, force bool) (shorts.UpdateStats, error)
}

// ShortsJob refreshes short-selling data for the stocks returned by portfolio (name to
// ticker).
type ShortsJob struct {
	shorts    Shorts
	portfolio func() map[string]string
	log       zerolog.Logger
}

// NewShortsJob returns the short-selling refresh job.
func NewShortsJob(tracker Shorts, portfolio func() map[string]string, log zerolog.Logger) *ShortsJob {
	return &ShortsJob{shorts: tracker, portfolio: portfolio, log: log}
}

func (j *ShortsJob) Name() string { return ShortsJobName }

// Run updates the data when the tracker says it is out of date.
func (j *ShortsJob) Run(ctx context.Context) error {
	p := j.portfolio()
	if !j.shorts.NeedsUpdate(p) {
		j.log.Debug().Msg("short selling data is current")
		return nil
	}
	stats, err := j.shorts.Update(ctx, p, false)
	if err != nil {
		return fmt.Errorf("update short selling data: %w", err)
	}
	j.log.Info().Int("matches", stats.PortfolioMatches).Int("positions", stats.TotalPositions).Msg("short selling refresh done")
	return nil
}
