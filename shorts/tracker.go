package shorts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// PositionsFile is the name of the matched positions file in the portfolio directory.
const PositionsFile = "short_positions.json"

// MaxAge is the age after which the positions file is refreshed.
const MaxAge = 24 * time.Hour

// ErrNoData is returned when no positions file has been written yet.
var ErrNoData = errors.New("no short selling data available")

// Fetcher returns the published feed.
type Fetcher interface {
	Fetch(ctx context.Context, force bool) (*Feed, error)
}

// Tracker matches the feed with the portfolio and persists the result.
type Tracker struct {
	dir          string
	feed         Fetcher
	highInterest float64
	maxAge       time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewTracker returns a Tracker writing into dir. Stocks above highInterest percent are
// flagged in the summary.
func NewTracker(dir string, feed Fetcher, highInterest float64, log zerolog.Logger) *Tracker {
	if highInterest <= 0 {
		highInterest = 5
	}
	return &Tracker{dir: dir, feed: feed, highInterest: highInterest, maxAge: MaxAge, now: time.Now, log: log}
}

// SetMaxAge changes the age after which the positions file is refreshed.
func (t *Tracker) SetMaxAge(d time.Duration) {
	if d > 0 {
		t.maxAge = d
	}
}

func (t *Tracker) path() string { return filepath.Join(t.dir, PositionsFile) }

// Load reads the positions file.
func (t *Tracker) Load() (*Data, error) {
	var d Data
	if err := readJSON(t.path(), &d); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("read %s: %w", PositionsFile, err)
	}
	return &d, nil
}

// NeedsUpdate reports whether the positions file is missing, older than a day or was
// computed for another set of Nordic stocks.
func (t *Tracker) NeedsUpdate(portfolio map[string]string) bool {
	st, err := os.Stat(t.path())
	if err != nil {
		return true
	}
	if t.now().Sub(st.ModTime()) > t.maxAge {
		t.log.Info().Dur("max_age", t.maxAge).Msg("short selling data is out of date")
		return true
	}
	d, err := t.Load()
	if err != nil {
		return true
	}
	current := slices.Sorted(maps.Keys(Nordic(portfolio)))
	tracked := slices.Sorted(maps.Keys(d.PortfolioTickers))
	if !slices.Equal(current, tracked) {
		t.log.Info().Msg("portfolio changed, short selling data needs update")
		return true
	}
	return false
}

// UpdateStats describes an update.
type UpdateStats struct {
	Updated              bool
	TotalPositions       int
	PositionsWithHolders int
	PortfolioMatches     int
	NordicStocks         int
	Source               string
}

// Update fetches the feed, matches it with the Nordic stocks of portfolio (name to ticker)
// and writes the positions file. Without force an up to date file is kept.
func (t *Tracker) Update(ctx context.Context, portfolio map[string]string, force bool) (UpdateStats, error) {
	if !force && !t.NeedsUpdate(portfolio) {
		return UpdateStats{}, nil
	}
	feed, err := t.feed.Fetch(ctx, force)
	if err != nil {
		return UpdateStats{}, err
	}
	nordic := Nordic(portfolio)
	matches := MatchPortfolio(feed.Positions, nordic)
	last := feed.LastUpdated
	if last == "" {
		last = t.now().Format("2006-01-02T15:04:05")
	}
	d := Data{
		LastUpdated:       last,
		OfficialPositions: feed.Positions,
		PortfolioTickers:  nordic,
		PortfolioMatches:  matches,
	}
	if d.OfficialPositions == nil {
		d.OfficialPositions = []Position{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return UpdateStats{}, err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return UpdateStats{}, err
	}
	if err := writeFile(t.path(), data); err != nil {
		return UpdateStats{}, fmt.Errorf("write %s: %w", PositionsFile, err)
	}

	stats := UpdateStats{
		Updated:          true,
		TotalPositions:   len(feed.Positions),
		PortfolioMatches: len(matches),
		NordicStocks:     len(nordic),
		Source:           feed.UpdateSource,
	}
	for _, p := range feed.Positions {
		if len(p.IndividualHolders) > 0 {
			stats.PositionsWithHolders++
		}
	}
	t.log.Info().Int("positions", stats.TotalPositions).Int("matches", stats.PortfolioMatches).Msg("short selling data updated")
	return stats, nil
}

// ForStock returns the short position of ticker. A portfolio match is completed with the
// holders of the matching official position.
func (t *Tracker) ForStock(ticker string) (Match, bool, error) {
	d, err := t.Load()
	if err != nil {
		return Match{}, false, err
	}
	if m, ok := d.PortfolioMatches[ticker]; ok {
		for _, p := range d.OfficialPositions {
			if p.CompanyName == m.CompanyName {
				m.IndividualHolders = p.IndividualHolders
				m.ThresholdCrossed = p.ThresholdCrossed
				if m.ThresholdCrossed == "" {
					m.ThresholdCrossed = "0.5%"
				}
				break
			}
		}
		return m, true, nil
	}
	for _, p := range d.OfficialPositions {
		if p.Ticker == ticker {
			return Match{
				CompanyName:       p.CompanyName,
				Percentage:        p.Percentage,
				Date:              p.Date,
				Holder:            p.Holder,
				Market:            p.Market,
				Quality:           "ticker",
				IndividualHolders: p.IndividualHolders,
				ThresholdCrossed:  p.ThresholdCrossed,
			}, true, nil
		}
	}
	return Match{}, false, nil
}

// StockShort is a line of the portfolio summary.
type StockShort struct {
	Ticker     string
	Company    string
	Percentage float64
	Date       string
}

// Summary is the short selling overview of the portfolio.
type Summary struct {
	LastUpdated  string
	Tracked      int
	WithData     int
	Positions    []StockShort // sorted by percentage, highest first
	HighInterest []StockShort
	Threshold    float64
}

// Summary returns the short positions of the portfolio stocks.
func (t *Tracker) Summary() (*Summary, error) {
	d, err := t.Load()
	if err != nil {
		return nil, err
	}
	s := &Summary{
		LastUpdated: d.LastUpdated,
		Tracked:     len(d.PortfolioTickers),
		WithData:    len(d.PortfolioMatches),
		Threshold:   t.highInterest,
	}
	for ticker, m := range d.PortfolioMatches {
		line := StockShort{Ticker: ticker, Company: m.CompanyName, Percentage: m.Percentage, Date: m.Date}
		s.Positions = append(s.Positions, line)
		if m.Percentage > t.highInterest {
			s.HighInterest = append(s.HighInterest, line)
		}
	}
	byPercentage := func(ls []StockShort) {
		sort.SliceStable(ls, func(i, j int) bool {
			if ls[i].Percentage != ls[j].Percentage {
				return ls[i].Percentage > ls[j].Percentage
			}
			return ls[i].Ticker < ls[j].Ticker
		})
	}
	byPercentage(s.Positions)
	byPercentage(s.HighInterest)
	return s, nil
}

// HolderPosition is one position of a holder.
type HolderPosition struct {
	CompanyName  string
	Ticker       string
	Percentage   float64
	Date         string
	CompanyTotal float64
}

// ByHolder groups the individual positions by holder, each list sorted by percentage.
func (t *Tracker) ByHolder() (map[string][]HolderPosition, error) {
	d, err := t.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]HolderPosition)
	for _, p := range d.OfficialPositions {
		for _, h := range p.IndividualHolders {
			out[h.Name] = append(out[h.Name], HolderPosition{
				CompanyName:  p.CompanyName,
				Ticker:       p.Ticker,
				Percentage:   h.Percentage,
				Date:         h.Date,
				CompanyTotal: p.Percentage,
			})
		}
	}
	for _, ps := range out {
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].Percentage > ps[j].Percentage })
	}
	return out, nil
}
