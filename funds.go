package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/fund"
)

// FundsFile is the registry of managed funds, by name.
const FundsFile = "managedFunds.json"

// FundTickerPrefix marks the synthetic ticker of a managed fund.
const FundTickerPrefix = "FUND:"

var ErrFundNotFound = errors.New("fund not found in portfolio")

// FundNAVs is the NAV source of managed funds. Ids are provider ids.
type FundNAVs interface {
	NAV(ctx context.Context, id string) (float64, error)
	History(ctx context.Context, id string, days int) ([]fund.Point, error)
}

// FundInfo is the registry entry of a fund.
type FundInfo struct {
	AvanzaID string `json:"avanza_id"`
	ISIN     string `json:"isin"`
	Currency string `json:"currency"`
}

// Fund is a mutual fund without a market ticker, held in fractional units. Its lots,
// sells and profit records work like those of a stock, with the NAV as price.
type Fund struct {
	*Stock
	Info FundInfo
}

var fileNameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_")

func fundBase(name string) string { return fileNameReplacer.Replace(name) }

// FundFileName is the file holding the unit lots of a fund.
func FundFileName(name string) string { return fundBase(name) + "_fund.json" }

// FundTransactionsFileName is the append-only ledger of a fund's buys and sells.
func FundTransactionsFileName(name string) string { return fundBase(name) + "_transactions.json" }

// FundTransaction is one entry of a fund ledger. Sells carry the consumed lot.
type FundTransaction struct {
	Type        string           `json:"type"` // buy or sell
	Date        date.Date        `json:"date"`
	DateDisplay string           `json:"date_display"`
	UID         string           `json:"uid"`
	Volume      decimal.Decimal  `json:"volume"`
	Price       decimal.Decimal  `json:"price"`
	Amount      decimal.Decimal  `json:"amount"`
	Fee         decimal.Decimal  `json:"fee"`
	Currency    string           `json:"currency"`
	BuyPrice    *decimal.Decimal `json:"buy_price,omitempty"`
	BuyDate     string           `json:"buy_date,omitempty"`
	Profit      *decimal.Decimal `json:"profit,omitempty"`
}

func (p *Portfolio) loadFunds() error {
	registry := make(map[string]FundInfo)
	if _, err := p.store.LoadJSON(FundsFile, &registry); err != nil {
		return err
	}
	for name, info := range registry {
		f, err := p.loadFund(name, info)
		if err != nil {
			p.log.Error().Err(err).Str("fund", name).Msg("failed to load fund")
			continue
		}
		p.funds[name] = f
	}
	return nil
}

func (p *Portfolio) loadFund(name string, info FundInfo) (*Fund, error) {
	if info.Currency == "" {
		info.Currency = Base
	}
	f := &Fund{Stock: &Stock{Name: name, Ticker: FundTickerPrefix + info.AvanzaID}, Info: info}
	if _, err := p.store.LoadJSON(FundFileName(name), &f.Lots); err != nil {
		return nil, err
	}
	f.setCurrency(info.Currency)
	return f, nil
}

func (p *Portfolio) saveFunds() error {
	registry := make(map[string]FundInfo, len(p.funds))
	for n, f := range p.funds {
		registry[n] = f.Info
	}
	return p.store.SaveJSON(FundsFile, registry)
}

func (p *Portfolio) saveFundLots(f *Fund) error {
	lots := f.Lots
	if lots == nil {
		lots = Lots{}
	}
	return p.store.SaveJSON(FundFileName(f.Name), lots)
}

// FundNames returns the managed fund names, sorted.
func (p *Portfolio) FundNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.funds))
	for n := range p.funds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fund returns a copy of the fund called name.
func (p *Portfolio) Fund(name string) (Fund, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.funds[name]
	if !ok {
		return Fund{}, fmt.Errorf("%w: %q", ErrFundNotFound, name)
	}
	s := *f.Stock
	s.Lots = slices.Clone(f.Lots)
	return Fund{Stock: &s, Info: f.Info}, nil
}

// AddFund registers a managed fund. Names are shared with stocks.
func (p *Portfolio) AddFund(name string, info FundInfo) error {
	name = strings.TrimSpace(name)
	info.AvanzaID = strings.TrimSpace(info.AvanzaID)
	info.ISIN = strings.ToUpper(strings.TrimSpace(info.ISIN))
	info.Currency = strings.ToUpper(strings.TrimSpace(info.Currency))
	if name == "" || info.AvanzaID == "" {
		return errors.New("a fund needs a name and an Avanza id")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stocks[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if _, ok := p.funds[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	for n, f := range p.funds {
		if f.Info.AvanzaID == info.AvanzaID {
			return fmt.Errorf("%w: %q is %q", ErrDuplicateTicker, info.AvanzaID, n)
		}
	}
	f, err := p.loadFund(name, info)
	if err != nil {
		return err
	}
	p.funds[name] = f
	if err := p.saveFunds(); err != nil {
		delete(p.funds, name)
		return err
	}
	p.log.Info().Str("fund", name).Str("avanza_id", info.AvanzaID).Str("isin", info.ISIN).Msg("added fund")
	return nil
}

// RemoveFund drops a fund with its lots and profits. The transaction ledger is kept.
func (p *Portfolio) RemoveFund(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.funds[name]; !ok {
		return fmt.Errorf("%w: %q", ErrFundNotFound, name)
	}
	for _, file := range []string{FundFileName(name), ProfitFileName(fundBase(name))} {
		if err := p.store.Remove(file); err != nil {
			p.log.Warn().Err(err).Str("fund", name).Str("file", file).Msg("cannot remove fund file")
		}
	}
	delete(p.funds, name)
	if err := p.saveFunds(); err != nil {
		return err
	}
	p.log.Info().Str("fund", name).Msg("removed fund")
	return nil
}

// BuyFundUnits records a purchase of units at nav, in the fund's currency, dated today.
func (p *Portfolio) BuyFundUnits(name string, units Quantity, nav, fee Money) error {
	if !units.IsPositive() {
		return ErrInvalidVolume
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.funds[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFundNotFound, name)
	}
	lot := NewLot(units, nav, p.today())
	if err := f.AddLot(lot); err != nil {
		return err
	}
	if err := p.saveFundLots(f); err != nil {
		f.Lots = f.Lots[:len(f.Lots)-1]
		return err
	}
	p.appendFundTransactions(name, FundTransaction{
		Type:   "buy",
		UID:    lot.UID,
		Volume: units.value,
		Price:  nav.Decimal(),
		Amount: nav.Decimal().Mul(units.value).Round(6),
		Fee:    fee.Decimal(),
	})
	p.log.Info().Str("fund", name).Stringer("units", units).Str("nav", nav.Decimal().String()).Msg("bought fund units")
	return nil
}

// SellFundUnits sells units at nav, oldest lots first, and returns the realized profit in
// the fund's currency.
func (p *Portfolio) SellFundUnits(name string, units Quantity, nav, fee Money) (Money, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.funds[name]
	if !ok {
		return Money{}, fmt.Errorf("%w: %q", ErrFundNotFound, name)
	}
	before := slices.Clone(f.Lots)
	records, profit, err := f.Sell(units, nav, p.today())
	if err != nil {
		return Money{}, err
	}
	if err := p.saveFundLots(f); err != nil {
		f.Lots = before
		return Money{}, err
	}
	if err := p.appendProfits(fundBase(name), records); err != nil {
		return profit, err
	}
	entries := make([]FundTransaction, len(records))
	for i, r := range records {
		buyPrice, gain := r.BuyPrice.Decimal(), r.Profit.Decimal()
		entries[i] = FundTransaction{
			Type:     "sell",
			UID:      r.UID,
			Volume:   r.Volume.value,
			Price:    r.SellPrice.Decimal(),
			Amount:   r.SellPrice.Decimal().Mul(r.Volume.value).Round(6),
			Fee:      fee.Decimal(),
			BuyPrice: &buyPrice,
			BuyDate:  r.BuyDate.LotString(),
			Profit:   &gain,
		}
	}
	p.appendFundTransactions(name, entries...)
	p.log.Info().Str("fund", name).Stringer("units", units).Str("profit", profit.Decimal().StringFixed(2)).Msg("sold fund units")
	return profit, nil
}

// appendFundTransactions adds entries to the ledger. The lot file is authoritative, so a
// ledger failure is only logged.
func (p *Portfolio) appendFundTransactions(name string, entries ...FundTransaction) {
	f := p.funds[name]
	today := p.today()
	for i := range entries {
		entries[i].Date = today
		entries[i].DateDisplay = today.LotString()
		entries[i].Currency = f.Currency
	}
	var ledger []FundTransaction
	if _, err := p.store.LoadJSON(FundTransactionsFileName(name), &ledger); err != nil {
		p.log.Error().Err(err).Str("fund", name).Msg("cannot read fund transactions")
		return
	}
	if err := p.store.SaveJSON(FundTransactionsFileName(name), append(ledger, entries...)); err != nil {
		p.log.Error().Err(err).Str("fund", name).Msg("cannot write fund transactions")
	}
}

// FundTransactions returns the ledger of a fund, oldest first.
func (p *Portfolio) FundTransactions(name string) ([]FundTransaction, error) {
	var ledger []FundTransaction
	if _, err := p.store.LoadJSON(FundTransactionsFileName(name), &ledger); err != nil {
		return nil, err
	}
	sort.SliceStable(ledger, func(i, j int) bool { return ledger[i].Date.Before(ledger[j].Date) })
	return ledger, nil
}

// FundDetail is the position of a fund valued at its latest NAV. Value, Cost and Gain
// are in SEK, NAV and AvgPrice in the fund's currency. Changes are percentages, NaN when
// unknown.
type FundDetail struct {
	Name     string
	Info     FundInfo
	Units    Quantity
	AvgPrice Money
	NAV      Money
	Value    Money
	Cost     Money
	Gain     Money
	Change1D float64
	Change1M float64
	Err      error // set when no NAV is available
}

// FundDetails values every fund, sorted by name.
func (p *Portfolio) FundDetails(ctx context.Context) []FundDetail {
	var out []FundDetail
	for _, name := range p.FundNames() {
		f, err := p.Fund(name)
		if err != nil {
			continue
		}
		out = append(out, p.fundDetail(ctx, f))
	}
	return out
}

func (p *Portfolio) fundDetail(ctx context.Context, f Fund) FundDetail {
	d := FundDetail{
		Name:     f.Name,
		Info:     f.Info,
		Units:    f.TotalShares(),
		AvgPrice: f.AveragePrice(),
		Change1D: math.NaN(),
		Change1M: math.NaN(),
	}
	if p.opts.Funds == nil {
		d.Err = errors.New("no fund NAV source")
		return d
	}
	rate, err := p.rate(ctx, f.Currency)
	if err != nil {
		d.Err = err
		return d
	}
	nav, err := p.opts.Funds.NAV(ctx, f.Info.AvanzaID)
	if err != nil {
		d.Err = err
		return d
	}
	d.NAV = M(nav, f.Currency)
	d.Value = d.NAV.Mul(d.Units).Scale(rate).In(Base)
	d.Cost = f.Lots.Cost().Scale(rate).In(Base)
	d.Gain = d.Value.Sub(d.Cost)

	points, err := p.opts.Funds.History(ctx, f.Info.AvanzaID, p.opts.FundHistoryDays)
	if err != nil {
		p.log.Debug().Err(err).Str("fund", f.Name).Msg("no NAV history")
		return d
	}
	today := p.today()
	d.Change1D = navChange(nav, points, today, 1)
	d.Change1M = navChange(nav, points, today, 30)
	return d
}

// navChange is the percentage change from the last point at least days old to nav.
func navChange(nav float64, points []fund.Point, today date.Date, days int) float64 {
	cutoff := today.Add(-days)
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Date.After(cutoff) {
			continue
		}
		if points[i].NAV == 0 {
			return math.NaN()
		}
		return (nav/points[i].NAV - 1) * 100
	}
	return math.NaN()
}
