package portfolio

import (
	"context"
	"math"

	"github.com/h4jen/yspy/date"
)

// Valuer prices one share of a ledger stock, by name, on a past day. Prices are in SEK.
type Valuer interface {
	PriceOn(ctx context.Context, stock string, on date.Date) (Money, bool)
}

// HeldLot is an open position rebuilt from the ledger.
type HeldLot struct {
	Volume Quantity
	Price  Money // SEK per share
}

// replayed is the state of the ledger on a given day.
type replayed struct {
	cash     Money
	realized Money
	net      Money
	holdings map[string][]HeldLot
}

// replay applies the events dated on or before on (all of them if on is zero), skipping
// the excluded ids. Sells consume the oldest lots first.
func replay(events []CapitalEvent, on date.Date, exclude map[string]bool) replayed {
	r := replayed{cash: SEK(0), realized: SEK(0), net: SEK(0), holdings: make(map[string][]HeldLot)}
	for _, e := range events {
		if exclude[e.ID] {
			continue
		}
		if !on.IsZero() && e.Date.After(on) {
			break
		}
		r.cash = r.cash.Add(e.cashEffect())
		switch {
		case e.Type.IsFlow():
			r.net = r.net.Add(e.Amount)
		case e.Type == Buy:
			r.holdings[e.Stock] = append(r.holdings[e.Stock], HeldLot{Volume: e.Volume, Price: e.Price})
		case e.Type == Sell:
			r.realized = r.realized.Add(e.RealizedProfit)
			toSell := e.Volume
			lots := r.holdings[e.Stock]
			for len(lots) > 0 && toSell.IsPositive() {
				if !lots[0].Volume.GreaterThan(toSell) {
					toSell = toSell.Sub(lots[0].Volume)
					lots = lots[1:]
					continue
				}
				lots[0].Volume = lots[0].Volume.Sub(toSell)
				toSell = Q(0)
			}
			r.holdings[e.Stock] = lots
		}
	}
	return r
}

// cost is the cost basis of the rebuilt holdings.
func (r replayed) cost() Money {
	total := SEK(0)
	for _, lots := range r.holdings {
		for _, l := range lots {
			total = total.Add(l.Price.Mul(l.Volume))
		}
	}
	return total
}

// value prices the rebuilt holdings on a day, using the buy price when valuer has no
// price.
func (r replayed) value(ctx context.Context, on date.Date, valuer Valuer) Money {
	total := SEK(0)
	for stock, lots := range r.holdings {
		var (
			price Money
			ok    bool
		)
		if valuer != nil {
			price, ok = valuer.PriceOn(ctx, stock, on)
		}
		for _, l := range lots {
			p := l.Price
			if ok {
				p = price.In(Base)
			}
			total = total.Add(p.Mul(l.Volume))
		}
	}
	return total
}

// CostBasis is the cost of the holdings rebuilt from the ledger.
type CostBasis struct {
	Total    Money
	Holdings map[string][]HeldLot
}

// FIFOCostBasis replays every buy and sell, oldest lot sold first.
func (t *CapitalTracker) FIFOCostBasis() CostBasis {
	t.mu.Lock()
	r := replay(t.chronological(), date.Date{}, nil)
	t.mu.Unlock()
	return CostBasis{Total: r.cost(), Holdings: r.holdings}
}

// ValueAt estimates the portfolio value (cash and stocks) on a past day, leaving out
// the events whose id is in exclude.
func (t *CapitalTracker) ValueAt(ctx context.Context, on date.Date, valuer Valuer, exclude ...string) Money {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	t.mu.Lock()
	r := replay(t.chronological(), on, skip)
	t.mu.Unlock()
	return r.cash.Add(r.value(ctx, on, valuer))
}

// SimpleReturn is the gain over the net capital input.
type SimpleReturn struct {
	Amount  Money
	Percent float64
	Value   Money
	Net     Money
}

// SimpleReturn compares value with the net capital input. It is zero when nothing was
// deposited.
func (t *CapitalTracker) SimpleReturn(value Money) SimpleReturn {
	net := t.Totals().NetCapitalInput
	value = value.In(Base)
	if net.IsZero() {
		return SimpleReturn{Amount: SEK(0), Value: value, Net: net}
	}
	gain := value.Sub(net)
	return SimpleReturn{
		Amount:  gain,
		Percent: gain.Float() / net.Float() * 100,
		Value:   value,
		Net:     net,
	}
}

// Return calculation methods.
const (
	MethodNone             = "none"
	MethodInsufficientData = "insufficient_data"
	MethodSimpleFallback   = "simple_return_fallback"
	MethodTrueTWR          = "true_twr"
)

// TimeWeightedReturn is the performance independent of deposits and withdrawals.
type TimeWeightedReturn struct {
	Percent    float64
	Annualized float64
	Days       int
	Periods    int
	Method     string
}

// TimeWeightedReturn splits the history at each deposit or withdrawal, estimates the
// value just before each flow with ValueAt and chains the sub-period ratios, the last one
// ending at value. Without a valuer it falls back to the simple return.
func (t *CapitalTracker) TimeWeightedReturn(ctx context.Context, value Money, valuer Valuer) TimeWeightedReturn {
	t.mu.Lock()
	var flows []CapitalEvent
	for _, e := range t.chronological() {
		if e.Type.IsFlow() {
			flows = append(flows, e)
		}
	}
	t.mu.Unlock()
	if len(flows) == 0 {
		return TimeWeightedReturn{Method: MethodNone}
	}
	current := value.Float()
	days := t.today().DaysSince(flows[0].Date)

	if valuer == nil {
		net := t.Totals().NetCapitalInput.Float()
		if net == 0 {
			return TimeWeightedReturn{Method: MethodInsufficientData}
		}
		r := TimeWeightedReturn{Percent: (current - net) / net * 100, Days: days, Method: MethodSimpleFallback}
		if days > 0 {
			r.Annualized = (math.Pow(current/net, 365/float64(days)) - 1) * 100
		}
		return r
	}

	cumulative, periods := 1.0, 0
	start := flows[0].Amount.Float()
	for _, flow := range flows[1:] {
		before := t.ValueAt(ctx, flow.Date, valuer, flow.ID).Float()
		// An empty portfolio has no return over the period.
		if start > 0 {
			cumulative *= before / start
			periods++
		}
		start = before + flow.Amount.Float()
	}
	if start > 0 {
		cumulative *= current / start
		periods++
	}
	r := TimeWeightedReturn{
		Percent: (cumulative - 1) * 100,
		Days:    days,
		Periods: periods,
		Method:  MethodTrueTWR,
	}
	r.Annualized = r.Percent
	if days > 0 {
		r.Annualized = (math.Pow(cumulative, 365/float64(days)) - 1) * 100
	}
	return r
}

// CapitalSummary is the complete capital report of the portfolio.
type CapitalSummary struct {
	TotalDeposits       Money
	TotalWithdrawals    Money
	NetCapitalInput     Money
	CashBalance         Money
	StockValueAtCost    Money
	StockValueCurrent   Money
	PortfolioValueTotal Money
	UnrealizedGain      Money
	RealizedGain        Money
	TotalGain           Money
	SimpleReturn        Money
	SimpleReturnPercent float64
	TWRPercent          float64
	AnnualizedPercent   float64
	DaysInvested        int
	YearsInvested       float64
	Method              string
	NumEvents           int
	LastUpdated         date.Date
}

// CapitalSummary combines the ledger totals with the current values. costBasis is the
// cost of the current holdings; when nil the buys minus sells of the ledger are used.
func (t *CapitalTracker) CapitalSummary(ctx context.Context, value, stockValue Money, costBasis *Money, valuer Valuer) CapitalSummary {
	totals := t.Totals()
	simple := t.SimpleReturn(value)
	twr := t.TimeWeightedReturn(ctx, value, valuer)
	cost := totals.CurrentInvested
	if costBasis != nil {
		cost = costBasis.In(Base)
	}
	stockValue = stockValue.In(Base)
	unrealized := stockValue.Sub(cost)
	return CapitalSummary{
		TotalDeposits:       totals.TotalDeposits,
		TotalWithdrawals:    totals.TotalWithdrawals,
		NetCapitalInput:     totals.NetCapitalInput,
		CashBalance:         totals.CurrentCash,
		StockValueAtCost:    cost,
		StockValueCurrent:   stockValue,
		PortfolioValueTotal: value.In(Base),
		UnrealizedGain:      unrealized,
		RealizedGain:        totals.RealizedProfitTotal,
		TotalGain:           unrealized.Add(totals.RealizedProfitTotal),
		SimpleReturn:        simple.Amount,
		SimpleReturnPercent: simple.Percent,
		TWRPercent:          twr.Percent,
		AnnualizedPercent:   twr.Annualized,
		DaysInvested:        twr.Days,
		YearsInvested:       float64(twr.Days) / 365,
		Method:              twr.Method,
		NumEvents:           len(t.Events()),
		LastUpdated:         t.today(),
	}
}

// TimelinePoint is the state of the portfolio on one day.
type TimelinePoint struct {
	Date             date.Date
	Cash             Money
	StocksValue      Money
	TotalValue       Money
	NetCapital       Money
	RealizedProfit   Money
	UnrealizedProfit Money
	TotalProfit      Money
	ReturnPercent    float64
}

// Timeline values the portfolio at each day with capital events, and today.
func (t *CapitalTracker) Timeline(ctx context.Context, valuer Valuer) []TimelinePoint {
	t.mu.Lock()
	events := t.chronological()
	t.mu.Unlock()
	if len(events) == 0 {
		return nil
	}
	var days []date.Date
	for _, e := range events {
		if len(days) == 0 || days[len(days)-1] != e.Date {
			days = append(days, e.Date)
		}
	}
	if today := t.today(); days[len(days)-1].Before(today) {
		days = append(days, today)
	}
	points := make([]TimelinePoint, 0, len(days))
	for _, day := range days {
		r := replay(events, day, nil)
		stocks := r.value(ctx, day, valuer)
		unrealized := stocks.Sub(r.cost())
		p := TimelinePoint{
			Date:             day,
			Cash:             r.cash,
			StocksValue:      stocks,
			TotalValue:       r.cash.Add(stocks),
			NetCapital:       r.net,
			RealizedProfit:   r.realized,
			UnrealizedProfit: unrealized,
			TotalProfit:      unrealized.Add(r.realized),
		}
		if r.net.IsPositive() {
			p.ReturnPercent = p.TotalProfit.Float() / r.net.Float() * 100
		}
		points = append(points, p)
	}
	return points
}
