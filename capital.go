package portfolio

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h4jen/yspy/date"
	"github.com/rs/zerolog"
)

// CapitalFile is the capital ledger of a portfolio directory.
const CapitalFile = "portfolio_capital.json"

// EventType is the kind of a capital event.
type EventType string

const (
	Deposit        EventType = "deposit"
	InitialDeposit EventType = "initial_deposit"
	Withdrawal     EventType = "withdrawal"
	Buy            EventType = "buy"
	Sell           EventType = "sell"
)

// IsDeposit reports whether money entered the portfolio.
func (t EventType) IsDeposit() bool { return t == Deposit || t == InitialDeposit }

// IsFlow reports whether the event moves money in or out of the portfolio.
func (t EventType) IsFlow() bool { return t.IsDeposit() || t == Withdrawal }

// CapitalEvent is one entry of the capital ledger. Amounts are in SEK. Withdrawals have
// a negative amount.
type CapitalEvent struct {
	ID             string
	Date           date.Date
	Type           EventType
	Stock          string
	Amount         Money
	Volume         Quantity
	Price          Money
	Fee            Money
	RealizedProfit Money
	Description    string
	DaysInvested   int
	// Lots are the uids of the lots bought or sold.
	Lots []string
}

// MarshalJSON writes only the fields used by the event type.
func (e CapitalEvent) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", e.ID)
	w.Append("date", e.Date)
	w.Append("type", e.Type)
	w.Optional("stock", e.Stock)
	w.Append("amount", e.Amount)
	w.Optional("volume", e.Volume)
	w.Optional("price", e.Price)
	w.Optional("fee", e.Fee)
	if e.Type == Sell {
		w.Append("realized_profit", e.RealizedProfit)
	}
	w.Append("description", e.Description)
	if e.Type.IsDeposit() {
		w.Append("days_invested", e.DaysInvested)
	}
	w.Optional("lots", e.Lots)
	return w.MarshalJSON()
}

func (e *CapitalEvent) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID             string    `json:"id"`
		Date           date.Date `json:"date"`
		Type           EventType `json:"type"`
		Stock          string    `json:"stock"`
		Amount         Money     `json:"amount"`
		Volume         Quantity  `json:"volume"`
		Price          Money     `json:"price"`
		Fee            Money     `json:"fee"`
		RealizedProfit Money     `json:"realized_profit"`
		Description    string    `json:"description"`
		DaysInvested   int       `json:"days_invested"`
		Lots           []string  `json:"lots"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = CapitalEvent{
		ID:             aux.ID,
		Date:           aux.Date,
		Type:           aux.Type,
		Stock:          aux.Stock,
		Amount:         aux.Amount.In(Base),
		Volume:         aux.Volume,
		Price:          aux.Price.In(Base),
		Fee:            aux.Fee.In(Base),
		RealizedProfit: aux.RealizedProfit.In(Base),
		Description:    aux.Description,
		DaysInvested:   aux.DaysInvested,
		Lots:           aux.Lots,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// cashEffect is the change of the cash balance caused by the event.
func (e CapitalEvent) cashEffect() Money {
	switch e.Type {
	case Deposit, InitialDeposit, Withdrawal:
		return e.Amount
	case Buy:
		return e.Amount.Add(e.Fee).Neg()
	case Sell:
		return e.Amount.Sub(e.Fee)
	}
	return SEK(0)
}

// Base is the currency of the capital ledger.
const Base = "SEK"

// CapitalTotals are the running totals of the ledger.
type CapitalTotals struct {
	TotalDeposits        Money  `json:"total_deposits"`
	TotalWithdrawals     Money  `json:"total_withdrawals"`
	NetCapitalInput      Money  `json:"net_capital_input"`
	CurrentInvested      Money  `json:"current_invested"`
	CurrentCash          Money  `json:"current_cash"`
	TotalCapitalInSystem Money  `json:"total_capital_in_system"`
	TotalFees            Money  `json:"total_fees"`
	RealizedProfitTotal  Money  `json:"realized_profit_total"`
	LastUpdated          string `json:"last_updated"`
}

// DepositEntry is a historical deposit used to initialize the ledger.
type DepositEntry struct {
	Date        date.Date
	Amount      Money
	Description string
}

type capitalFile struct {
	Events []CapitalEvent `json:"capital_events"`
	Cash   struct {
		Current     Money  `json:"current"`
		LastUpdated string `json:"last_updated"`
	} `json:"cash_balance"`
	Summary CapitalTotals `json:"summary"`
}

// CapitalTracker is the ledger of money moved in and out of the portfolio and between
// cash and stocks.
type CapitalTracker struct {
	mu     sync.Mutex
	store  *Store
	events []CapitalEvent
	cash   Money
	now    func() time.Time
	log    zerolog.Logger
}

// NewCapitalTracker returns an empty tracker persisted in store. Call Load to read the
// ledger.
func NewCapitalTracker(store *Store, log zerolog.Logger) *CapitalTracker {
	return &CapitalTracker{store: store, cash: SEK(0), now: time.Now, log: log}
}

func (t *CapitalTracker) today() date.Date { return date.Of(t.now()) }

// Load reads the ledger. A missing file leaves the tracker empty.
func (t *CapitalTracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var f capitalFile
	ok, err := t.store.LoadJSON(CapitalFile, &f)
	if err != nil {
		return fmt.Errorf("load capital ledger: %w", err)
	}
	t.events, t.cash = nil, SEK(0)
	if !ok {
		return nil
	}
	t.events = f.Events
	t.cash = f.Cash.Current.In(Base)
	if t.cash.IsZero() && len(t.events) > 0 {
		t.cash = t.replayCash()
		t.log.Info().Str("cash", t.cash.String()).Msg("recalculated cash balance from events")
	}
	t.updateDaysInvested()
	t.log.Info().Int("events", len(t.events)).Msg("loaded capital events")
	return nil
}

// replayCash is deposits - withdrawals - buys + sells.
func (t *CapitalTracker) replayCash() Money {
	cash := SEK(0)
	for _, e := range t.events {
		switch {
		case e.Type.IsDeposit(), e.Type == Withdrawal, e.Type == Sell:
			cash = cash.Add(e.Amount)
		case e.Type == Buy:
			cash = cash.Sub(e.Amount)
		}
	}
	return cash
}

func (t *CapitalTracker) updateDaysInvested() {
	today := t.today()
	for i, e := range t.events {
		if e.Type.IsDeposit() {
			t.events[i].DaysInvested = today.DaysSince(e.Date)
		}
	}
}

// Save writes the ledger with a fresh summary.
func (t *CapitalTracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save()
}

func (t *CapitalTracker) save() error {
	f := capitalFile{Events: t.events, Summary: t.totals()}
	if f.Events == nil {
		f.Events = []CapitalEvent{}
	}
	f.Cash.Current = t.cash
	f.Cash.LastUpdated = t.today().String()
	if err := t.store.SaveJSON(CapitalFile, f); err != nil {
		return fmt.Errorf("save capital ledger: %w", err)
	}
	t.log.Debug().Int("events", len(t.events)).Msg("saved capital ledger")
	return nil
}

// IsInitialized reports whether the ledger has any event.
func (t *CapitalTracker) IsInitialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events) > 0
}

// Events returns a copy of the ledger in recording order.
func (t *CapitalTracker) Events() []CapitalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// Cash is the current cash balance.
func (t *CapitalTracker) Cash() Money {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cash
}

// InitializeManual records historical deposits and sets the cash balance to their sum.
func (t *CapitalTracker) InitializeManual(deposits []DepositEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	today := t.today()
	for _, d := range deposits {
		t.events = append(t.events, CapitalEvent{
			ID:           uuid.NewString(),
			Date:         d.Date,
			Type:         Deposit,
			Amount:       d.Amount.In(Base),
			Description:  d.Description,
			DaysInvested: today.DaysSince(d.Date),
		})
	}
	cash := SEK(0)
	for _, e := range t.events {
		cash = cash.Add(e.Amount)
	}
	t.cash = cash
	t.log.Info().Int("deposits", len(deposits)).Str("cash", cash.String()).Msg("capital tracking initialized")
	return t.save()
}

// InitializeFromValue records the current portfolio value as the initial capital, all of
// it invested.
func (t *CapitalTracker) InitializeFromValue(value Money) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, CapitalEvent{
		ID:          uuid.NewString(),
		Date:        t.today(),
		Type:        InitialDeposit,
		Amount:      value.In(Base),
		Description: "Initial capital (estimated from current portfolio)",
	})
	t.cash = SEK(0)
	t.log.Info().Str("value", value.String()).Msg("capital tracking initialized from portfolio value")
	return t.save()
}

func (t *CapitalTracker) dayOrToday(on date.Date) date.Date {
	if on.IsZero() {
		return t.today()
	}
	return on
}

func (t *CapitalTracker) record(e CapitalEvent) CapitalEvent {
	e.ID = uuid.NewString()
	t.events = append(t.events, e)
	t.cash = t.cash.Add(e.cashEffect())
	return e
}

// RecordDeposit records money transferred to the broker. A zero date means today.
func (t *CapitalTracker) RecordDeposit(amount Money, on date.Date, description string) CapitalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	on = t.dayOrToday(on)
	amount = amount.In(Base)
	if description == "" {
		description = fmt.Sprintf("Deposit of %s SEK", amount.Decimal().StringFixed(2))
	}
	e := t.record(CapitalEvent{
		Date:         on,
		Type:         Deposit,
		Amount:       amount,
		Description:  description,
		DaysInvested: t.today().DaysSince(on),
	})
	t.log.Info().Str("amount", amount.String()).Stringer("date", on).Msg("recorded deposit")
	return e
}

// RecordWithdrawal records money transferred from the broker. amount is positive.
func (t *CapitalTracker) RecordWithdrawal(amount Money, on date.Date, description string) CapitalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	on = t.dayOrToday(on)
	amount = amount.In(Base).Abs()
	if description == "" {
		description = fmt.Sprintf("Withdrawal of %s SEK", amount.Decimal().StringFixed(2))
	}
	e := t.record(CapitalEvent{
		Date:        on,
		Type:        Withdrawal,
		Amount:      amount.Neg(),
		Description: description,
	})
	t.log.Info().Str("amount", amount.String()).Stringer("date", on).Msg("recorded withdrawal")
	return e
}

// RecordBuy records a purchase paid from cash. price and fee are in SEK.
func (t *CapitalTracker) RecordBuy(stock string, volume Quantity, price, fee Money, on date.Date, lots ...string) CapitalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	price, fee = price.In(Base), fee.In(Base)
	desc := fmt.Sprintf("Bought %s shares of %s at %s SEK", volume, stock, price.Decimal().StringFixed(2))
	if fee.IsPositive() {
		desc += fmt.Sprintf(" (fee: %s SEK)", fee.Decimal().StringFixed(2))
	}
	e := t.record(CapitalEvent{
		Date:        t.dayOrToday(on),
		Type:        Buy,
		Stock:       stock,
		Amount:      price.Mul(volume),
		Volume:      volume,
		Price:       price,
		Fee:         fee,
		Description: desc,
		Lots:        lots,
	})
	t.log.Debug().Str("stock", stock).Stringer("volume", volume).Str("price", price.String()).Msg("recorded buy")
	return e
}

// RecordSell records a sale paid into cash. price, profit and fee are in SEK.
func (t *CapitalTracker) RecordSell(stock string, volume Quantity, price, profit, fee Money, on date.Date, lots ...string) CapitalEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	price, profit, fee = price.In(Base), profit.In(Base), fee.In(Base)
	desc := fmt.Sprintf("Sold %s shares of %s at %s SEK (P/L: %s SEK)", volume, stock,
		price.Decimal().StringFixed(2), signedFixed(profit))
	if fee.IsPositive() {
		desc += fmt.Sprintf(" (fee: %s SEK)", fee.Decimal().StringFixed(2))
	}
	e := t.record(CapitalEvent{
		Date:           t.dayOrToday(on),
		Type:           Sell,
		Stock:          stock,
		Amount:         price.Mul(volume),
		Volume:         volume,
		Price:          price,
		Fee:            fee,
		RealizedProfit: profit,
		Description:    desc,
		Lots:           lots,
	})
	t.log.Debug().Str("stock", stock).Stringer("volume", volume).Str("price", price.String()).Msg("recorded sell")
	return e
}

func signedFixed(m Money) string {
	s := m.Decimal().StringFixed(2)
	if !m.IsNegative() {
		return "+" + s
	}
	return s
}

// RemoveLast removes the most recent event matching match and reverses its effect on
// cash. It reports whether an event was removed.
func (t *CapitalTracker) RemoveLast(match func(CapitalEvent) bool) (CapitalEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.events) - 1; i >= 0; i-- {
		e := t.events[i]
		if !match(e) {
			continue
		}
		t.events = slices.Delete(t.events, i, i+1)
		t.cash = t.cash.Sub(e.cashEffect())
		return e, true
	}
	return CapitalEvent{}, false
}

// Totals computes the ledger summary.
func (t *CapitalTracker) Totals() CapitalTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals()
}

func (t *CapitalTracker) totals() CapitalTotals {
	deposits, withdrawals, buys, sells := SEK(0), SEK(0), SEK(0), SEK(0)
	fees, realized := SEK(0), SEK(0)
	for _, e := range t.events {
		switch {
		case e.Type.IsDeposit():
			deposits = deposits.Add(e.Amount)
		case e.Type == Withdrawal:
			withdrawals = withdrawals.Add(e.Amount)
		case e.Type == Buy:
			buys = buys.Add(e.Amount)
			fees = fees.Add(e.Fee)
		case e.Type == Sell:
			sells = sells.Add(e.Amount)
			fees = fees.Add(e.Fee)
			realized = realized.Add(e.RealizedProfit)
		}
	}
	withdrawals = withdrawals.Abs()
	invested := buys.Sub(sells)
	return CapitalTotals{
		TotalDeposits:        deposits,
		TotalWithdrawals:     withdrawals,
		NetCapitalInput:      deposits.Sub(withdrawals),
		CurrentInvested:      invested,
		CurrentCash:          t.cash,
		TotalCapitalInSystem: invested.Add(t.cash),
		TotalFees:            fees,
		RealizedProfitTotal:  realized,
		LastUpdated:          t.today().String(),
	}
}

// chronological returns the events sorted by date, keeping the recording order within a
// day.
func (t *CapitalTracker) chronological() []CapitalEvent {
	events := slices.Clone(t.events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events
}
