package portfolio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/h4jen/yspy/history"
	"github.com/h4jen/yspy/scheduler"
)

// seed writes a portfolio with Volvo (two lots), Apple (one lot) and an empty Ericsson.
func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, DefaultFile, `{"Volvo": "VOLV-B.ST", "Apple": "AAPL", "Ericsson": "ERIC-B.ST"}`)
	writeFile(t, dir, "VOLV-B_ST.json", `[[10, 250, "01/15/2024", "v1"], [5, 270.5, "06/01/2024", "v2"]]`)
	writeFile(t, dir, "AAPL.json", `[[2, 150, "02/01/2024", "a1"]]`)
	writeFile(t, dir, HighlightedFile, `["Volvo"]`)
	return dir
}

func TestOpen(t *testing.T) {
	p := openTest(t, seed(t))

	if got := strings.Join(p.Names(), ","); got != "Apple,Ericsson,Volvo" {
		t.Errorf("Names() = %s", got)
	}
	if got := strings.Join(p.Tickers(), ","); got != "AAPL,ERIC-B.ST,VOLV-B.ST" {
		t.Errorf("Tickers() = %s", got)
	}
	volvo, err := p.Stock("Volvo")
	if err != nil {
		t.Fatalf("Stock() error = %v", err)
	}
	if !volvo.TotalShares().Equal(Q(15)) || volvo.Currency != "SEK" || volvo.Lots[1].UID != "v2" {
		t.Errorf("Volvo = %+v", volvo)
	}
	apple, _ := p.Stock("Apple")
	if apple.Currency != "USD" || apple.Lots[0].Price.Currency() != "USD" {
		t.Errorf("Apple currency = %q, lot price in %q", apple.Currency, apple.Lots[0].Price.Currency())
	}
	if !p.IsHighlighted("Volvo") || p.IsHighlighted("Apple") {
		t.Error("highlighted stocks not loaded")
	}
	if len(p.quotes.tracked) != 3 {
		t.Errorf("tracked tickers = %v", p.quotes.tracked)
	}
	if done, total := p.HistoricalProgress(); done != 3 || total != 3 {
		t.Errorf("HistoricalProgress() = %d/%d, want 3/3", done, total)
	}
	if name, ok := p.NameOf("AAPL"); !ok || name != "Apple" {
		t.Errorf("NameOf(AAPL) = %q, %v", name, ok)
	}
	if _, err := p.Stock("Saab"); !errors.Is(err, ErrStockNotFound) {
		t.Errorf("Stock(Saab) error = %v", err)
	}
}

func TestOpenEmptyDirectory(t *testing.T) {
	p := openTest(t, t.TempDir())
	if len(p.Names()) != 0 || p.Capital().IsInitialized() {
		t.Errorf("empty portfolio has %v and capital %v", p.Names(), p.Capital().IsInitialized())
	}
}

func TestOpenEager(t *testing.T) {
	dir := seed(t)
	h := newFakeHistory()
	h.frames["VOLV-B.ST"] = &history.Frame{Bars: makeBars(d("2025-03-13"), 40)}
	p, err := Open(context.Background(), Options{
		Dir:     dir,
		Mode:    Eager,
		Quotes:  newFakeQuotes(),
		History: h,
		Rates:   fakeRates{},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(h.loads) != 3 {
		t.Errorf("loaded %v, want every ticker", h.loads)
	}
	if done, total := p.HistoricalProgress(); done != 3 || total != 3 {
		t.Errorf("HistoricalProgress() = %d/%d, want 3/3", done, total)
	}
}

func TestOpenNeedsMarketData(t *testing.T) {
	if _, err := Open(context.Background(), Options{Dir: t.TempDir()}); err == nil {
		t.Error("Open() without market data should fail")
	}
}

func TestParseHistoricalMode(t *testing.T) {
	tests := []struct {
		in      string
		want    HistoricalMode
		wantErr bool
	}{
		{"eager", Eager, false},
		{"Background", Background, false},
		{"SKIP", Skip, false},
		{"lazy", "", true},
	}
	for _, tc := range tests {
		got, err := ParseHistoricalMode(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseHistoricalMode(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestAddStock(t *testing.T) {
	dir := seed(t)
	p := openTest(t, dir)
	ctx := context.Background()

	tests := []struct {
		name, stock, ticker string
		want                error
	}{
		{"duplicate name", "Volvo", "SAND.ST", ErrDuplicateName},
		{"duplicate ticker", "Volvo B", "VOLV-B.ST", ErrDuplicateTicker},
		{"unknown ticker", "Nothing", "NOPE.ST", ErrInvalidTicker},
		{"valid", " Sandvik ", "SAND.ST", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := p.AddStock(ctx, tc.stock, tc.ticker); !errors.Is(err, tc.want) {
				t.Errorf("AddStock() error = %v, want %v", err, tc.want)
			}
		})
	}

	s, err := p.Stock("Sandvik")
	if err != nil || s.Ticker != "SAND.ST" || !s.TotalShares().IsZero() {
		t.Errorf("Stock(Sandvik) = %+v, %v", s, err)
	}
	if got := readFile(t, dir, DefaultFile); !strings.Contains(got, `"Sandvik": "SAND.ST"`) {
		t.Errorf("%s = %s", DefaultFile, got)
	}
	if !p.quotes.tracked["SAND.ST"] {
		t.Error("new ticker not tracked")
	}
	if done, total := p.HistoricalProgress(); done != 3 || total != 4 {
		t.Errorf("HistoricalProgress() = %d/%d, want 3/4", done, total)
	}
}

func TestRemoveStock(t *testing.T) {
	dir := seed(t)
	writeFile(t, dir, ProfitFileName("Volvo"), `[]`)
	p := openTest(t, dir)

	if err := p.RemoveStock("Volvo"); err != nil {
		t.Fatalf("RemoveStock() error = %v", err)
	}
	if exists(dir, "VOLV-B_ST.json") || exists(dir, "Volvo_profit.json") {
		t.Error("lot or profit file left behind")
	}
	if p.quotes.tracked["VOLV-B.ST"] {
		t.Error("removed ticker still tracked")
	}
	if strings.Contains(readFile(t, dir, DefaultFile), "Volvo") {
		t.Error("removed stock still in the portfolio file")
	}
	if err := p.RemoveStock("Volvo"); !errors.Is(err, ErrStockNotFound) {
		t.Errorf("RemoveStock() twice error = %v", err)
	}
}

func TestHighlight(t *testing.T) {
	dir := seed(t)
	p := openTest(t, dir)

	if err := p.Highlight("Apple"); err != nil {
		t.Fatalf("Highlight() error = %v", err)
	}
	if got := readFile(t, dir, HighlightedFile); !strings.Contains(got, `"Apple",`) {
		t.Errorf("%s = %s, want a sorted list", HighlightedFile, got)
	}
	if err := p.Highlight("Saab"); !errors.Is(err, ErrStockNotFound) {
		t.Errorf("Highlight(Saab) error = %v", err)
	}
	if err := p.Unhighlight("Volvo"); err != nil {
		t.Fatalf("Unhighlight() error = %v", err)
	}
	if p.IsHighlighted("Volvo") || !p.IsHighlighted("Apple") {
		t.Error("wrong highlighted set")
	}
	if err := p.Unhighlight("Saab"); err != nil {
		t.Errorf("Unhighlight() of an unknown stock = %v", err)
	}
}

func TestTradesWithoutCapital(t *testing.T) {
	dir := seed(t)
	p := openTest(t, dir)
	ctx := context.Background()

	if err := p.AddShares(ctx, "Ericsson", Q(100), SEK(60), SEK(0)); err != nil {
		t.Fatalf("AddShares() error = %v", err)
	}
	if got := readFile(t, dir, "ERIC-B_ST.json"); !strings.Contains(got, `"03/14/2025"`) {
		t.Errorf("lot file = %s", got)
	}
	if p.Capital().IsInitialized() {
		t.Error("trades must not initialize capital tracking")
	}

	profit, err := p.SellShares(ctx, "Volvo", Q(12), SEK(300), SEK(0))
	if err != nil {
		t.Fatalf("SellShares() error = %v", err)
	}
	// 10*(300-250) + 2*(300-270.5)
	if profit.Float() != 559 {
		t.Errorf("profit = %v, want 559", profit.Decimal())
	}

	tests := []struct {
		name   string
		stock  string
		volume Quantity
		want   error
	}{
		{"unknown stock", "Saab", Q(1), ErrStockNotFound},
		{"too many", "Volvo", Q(4), ErrInsufficientShares},
		{"zero", "Volvo", Q(0), ErrInvalidVolume},
	}
	for _, tc := range tests {
		if _, err := p.SellShares(ctx, tc.stock, tc.volume, SEK(1), SEK(0)); !errors.Is(err, tc.want) {
			t.Errorf("%s: SellShares() error = %v, want %v", tc.name, err, tc.want)
		}
	}
	if err := p.AddShares(ctx, "Volvo", Q(-1), SEK(1), SEK(0)); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("AddShares(-1) error = %v", err)
	}
}

func TestTradesWithCapital(t *testing.T) {
	dir := seed(t)
	p := openTest(t, dir)
	ctx := context.Background()
	capital := p.Capital()
	capital.RecordDeposit(SEK(10000), d("2025-01-01"), "")

	// Two Apple shares at 150 USD, 10 SEK per USD.
	if err := p.AddShares(ctx, "Apple", Q(2), M(150, "USD"), SEK(20)); err != nil {
		t.Fatalf("AddShares() error = %v", err)
	}
	buy := capital.Events()[1]
	if buy.Type != Buy || buy.Price.Float() != 1500 || buy.Amount.Float() != 3000 || len(buy.Lots) != 1 {
		t.Errorf("buy event = %+v", buy)
	}
	if got := capital.Cash().Float(); got != 6980 {
		t.Errorf("cash after buy = %v, want 6980", got)
	}

	// Sells the February lot first: (200-150)*2 = 100 USD.
	profit, err := p.SellShares(ctx, "Apple", Q(2), M(200, "USD"), SEK(20))
	if err != nil {
		t.Fatalf("SellShares() error = %v", err)
	}
	if profit.Float() != 100 || profit.Currency() != "USD" {
		t.Errorf("profit = %v", profit)
	}
	sell := capital.Events()[2]
	if sell.Type != Sell || sell.Amount.Float() != 4000 || sell.RealizedProfit.Float() != 1000 || sell.Lots[0] != "a1" {
		t.Errorf("sell event = %+v", sell)
	}
	if got := capital.Cash().Float(); got != 10960 {
		t.Errorf("cash after sell = %v, want 10960", got)
	}
	if !exists(dir, CapitalFile) || !exists(dir, "Apple_profit.json") {
		t.Error("capital or profit file not written")
	}

	sells, err := p.RecentSells(0)
	if err != nil {
		t.Fatalf("RecentSells() error = %v", err)
	}
	if len(sells) != 1 || !sells[0].TotalVolume.Equal(Q(2)) || sells[0].StockName != "Apple" {
		t.Fatalf("RecentSells() = %+v", sells)
	}
	if err := p.RevertSell(ctx, sells[0]); err != nil {
		t.Fatalf("RevertSell() error = %v", err)
	}
	// The sold lot is back next to the one bought today.
	apple, _ := p.Stock("Apple")
	if !apple.TotalShares().Equal(Q(4)) {
		t.Errorf("shares after revert = %v, want 4", apple.TotalShares())
	}
	if got, _ := p.RecentSells(0); len(got) != 0 {
		t.Errorf("sells after revert = %+v", got)
	}
	if got := capital.Cash().Float(); got != 6980 {
		t.Errorf("cash after revert sell = %v, want 6980", got)
	}

	buys := p.RecentBuys(1)
	if len(buys) != 1 || buys[0].StockName != "Apple" || buys[0].Date != d("2025-03-14") {
		t.Fatalf("RecentBuys(1) = %+v", buys)
	}
	if err := p.RevertBuy(ctx, buys[0]); err != nil {
		t.Fatalf("RevertBuy() error = %v", err)
	}
	apple, _ = p.Stock("Apple")
	if !apple.TotalShares().Equal(Q(2)) || apple.Lots[0].UID != "a1" {
		t.Errorf("lots after revert buy = %+v", apple.Lots)
	}
	if got := capital.Cash().Float(); got != 10000 {
		t.Errorf("cash after revert buy = %v, want 10000", got)
	}
	if err := p.RevertBuy(ctx, buys[0]); !errors.Is(err, ErrLotNotFound) {
		t.Errorf("RevertBuy() twice error = %v", err)
	}
}

func TestRecentBuysOrder(t *testing.T) {
	p := openTest(t, seed(t))
	buys := p.RecentBuys(0)
	want := []string{"v2", "a1", "v1"}
	if len(buys) != len(want) {
		t.Fatalf("RecentBuys() = %+v", buys)
	}
	for i, uid := range want {
		if buys[i].UID != uid {
			t.Errorf("buys[%d] = %s, want %s", i, buys[i].UID, uid)
		}
	}
}

func TestRevertSellOfRemovedStock(t *testing.T) {
	p := openTest(t, seed(t))
	tx := SellTransaction{StockName: "Saab"}
	if err := p.RevertSell(context.Background(), tx); !errors.Is(err, ErrStockNotFound) {
		t.Errorf("RevertSell() error = %v", err)
	}
}

func TestStockDetails(t *testing.T) {
	p := openTest(t, seed(t))
	p.quotes.set("AAPL", "USD", 200, 10)
	details := p.StockDetails(context.Background())
	if len(details) != 3 {
		t.Fatalf("StockDetails() = %+v", details)
	}
	apple := details[0]
	if apple.Name != "Apple" || apple.CurrentPrice.Float() != 2000 || apple.AvgPrice.Float() != 1500 {
		t.Errorf("Apple = %+v", apple)
	}
	if apple.MarketValue.Float() != 4000 || apple.TotalCost.Float() != 3000 || apple.UnrealizedGain.Float() != 1000 {
		t.Errorf("Apple values = %v %v %v", apple.MarketValue, apple.TotalCost, apple.UnrealizedGain)
	}
	// No quote for Volvo: only the cost is known.
	if volvo := details[2]; !volvo.MarketValue.IsZero() || volvo.TotalCost.IsZero() {
		t.Errorf("Volvo = %+v", volvo)
	}
}

func TestStockPrices(t *testing.T) {
	p := openTest(t, seed(t))
	ctx := context.Background()
	p.quotes.set("VOLV-B.ST", "SEK", 100, 1)
	p.quotes.set("ERIC-B.ST", "SEK", 60, 1)
	p.hist.closes["VOLV-B.ST"] = 80

	rows := p.StockPrices(ctx, false, true)
	if len(rows) != 1 || rows[0].Name != "Volvo" {
		t.Fatalf("StockPrices() = %+v", rows)
	}
	if rows[0].TotalValue != 1500 {
		t.Errorf("TotalValue = %v, want 1500", rows[0].TotalValue)
	}
	if c, ok := rows[0].Change("1d"); !ok || c != 25 {
		t.Errorf("Change(1d) = %v, %v, want 25", c, ok)
	}
	if _, ok := rows[0].Change("10y"); ok {
		t.Error("Change() of an unknown period")
	}
	if got := p.StockPrices(ctx, true, false); len(got) != 2 || got[0].History != nil {
		t.Errorf("StockPrices(includeZero) = %+v", got)
	}

	// Inside the throttle interval the cached row is returned as is.
	p.quotes.set("VOLV-B.ST", "SEK", 120, 1)
	if got := p.StockPrices(ctx, false, true); got[0].Current != 100 {
		t.Errorf("Current = %v, want the cached 100", got[0].Current)
	}
	p.now = func() time.Time { return testDay.Add(time.Second) }
	got := p.StockPrices(ctx, false, true)
	if got[0].Current != 120 {
		t.Errorf("Current = %v, want 120 after the throttle interval", got[0].Current)
	}
	if c, _ := got[0].Change("1d"); c != 50 {
		t.Errorf("Change(1d) = %v, want 50", c)
	}

	// A trade rebuilds the table.
	if err := p.AddShares(ctx, "Volvo", Q(5), SEK(100), SEK(0)); err != nil {
		t.Fatalf("AddShares() error = %v", err)
	}
	if got := p.StockPrices(ctx, false, true); !got[0].Shares.Equal(Q(20)) {
		t.Errorf("Shares = %v, want 20", got[0].Shares)
	}
}

func TestPriceOn(t *testing.T) {
	p := openTest(t, seed(t))
	ctx := context.Background()
	p.quotes.set("AAPL", "USD", 200, 10)
	p.hist.closes["AAPL"] = 1800

	tests := []struct {
		name  string
		stock string
		on    string
		want  float64
		ok    bool
	}{
		{"today", "Apple", "2025-03-14", 2000, true},
		{"past", "Apple", "2025-01-14", 1800, true},
		{"no history", "Volvo", "2025-01-14", 0, false},
		{"unknown", "Saab", "2025-03-14", 0, false},
	}
	for _, tc := range tests {
		got, ok := p.PriceOn(ctx, tc.stock, d(tc.on))
		if ok != tc.ok || (ok && got.Float() != tc.want) {
			t.Errorf("%s: PriceOn() = %v, %v, want %v, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestValidationStatus(t *testing.T) {
	p := openTest(t, seed(t))
	ctx := context.Background()
	p.hist.frames["VOLV-B.ST"] = &history.Frame{Bars: makeBars(d("2025-03-13"), 40)}
	p.hist.frames["AAPL"] = &history.Frame{Bars: makeBars(d("2025-03-13"), 40)}
	p.hist.stale["AAPL"] = true
	p.hist.frames["ERIC-B.ST"] = &history.Frame{Bars: makeBars(d("2025-03-13"), 10)}

	all := p.ValidateAll(ctx)
	want := []struct {
		ticker string
		status string
	}{
		{"AAPL", StatusStale},
		{"ERIC-B.ST", StatusHasIssues},
		{"VOLV-B.ST", StatusGood},
	}
	if len(all) != len(want) {
		t.Fatalf("ValidateAll() = %+v", all)
	}
	for i, w := range want {
		if all[i].Ticker != w.ticker || all[i].Status != w.status {
			t.Errorf("all[%d] = %s %s, want %s %s", i, all[i].Ticker, all[i].Status, w.ticker, w.status)
		}
	}
	if v := all[2]; v.Rows != 40 || v.DateRange() != "2025-02-02 to 2025-03-13" || len(v.Issues) != 0 {
		t.Errorf("Volvo validation = %+v, range %q", v, v.DateRange())
	}

	none := p.ValidationStatus(ctx, "SAND.ST")
	if none.Status != StatusNoData || none.DataAvailable || none.DateRange() != "" {
		t.Errorf("ValidationStatus() without data = %+v", none)
	}
}

func TestStartClose(t *testing.T) {
	dir := seed(t)
	q, h := newFakeQuotes(), newFakeHistory()
	p, err := Open(context.Background(), Options{
		Dir:     dir,
		Mode:    Background,
		Quotes:  q,
		History: h,
		Rates:   fakeRates{},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !q.started || !q.stopped {
		t.Errorf("quotes started %v, stopped %v", q.started, q.stopped)
	}
	if len(h.bulk) != 1 || len(h.bulk[0]) != 3 {
		t.Errorf("bulk refreshes = %v, want one of every ticker", h.bulk)
	}
	if n := q.ensureCount(); n != 1 {
		t.Errorf("bulk history built %d times, want 1", n)
	}
	if done, total := p.HistoricalProgress(); done != 3 || total != 3 {
		t.Errorf("HistoricalProgress() = %d/%d", done, total)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestUpdateStats(t *testing.T) {
	p := openTest(t, seed(t))
	p.hist.stale["AAPL"] = true
	st := p.UpdateStats()
	if st.BulkUpdates != 3 || st.APICalls != 7 || st.StaleCount != 1 || st.StaleTickers[0] != "AAPL" {
		t.Errorf("UpdateStats() = %+v", st)
	}
	rep := p.Refresh(context.Background())
	if len(rep.Succeeded) != 3 {
		t.Errorf("Refresh() = %+v", rep)
	}
	if n := p.quotes.ensureCount(); n != 1 {
		t.Errorf("bulk history built %d times after Refresh, want 1", n)
	}
}

func TestRefreshJobRebuildsBulkHistory(t *testing.T) {
	p := openTest(t, seed(t))
	job := &refreshJob{HistoricalJob: scheduler.NewHistoricalJob(p.hist, p.Tickers, 5, zerolog.Nop()), p: p.Portfolio}
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := p.quotes.ensureCount(); n != 0 {
		t.Errorf("bulk history built %d times with nothing refreshed", n)
	}

	p.hist.stale["AAPL"] = true
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := p.quotes.ensureCount(); n != 1 {
		t.Errorf("bulk history built %d times after a refresh, want 1", n)
	}
	if len(p.hist.updates) != 1 || p.hist.updates[0][0] != "AAPL" {
		t.Errorf("updates = %v", p.hist.updates)
	}
}
