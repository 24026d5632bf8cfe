package portfolio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/fund"
)

type fakeFunds struct {
	navs    map[string]float64
	history map[string][]fund.Point
}

func (f fakeFunds) NAV(ctx context.Context, id string) (float64, error) {
	v, ok := f.navs[id]
	if !ok {
		return 0, fund.ErrNotFound
	}
	return v, nil
}

func (f fakeFunds) History(ctx context.Context, id string, days int) ([]fund.Point, error) {
	p, ok := f.history[id]
	if !ok {
		return nil, fund.ErrNoNAV
	}
	return p, nil
}

// seedFunds adds a SEK fund with one lot and an empty USD fund to the seeded portfolio.
func seedFunds(t *testing.T) string {
	t.Helper()
	dir := seed(t)
	writeFile(t, dir, FundsFile, `{"Robur Teknik": {"avanza_id": "41567", "isin": "SE0000709123", "currency": "SEK"},
		"Global Index": {"avanza_id": "777", "isin": "", "currency": "USD"}}`)
	writeFile(t, dir, "Robur_Teknik_fund.json", `[[10.5, 100, "01/10/2025", "f1"]]`)
	return dir
}

func TestLoadFunds(t *testing.T) {
	p := openTest(t, seedFunds(t))
	if got := strings.Join(p.FundNames(), ","); got != "Global Index,Robur Teknik" {
		t.Fatalf("FundNames() = %q", got)
	}
	f, err := p.Fund("Robur Teknik")
	if err != nil {
		t.Fatalf("Fund() error = %v", err)
	}
	if f.Ticker != "FUND:41567" || f.Currency != "SEK" || f.TotalShares().String() != "10.5" {
		t.Errorf("Fund() = %+v, lots %v", f.Stock, f.Lots)
	}
	if _, err := p.Fund("Nope"); !errors.Is(err, ErrFundNotFound) {
		t.Errorf("Fund(Nope) error = %v", err)
	}
}

func TestAddFundRejectsDuplicates(t *testing.T) {
	p := openTest(t, seedFunds(t))
	tests := []struct {
		name string
		info FundInfo
		want error
	}{
		{"Volvo", FundInfo{AvanzaID: "1"}, ErrDuplicateName},
		{"Robur Teknik", FundInfo{AvanzaID: "2"}, ErrDuplicateName},
		{"Teknik again", FundInfo{AvanzaID: "41567"}, ErrDuplicateTicker},
	}
	for _, tt := range tests {
		if err := p.AddFund(tt.name, tt.info); !errors.Is(err, tt.want) {
			t.Errorf("AddFund(%q) error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if err := p.AddFund("", FundInfo{AvanzaID: "3"}); err == nil {
		t.Error("AddFund without a name succeeded")
	}
	if err := p.AddStock(context.Background(), "Robur Teknik", "SAND.ST"); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("AddStock(fund name) error = %v", err)
	}

	if err := p.AddFund(" Nordic Small ", FundInfo{AvanzaID: "555", ISIN: "se0000000555", Currency: "sek"}); err != nil {
		t.Fatalf("AddFund() error = %v", err)
	}
	f, err := p.Fund("Nordic Small")
	if err != nil || f.Info.ISIN != "SE0000000555" || f.Currency != "SEK" {
		t.Errorf("Fund() = %+v, %v", f.Info, err)
	}
	if !strings.Contains(readFile(t, p.Dir(), FundsFile), `"avanza_id": "555"`) {
		t.Errorf("registry not saved:\n%s", readFile(t, p.Dir(), FundsFile))
	}
}

func TestBuyAndSellFundUnits(t *testing.T) {
	dir := seedFunds(t)
	p := openTest(t, dir)
	fee := M(0, Base)

	if err := p.BuyFundUnits("Robur Teknik", Q(0), SEK(120), fee); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("BuyFundUnits(0) error = %v", err)
	}
	if err := p.BuyFundUnits("Robur Teknik", Q(2.25), SEK(120), fee); err != nil {
		t.Fatalf("BuyFundUnits() error = %v", err)
	}
	if _, err := p.SellFundUnits("Robur Teknik", Q(20), SEK(150), fee); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("SellFundUnits(too many) error = %v", err)
	}

	profit, err := p.SellFundUnits("Robur Teknik", Q(11), SEK(150), SEK(9))
	if err != nil {
		t.Fatalf("SellFundUnits() error = %v", err)
	}
	// 10.5 units bought at 100 and 0.5 of the lot bought at 120
	if profit.Float() != 540 {
		t.Errorf("profit = %v, want 540", profit)
	}
	f, _ := p.Fund("Robur Teknik")
	if f.TotalShares().String() != "1.75" {
		t.Errorf("units left = %v, want 1.75", f.TotalShares())
	}
	if _, err := os.Stat(filepath.Join(dir, "Robur_Teknik_profit.json")); err != nil {
		t.Errorf("profit file: %v", err)
	}

	ledger, err := p.FundTransactions("Robur Teknik")
	if err != nil {
		t.Fatalf("FundTransactions() error = %v", err)
	}
	if len(ledger) != 3 {
		t.Fatalf("ledger = %+v, want one buy and two sells", ledger)
	}
	if ledger[0].Type != "buy" || ledger[0].Amount.String() != "270" || ledger[0].Date != date.Of(testDay) {
		t.Errorf("buy entry = %+v", ledger[0])
	}
	sell := ledger[1]
	if sell.Type != "sell" || sell.UID != "f1" || sell.Profit == nil || sell.Profit.String() != "525" ||
		sell.BuyDate != "01/10/2025" || sell.Fee.String() != "9" || sell.Currency != "SEK" {
		t.Errorf("sell entry = %+v", sell)
	}

	// the lots survive a reopen
	again := openTest(t, dir)
	f, _ = again.Fund("Robur Teknik")
	if f.TotalShares().String() != "1.75" || len(f.Lots) != 1 {
		t.Errorf("reopened lots = %v", f.Lots)
	}
}

func TestRemoveFundKeepsLedger(t *testing.T) {
	dir := seedFunds(t)
	p := openTest(t, dir)
	if err := p.BuyFundUnits("Robur Teknik", Q(1), SEK(110), M(0, Base)); err != nil {
		t.Fatalf("BuyFundUnits() error = %v", err)
	}
	if err := p.RemoveFund("Robur Teknik"); err != nil {
		t.Fatalf("RemoveFund() error = %v", err)
	}
	if err := p.RemoveFund("Robur Teknik"); !errors.Is(err, ErrFundNotFound) {
		t.Errorf("second RemoveFund() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Robur_Teknik_fund.json")); !os.IsNotExist(err) {
		t.Errorf("lot file still there: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Robur_Teknik_transactions.json")); err != nil {
		t.Errorf("ledger removed: %v", err)
	}
	if got := p.FundNames(); len(got) != 1 || got[0] != "Global Index" {
		t.Errorf("FundNames() = %v", got)
	}
}

func TestFundDetails(t *testing.T) {
	dir := seedFunds(t)
	writeFile(t, dir, "Global_Index_fund.json", `[[10.5, 100, "01/10/2025", "g1"]]`)
	p := openTest(t, dir)

	details := p.FundDetails(context.Background())
	if len(details) != 2 || details[0].Err == nil {
		t.Fatalf("FundDetails() without a NAV source = %+v", details)
	}

	today := date.Of(testDay)
	p.opts.Funds = fakeFunds{
		navs: map[string]float64{"777": 120},
		history: map[string][]fund.Point{"777": {
			{Date: today.Add(-30), NAV: 96},
			{Date: today.Add(-1), NAV: 100},
			{Date: today, NAV: 120},
		}},
	}
	details = p.FundDetails(context.Background())
	g := details[0]
	if g.Name != "Global Index" || g.Err != nil {
		t.Fatalf("detail = %+v", g)
	}
	if g.NAV.Float() != 120 || g.NAV.Currency() != "USD" || g.Units.String() != "10.5" {
		t.Errorf("NAV %v, units %v", g.NAV, g.Units)
	}
	if g.Value.Float() != 12600 || g.Cost.Float() != 10500 || g.Gain.Float() != 2100 {
		t.Errorf("value %v, cost %v, gain %v", g.Value, g.Cost, g.Gain)
	}
	if math.Abs(g.Change1D-20) > 1e-9 || math.Abs(g.Change1M-25) > 1e-9 {
		t.Errorf("changes %v, %v", g.Change1D, g.Change1M)
	}

	r := details[1]
	if !errors.Is(r.Err, fund.ErrNotFound) || !math.IsNaN(r.Change1D) {
		t.Errorf("detail without NAV = %+v", r)
	}
}
