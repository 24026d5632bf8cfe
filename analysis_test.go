package portfolio

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/h4jen/yspy/history"
)

func TestSummary(t *testing.T) {
	p := openTest(t, seed(t))
	ctx := context.Background()
	p.quotes.set("AAPL", "USD", 200, 10)
	p.quotes.set("VOLV-B.ST", "SEK", 300, 1)
	p.Capital().RecordDeposit(SEK(10000), d("2024-01-01"), "initial")

	s := p.Summary(ctx)
	tests := []struct {
		name      string
		got, want float64
	}{
		{"StockValueCurrent", s.StockValueCurrent.Float(), 8500},
		{"StockValueAtCost", s.StockValueAtCost.Float(), 6852.5},
		{"UnrealizedGain", s.UnrealizedGain.Float(), 1647.5},
		{"NetCapitalInput", s.NetCapitalInput.Float(), 10000},
		{"PortfolioValueTotal", s.PortfolioValueTotal.Float(), 18500},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-6 {
			t.Errorf("Summary().%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if s.NumEvents != 1 {
		t.Errorf("Summary().NumEvents = %d, want 1", s.NumEvents)
	}
}

func TestSeries(t *testing.T) {
	p := openTest(t, seed(t))
	last := d("2025-03-13")
	p.hist.frames["AAPL"] = &history.Frame{Bars: makeBars(last, 30)}
	p.hist.frames["VOLV-B.ST"] = &history.Frame{Bars: makeBars(last, 30)}

	series, skipped := p.Series(context.Background(), "6mo")
	var names []string
	for _, s := range series {
		names = append(names, s.Name)
	}
	if got := strings.Join(names, ","); got != "Apple,Volvo" {
		t.Errorf("Series() names = %s", got)
	}
	if len(skipped) != 1 || skipped[0] != "Ericsson" {
		t.Errorf("Series() skipped = %v", skipped)
	}
	if series[0].History.Len() != 30 {
		t.Errorf("Apple history has %d closes, want 30", series[0].History.Len())
	}
}
