package portfolio

import (
	"fmt"
	"strings"

	"github.com/h4jen/yspy/date"
)

// LotFileName is the file holding the lots of ticker, with dots replaced by underscores.
func LotFileName(ticker string) string {
	return strings.ReplaceAll(ticker, ".", "_") + ".json"
}

// ProfitFileName is the file holding the realized profits of a stock.
func ProfitFileName(name string) string { return name + "_profit.json" }

const profitSuffix = "_profit.json"

// Stock is a named holding and its open lots.
type Stock struct {
	Name     string
	Ticker   string
	Currency string
	Lots     Lots
}

// TotalShares is the number of shares held.
func (s *Stock) TotalShares() Quantity { return s.Lots.Total() }

// AveragePrice is the volume weighted purchase price, in the stock's currency. It is zero
// without shares.
func (s *Stock) AveragePrice() Money {
	total := s.TotalShares()
	if !total.IsPositive() {
		return M(0, s.Currency)
	}
	return s.Lots.Cost().Div(total).In(s.Currency)
}

// AddLot appends a lot.
func (s *Stock) AddLot(l Lot) error {
	if !l.Volume.IsPositive() {
		return ErrInvalidVolume
	}
	l.Price = l.Price.In(s.Currency)
	s.Lots = append(s.Lots, l)
	return nil
}

// Sell removes volume shares at price, oldest purchase first, and returns one profit
// record per lot touched and their total profit.
func (s *Stock) Sell(volume Quantity, price Money, on date.Date) ([]ProfitRecord, Money, error) {
	if !volume.IsPositive() {
		return nil, Money{}, ErrInvalidVolume
	}
	if total := s.TotalShares(); total.LessThan(volume) {
		return nil, Money{}, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientShares, total, volume)
	}
	price = price.In(s.Currency)
	remaining, parts := s.Lots.sell(volume)
	records := make([]ProfitRecord, 0, len(parts))
	total := M(0, s.Currency)
	for _, p := range parts {
		profit := price.Sub(p.lot.Price).Mul(p.volume)
		records = append(records, ProfitRecord{
			StockName: s.Name,
			UID:       p.lot.UID,
			BuyPrice:  p.lot.Price,
			SellPrice: price,
			Volume:    p.volume,
			Profit:    profit,
			BuyDate:   p.lot.Date,
			SellDate:  on,
		})
		total = total.Add(profit)
	}
	s.Lots = remaining
	return records, total, nil
}

// RemoveLot removes the lot with uid and returns it.
func (s *Stock) RemoveLot(uid string) (Lot, error) {
	for i, l := range s.Lots {
		if l.UID == uid {
			s.Lots = append(s.Lots[:i:i], s.Lots[i+1:]...)
			return l, nil
		}
	}
	return Lot{}, fmt.Errorf("%w: %s in %s", ErrLotNotFound, uid, s.Name)
}

// setCurrency tags the lot prices loaded from file.
func (s *Stock) setCurrency(cur string) {
	s.Currency = cur
	for i := range s.Lots {
		s.Lots[i].Price = s.Lots[i].Price.In(cur)
	}
}
