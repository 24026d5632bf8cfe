package portfolio

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/h4jen/yspy/date"
)

// Lot represents a single purchase of a stock, used for cost basis calculations.
//
// Price is per share, in the stock's own currency.
type Lot struct {
	Volume Quantity
	Price  Money
	Date   date.Date
	UID    string
}

// NewLot returns a lot with a fresh uid.
func NewLot(volume Quantity, price Money, on date.Date) Lot {
	return Lot{Volume: volume, Price: price, Date: on, UID: uuid.NewString()}
}

// Cost is the total cost of the lot (volume * price).
func (l Lot) Cost() Money { return l.Price.Mul(l.Volume) }

// MarshalJSON writes the lot as [volume, price, "MM/DD/YYYY", uid].
func (l Lot) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.Volume, l.Price, l.Date.LotString(), l.UID})
}

// UnmarshalJSON reads a lot array. A missing uid is replaced by a new one.
func (l *Lot) UnmarshalJSON(b []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	if len(items) < 3 {
		return fmt.Errorf("lot %s: want [volume, price, date, uid]", b)
	}
	var (
		v   Lot
		day string
	)
	if err := json.Unmarshal(items[0], &v.Volume); err != nil {
		return fmt.Errorf("lot volume: %w", err)
	}
	if err := json.Unmarshal(items[1], &v.Price); err != nil {
		return fmt.Errorf("lot price: %w", err)
	}
	if err := json.Unmarshal(items[2], &day); err != nil {
		return fmt.Errorf("lot date: %w", err)
	}
	on, err := date.ParseAny(day)
	if err != nil {
		return err
	}
	v.Date = on
	if len(items) > 3 {
		if err := json.Unmarshal(items[3], &v.UID); err != nil {
			return fmt.Errorf("lot uid: %w", err)
		}
	}
	if v.UID == "" {
		v.UID = uuid.NewString()
	}
	*l = v
	return nil
}

// Lots is the list of open purchases of a stock, in file order.
type Lots []Lot

// Total is the number of shares held across all lots.
func (l Lots) Total() Quantity {
	var total Quantity
	for _, x := range l {
		total = total.Add(x.Volume)
	}
	return total
}

// Cost is the sum of the lot costs.
func (l Lots) Cost() Money {
	var total Money
	for _, x := range l {
		total = total.Add(x.Cost())
	}
	return total
}

// fifo returns the lot indexes oldest purchase first. Lots bought the same day keep their
// file order.
func (l Lots) fifo() []int {
	idx := make([]int, len(l))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return l[idx[i]].Date.Before(l[idx[j]].Date) })
	return idx
}

// sold is the part of a lot consumed by a sell.
type sold struct {
	lot    Lot // the lot as it was before the sell
	volume Quantity
}

// sell consumes quantityToSell shares oldest lot first. It returns the remaining lots in
// their original order and the consumed parts in consumption order.
func (l Lots) sell(quantityToSell Quantity) (Lots, []sold) {
	remaining := make(Lots, len(l))
	copy(remaining, l)
	var parts []sold
	for _, i := range l.fifo() {
		if !quantityToSell.IsPositive() {
			break
		}
		current := l[i]
		take := current.Volume.Min(quantityToSell)
		parts = append(parts, sold{lot: current, volume: take})
		remaining[i].Volume = current.Volume.Sub(take)
		quantityToSell = quantityToSell.Sub(take)
	}
	out := remaining[:0]
	for _, x := range remaining {
		if x.Volume.IsPositive() {
			out = append(out, x)
		}
	}
	return out, parts
}
