package portfolio

import (
	"encoding/json"

	"github.com/h4jen/yspy/date"
)

// ProfitRecord is the realized profit of one lot (or part of it) sold. Amounts are in the
// stock's currency.
type ProfitRecord struct {
	StockName string
	UID       string
	BuyPrice  Money
	SellPrice Money
	Volume    Quantity
	Profit    Money
	BuyDate   date.Date
	SellDate  date.Date
}

// MarshalJSON writes the record with lot formatted dates.
func (r ProfitRecord) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("stockName", r.StockName)
	w.Append("uid", r.UID)
	w.Append("buy_price", r.BuyPrice)
	w.Append("sell_price", r.SellPrice)
	w.Append("volume", r.Volume)
	w.Append("profit", r.Profit)
	w.Append("buy_date", r.BuyDate.LotString())
	w.Append("sell_date", r.SellDate.LotString())
	return w.MarshalJSON()
}

func (r *ProfitRecord) UnmarshalJSON(b []byte) error {
	var aux struct {
		StockName string   `json:"stockName"`
		UID       string   `json:"uid"`
		BuyPrice  Money    `json:"buy_price"`
		SellPrice Money    `json:"sell_price"`
		Volume    Quantity `json:"volume"`
		Profit    Money    `json:"profit"`
		BuyDate   string   `json:"buy_date"`
		SellDate  string   `json:"sell_date"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = ProfitRecord{
		StockName: aux.StockName,
		UID:       aux.UID,
		BuyPrice:  aux.BuyPrice,
		SellPrice: aux.SellPrice,
		Volume:    aux.Volume,
		Profit:    aux.Profit,
	}
	// unparsable dates sort last, like a missing date
	r.BuyDate, _ = date.ParseAny(aux.BuyDate)
	r.SellDate, _ = date.ParseAny(aux.SellDate)
	return nil
}

func (r *ProfitRecord) setCurrency(cur string) {
	r.BuyPrice = r.BuyPrice.In(cur)
	r.SellPrice = r.SellPrice.In(cur)
	r.Profit = r.Profit.In(cur)
}

// SellTransaction groups the profit records of one sell: same stock, sell date and sell
// price.
type SellTransaction struct {
	StockName   string
	SellDate    date.Date
	SellPrice   Money
	TotalVolume Quantity
	TotalProfit Money
	// Indexes of the records in the profit file.
	Indexes []int
	Records []ProfitRecord
}

// BuyRecord is an open lot listed as a recent purchase.
type BuyRecord struct {
	StockName string
	Volume    Quantity
	Price     Money
	Date      date.Date
	UID       string
}

// groupSells groups the records of one profit file into sell transactions, in order of
// first appearance.
func groupSells(name string, records []ProfitRecord) []SellTransaction {
	type key struct {
		day   date.Date
		price string
	}
	var (
		out   []SellTransaction
		index = make(map[key]int)
	)
	for i, r := range records {
		k := key{r.SellDate, r.SellPrice.Decimal().String()}
		j, ok := index[k]
		if !ok {
			j = len(out)
			index[k] = j
			out = append(out, SellTransaction{StockName: name, SellDate: r.SellDate, SellPrice: r.SellPrice})
		}
		tx := &out[j]
		tx.TotalVolume = tx.TotalVolume.Add(r.Volume)
		tx.TotalProfit = tx.TotalProfit.Add(r.Profit)
		tx.Indexes = append(tx.Indexes, i)
		tx.Records = append(tx.Records, r)
	}
	return out
}
