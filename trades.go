package portfolio

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// AddShares records a purchase of volume shares at price, in the stock's currency, dated
// today. fee is in SEK. When capital tracking is initialized the purchase is paid from
// cash.
func (p *Portfolio) AddShares(ctx context.Context, name string, volume Quantity, price, fee Money) error {
	if !volume.IsPositive() {
		return ErrInvalidVolume
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stocks[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrStockNotFound, name)
	}
	rate, err := p.rate(ctx, s.Currency)
	if err != nil {
		return err
	}
	lot := NewLot(volume, price, p.today())
	if err := s.AddLot(lot); err != nil {
		return err
	}
	if err := p.saveLots(s); err != nil {
		s.Lots = s.Lots[:len(s.Lots)-1]
		return err
	}
	p.prices.invalidate()
	p.log.Info().Str("stock", name).Stringer("volume", volume).Str("price", price.Decimal().String()).Msg("added shares")

	if p.capital.IsInitialized() {
		p.capital.RecordBuy(name, volume, price.Scale(rate).In(Base), fee.In(Base), p.today(), lot.UID)
		if err := p.capital.Save(); err != nil {
			return err
		}
	}
	return nil
}

// SellShares sells volume shares at price, in the stock's currency, oldest lots first.
// fee is in SEK. It returns the realized profit in the stock's currency.
func (p *Portfolio) SellShares(ctx context.Context, name string, volume Quantity, price, fee Money) (Money, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stocks[name]
	if !ok {
		return Money{}, fmt.Errorf("%w: %q", ErrStockNotFound, name)
	}
	rate, err := p.rate(ctx, s.Currency)
	if err != nil {
		return Money{}, err
	}
	before := slices.Clone(s.Lots)
	records, profit, err := s.Sell(volume, price, p.today())
	if err != nil {
		return Money{}, err
	}
	if err := p.saveLots(s); err != nil {
		s.Lots = before
		return Money{}, err
	}
	if err := p.appendProfits(name, records); err != nil {
		return Money{}, err
	}
	p.prices.invalidate()

	uids := make([]string, len(records))
	for i, r := range records {
		uids[i] = r.UID
		p.log.Info().Str("stock", name).Stringer("volume", r.Volume).Str("buy_price", r.BuyPrice.Decimal().String()).Msg("sold lot")
	}
	p.log.Info().Str("stock", name).Stringer("volume", volume).Str("profit", profit.Decimal().StringFixed(2)).Str("fee", fee.Decimal().StringFixed(2)).Msg("sold shares")

	if p.capital.IsInitialized() {
		p.capital.RecordSell(name, volume, price.Scale(rate).In(Base), profit.Scale(rate).In(Base), fee.In(Base), p.today(), uids...)
		if err := p.capital.Save(); err != nil {
			return profit, err
		}
	}
	return profit, nil
}

func (p *Portfolio) loadProfits(name string) ([]ProfitRecord, error) {
	var records []ProfitRecord
	if _, err := p.store.LoadJSON(ProfitFileName(name), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *Portfolio) appendProfits(name string, records []ProfitRecord) error {
	existing, err := p.loadProfits(name)
	if err != nil {
		return err
	}
	return p.store.SaveJSON(ProfitFileName(name), append(existing, records...))
}

// RecentSells lists the sells of every profit file, newest first. limit <= 0 means all.
func (p *Portfolio) RecentSells(limit int) ([]SellTransaction, error) {
	files, err := p.store.Glob("*" + profitSuffix)
	if err != nil {
		return nil, err
	}
	var all []SellTransaction
	for _, f := range files {
		name := strings.TrimSuffix(f, profitSuffix)
		records, err := p.loadProfits(name)
		if err != nil {
			p.log.Warn().Err(err).Str("file", f).Msg("cannot read profit file")
			continue
		}
		p.mu.RLock()
		if s, ok := p.stocks[name]; ok {
			for i := range records {
				records[i].setCurrency(s.Currency)
			}
		}
		p.mu.RUnlock()
		all = append(all, groupSells(name, records)...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].SellDate.After(all[j].SellDate) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// RevertSell restores the lots of a sell, removes its profit records and the matching
// capital event.
func (p *Portfolio) RevertSell(ctx context.Context, tx SellTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stocks[tx.StockName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrStockNotFound, tx.StockName)
	}
	for _, r := range tx.Records {
		// a partly sold lot gets its shares back
		if i := slices.IndexFunc(s.Lots, func(l Lot) bool { return r.UID != "" && l.UID == r.UID }); i >= 0 {
			s.Lots[i].Volume = s.Lots[i].Volume.Add(r.Volume)
			continue
		}
		l := Lot{Volume: r.Volume, Price: r.BuyPrice, Date: r.BuyDate, UID: r.UID}
		if l.Date.IsZero() {
			l.Date = p.today()
		}
		if l.UID == "" {
			l = NewLot(l.Volume, l.Price, l.Date)
		}
		if err := s.AddLot(l); err != nil {
			return err
		}
	}
	if err := p.saveLots(s); err != nil {
		return err
	}

	existing, err := p.loadProfits(tx.StockName)
	if err != nil {
		return err
	}
	drop := make(map[int]bool, len(tx.Indexes))
	for _, i := range tx.Indexes {
		drop[i] = true
	}
	kept := existing[:0]
	for i, r := range existing {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	if err := p.store.SaveJSON(ProfitFileName(tx.StockName), kept); err != nil {
		return err
	}
	p.prices.invalidate()

	if p.capital.IsInitialized() {
		uids := make(map[string]bool, len(tx.Records))
		for _, r := range tx.Records {
			uids[r.UID] = true
		}
		amount := tx.SellPrice.In(s.Currency).Mul(tx.TotalVolume)
		if sek, err := p.toSEK(ctx, amount); err == nil {
			amount = sek
		}
		_, removed := p.capital.RemoveLast(func(e CapitalEvent) bool {
			if e.Type != Sell || e.Stock != tx.StockName || !e.Volume.Equal(tx.TotalVolume) {
				return false
			}
			if len(e.Lots) > 0 {
				return slices.ContainsFunc(e.Lots, func(uid string) bool { return uids[uid] })
			}
			return e.Amount.Near(amount)
		})
		if removed {
			if err := p.capital.Save(); err != nil {
				return err
			}
		}
	}
	p.log.Info().Str("stock", tx.StockName).Stringer("volume", tx.TotalVolume).Stringer("sell_date", tx.SellDate).Msg("reverted sell")
	return nil
}

// RecentBuys lists the open lots of every stock, newest first. limit <= 0 means all.
func (p *Portfolio) RecentBuys(limit int) []BuyRecord {
	p.mu.RLock()
	var all []BuyRecord
	for name, s := range p.stocks {
		for _, l := range s.Lots {
			all = append(all, BuyRecord{StockName: name, Volume: l.Volume, Price: l.Price, Date: l.Date, UID: l.UID})
		}
	}
	p.mu.RUnlock()
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].StockName < all[j].StockName
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// RevertBuy removes the lot of a purchase and the matching capital event.
func (p *Portfolio) RevertBuy(ctx context.Context, rec BuyRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stocks[rec.StockName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrStockNotFound, rec.StockName)
	}
	before := slices.Clone(s.Lots)
	if _, err := s.RemoveLot(rec.UID); err != nil {
		return err
	}
	if err := p.saveLots(s); err != nil {
		s.Lots = before
		return err
	}
	p.prices.invalidate()

	if p.capital.IsInitialized() {
		price := rec.Price.In(s.Currency)
		if sek, err := p.toSEK(ctx, price); err == nil {
			price = sek
		}
		_, removed := p.capital.RemoveLast(func(e CapitalEvent) bool {
			if e.Type != Buy || e.Stock != rec.StockName || !e.Volume.Equal(rec.Volume) {
				return false
			}
			if len(e.Lots) > 0 {
				return slices.Contains(e.Lots, rec.UID)
			}
			return e.Price.Near(price)
		})
		if removed {
			if err := p.capital.Save(); err != nil {
				return err
			}
		}
	}
	p.log.Info().Str("stock", rec.StockName).Stringer("volume", rec.Volume).Stringer("date", rec.Date).Msg("reverted buy")
	return nil
}
