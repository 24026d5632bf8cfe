package yahoo

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// fetchAll runs fetch for every symbol with bounded concurrency.
// It returns the successes and the joined failures; one failing symbol does not stop the others.
func fetchAll[T any](ctx context.Context, limit int, symbols []string, fetch func(context.Context, string) (T, error)) (map[string]T, error) {
	var (
		mu   sync.Mutex
		out  = make(map[string]T, len(symbols))
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, s := range symbols {
		g.Go(func() error {
			v, err := fetch(gctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			out[s] = v
			return nil
		})
	}
	// fetch never returns an error to the group, only context cancellation ends early
	_ = g.Wait()
	if err := ctx.Err(); err != nil && len(out) == 0 {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// Quotes fetches live quotes for all symbols in one bulk call.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes, err := fetchAll(ctx, c.concurrency, symbols, c.Quote)
	c.log.Debug().Int("requested", len(symbols)).Int("fetched", len(quotes)).Msg("bulk quotes")
	return quotes, err
}

// Charts fetches bars for all symbols over the same span and interval.
func (c *Client) Charts(ctx context.Context, symbols []string, span, interval string) (map[string][]Bar, error) {
	bars, err := fetchAll(ctx, c.concurrency, symbols, func(ctx context.Context, s string) ([]Bar, error) {
		return c.Chart(ctx, s, span, interval)
	})
	c.log.Debug().Int("requested", len(symbols)).Int("fetched", len(bars)).Str("span", span).Msg("bulk charts")
	return bars, err
}
