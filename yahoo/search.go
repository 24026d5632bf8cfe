package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/PaesslerAG/jsonpath"
)

// Match is a search hit.
type Match struct {
	Symbol   string
	Name     string
	Exchange string
	Type     string
}

// Search looks up symbols matching query.
func (c *Client) Search(ctx context.Context, query string) ([]Match, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("quotesCount", "10")
	q.Set("newsCount", "0")
	addr := fmt.Sprintf("%s/v1/finance/search?%s", c.base, q.Encode())

	var jobj any
	if err := c.jwget(ctx, c.live, addr, &jobj); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	jval, err := jsonpath.Get("$.quotes[*]", jobj)
	if err != nil {
		// no quotes key means no hits
		return nil, nil
	}
	items, _ := jval.([]any)
	matches := make([]Match, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		match := Match{
			Symbol:   str(m["symbol"]),
			Name:     str(m["longname"]),
			Exchange: str(m["exchange"]),
			Type:     str(m["quoteType"]),
		}
		if match.Name == "" {
			match.Name = str(m["shortname"])
		}
		if match.Symbol != "" {
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// Validate reports whether symbol has a live market price. Answers are cached for the
// lifetime of the client. Network errors are returned and not cached.
func (c *Client) Validate(ctx context.Context, symbol string) (bool, error) {
	c.mu.Lock()
	ok, known := c.valid[symbol]
	c.mu.Unlock()
	if known {
		return ok, nil
	}

	_, err := c.Quote(ctx, symbol)
	switch {
	case err == nil:
		ok = true
	case errors.Is(err, ErrNotFound):
		ok = false
	default:
		return false, err
	}
	c.mu.Lock()
	c.valid[symbol] = ok
	c.mu.Unlock()
	return ok, nil
}

// CurrencyOf returns the trading currency reported for symbol.
func (c *Client) CurrencyOf(ctx context.Context, symbol string) (string, error) {
	q, err := c.Quote(ctx, symbol)
	if err != nil {
		return "", err
	}
	if q.Currency == "" {
		return "", fmt.Errorf("no currency for %s: %w", symbol, ErrNotFound)
	}
	return q.Currency, nil
}
