// Package shorts tracks published short-selling positions for the Nordic stocks of the
// portfolio.
//
// Positions come from a feed published by a separate collector. The feed is read from a
// directory, an HTTP server or an S3 bucket and cached locally. Feed companies are matched
// to portfolio stocks by name.
package shorts

import "strings"

// Holder is one position holder of a company.
type Holder struct {
	Name       string  `json:"holder_name"`
	Percentage float64 `json:"position_percentage"`
	Date       string  `json:"position_date"`
}

// Position is the aggregated short position in a company.
type Position struct {
	Ticker            string   `json:"ticker"`
	CompanyName       string   `json:"company_name"`
	Holder            string   `json:"position_holder"` // e.g. "15 holders"
	Percentage        float64  `json:"position_percentage"`
	Date              string   `json:"position_date"`
	Market            string   `json:"market"`
	ThresholdCrossed  string   `json:"threshold_crossed"`
	IndividualHolders []Holder `json:"individual_holders"`
}

// Match links a portfolio ticker to a feed position.
type Match struct {
	CompanyName string  `json:"company_name"`
	Percentage  float64 `json:"short_percentage"`
	Date        string  `json:"position_date"`
	Holder      string  `json:"position_holder"`
	Market      string  `json:"market"`
	Quality     string  `json:"match_quality"`
	Score       int     `json:"match_score"`

	// set by ForStock
	IndividualHolders []Holder `json:"individual_holders,omitempty"`
	ThresholdCrossed  string   `json:"threshold_crossed,omitempty"`
}

// Data is the content of short_positions.json.
type Data struct {
	LastUpdated       string            `json:"last_updated"`
	OfficialPositions []Position        `json:"official_positions"`
	PortfolioTickers  map[string]string `json:"portfolio_tickers"` // stock name to ticker
	PortfolioMatches  map[string]Match  `json:"portfolio_matches"` // ticker to match
}

// nordicSuffixes are the exchanges covered by the feed.
var nordicSuffixes = []string{".ST", ".HE", ".OL", ".CO"}

// Nordic returns the stocks of portfolio (name to ticker) listed on a Nordic exchange.
func Nordic(portfolio map[string]string) map[string]string {
	out := make(map[string]string)
	for name, ticker := range portfolio {
		for _, s := range nordicSuffixes {
			if strings.HasSuffix(ticker, s) {
				out[name] = ticker
				break
			}
		}
	}
	return out
}
