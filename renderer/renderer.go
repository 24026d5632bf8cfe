// Package renderer turns portfolio views into markdown.
//
// Every report is an assembly template (e.g. "watch.md") that includes partials named
// after it ("watch_table.md", "watch_status.md"). The markdown is printed as is or
// styled for the terminal by the caller.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed *.md
var templates embed.FS

// RenderHoldings renders the positions table with its totals.
func RenderHoldings(h *Holdings) string {
	partials := map[string]string{
		"holdings_table":  "holdings_table.md",
		"holdings_totals": "holdings_totals.md",
	}
	return renderTemplate("holdings", "holdings.md", partials, h)
}

// WatchRenderOptions holds configuration for rendering the watch table.
type WatchRenderOptions struct {
	SkipStatus bool // Do not render the update status footer.
}

// RenderWatch renders the live prices table.
func RenderWatch(w *Watch, opts WatchRenderOptions) string {
	partials := map[string]string{
		"watch_table":  "watch_table.md",
		"watch_status": "watch_status.md",
	}
	// An empty file name results in an empty template.
	if opts.SkipStatus {
		partials["watch_status"] = ""
	}
	return renderTemplate("watch", "watch.md", partials, w)
}

// RenderCapital renders the capital summary: flows, gains and returns.
func RenderCapital(c *Capital) string {
	partials := map[string]string{
		"capital_flows":   "capital_flows.md",
		"capital_returns": "capital_returns.md",
	}
	return renderTemplate("capital", "capital.md", partials, c)
}

// RenderSells renders the numbered list of recent sells.
func RenderSells(s *Sells) string {
	return renderTemplate("sells", "sells.md", nil, s)
}

// RenderBuys renders the numbered list of recent buys.
func RenderBuys(b *Buys) string {
	return renderTemplate("buys", "buys.md", nil, b)
}

// RenderValidation renders the historical data report.
func RenderValidation(v *Validation) string {
	partials := map[string]string{
		"validation_issues": "validation_issues.md",
	}
	return renderTemplate("validation", "validation.md", partials, v)
}

// RenderCorrelation renders the correlation matrices or the ranking against a base stock.
func RenderCorrelation(c *Correlation) string {
	partials := map[string]string{
		"correlation_matrix":  "correlation_matrix.md",
		"correlation_ranking": "correlation_ranking.md",
	}
	return renderTemplate("correlation", "correlation.md", partials, c)
}

// RenderShorts renders the short selling exposure of the portfolio.
func RenderShorts(s *Shorts) string {
	partials := map[string]string{
		"shorts_positions": "shorts_positions.md",
		"shorts_holders":   "shorts_holders.md",
	}
	return renderTemplate("shorts", "shorts.md", partials, s)
}

// RenderTimeline renders the value of the portfolio at each capital event.
func RenderTimeline(t *Timeline) string {
	return renderTemplate("timeline", "timeline.md", nil, t)
}

// RenderJobs renders the state of the background jobs.
func RenderJobs(j *Jobs) string {
	return renderTemplate("jobs", "jobs.md", nil, j)
}

// RenderFunds renders the managed funds valued at their latest NAV.
func RenderFunds(f *Funds) string {
	return renderTemplate("funds", "funds.md", nil, f)
}

// RenderSearch renders the symbols matching a query.
func RenderSearch(s *Search) string {
	return renderTemplate("search", "search.md", nil, s)
}

// renderTemplate is a generic utility to render a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		if file != "" {
			var readErr error
			content, readErr = fs.ReadFile(templates, file)
			if readErr != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, readErr)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
