package renderer

import (
	"bytes"
	"io"
)

// ConditionalBlock let you fully write a block and decide at the end to print it or not.
// If the block function returns true, the content is printed to w, otherwise it is discarded.
func ConditionalBlock(w io.Writer, block func(io.Writer) bool) {
	bw := &bytes.Buffer{}
	if block(bw) {
		io.Copy(w, bw)
	}
}

// Dashboard is the holdings report followed by the capital and short selling sections,
// when they have something to say.
type Dashboard struct {
	Holdings *Holdings
	Capital  *Capital  // nil when capital tracking is not initialized
	Shorts   *Shorts
}

// RenderDashboard writes the dashboard to w.
func RenderDashboard(w io.Writer, d *Dashboard) {
	io.WriteString(w, RenderHoldings(d.Holdings))
	ConditionalBlock(w, func(w io.Writer) bool {
		if d.Capital == nil || d.Capital.NumEvents == 0 {
			return false
		}
		io.WriteString(w, "\n"+RenderCapital(d.Capital))
		return true
	})
	ConditionalBlock(w, func(w io.Writer) bool {
		if d.Shorts == nil || d.Shorts.Summary == nil {
			return false
		}
		io.WriteString(w, "\n"+renderTemplate("dashboard_shorts", "shorts_positions.md", nil, d.Shorts))
		return len(d.Shorts.Summary.Positions) > 0
	})
}
