package quality

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a quality report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Data Quality Report\n\n")
	sb.WriteString(fmt.Sprintf("Underlying: %s | Dates: %d | Flagged: %d | Min spot ticks: %d\n\n",
		r.Underlying, len(r.Dates), r.Flagged, r.MinSpotTicks))

	sb.WriteString("| Date | Spot Ticks | First | Last | Expiries | Expiry | Strikes | Status |\n")
	sb.WriteString("|------|------------|-------|------|----------|--------|---------|--------|\n")
	for _, d := range r.Dates {
		status := "OK"
		if !d.OK() {
			status = strings.Join(d.Issues, "; ")
		}
		expiry := "-"
		if d.Expiry != nil {
			expiry = d.Expiry.Format("2006-01-02")
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %d | %s | %d | %s |\n",
			d.Date.Format("2006-01-02"), d.SpotTicks,
			clock(d.FirstTick), clock(d.LastTick),
			d.Expiries, expiry, d.Strikes, status))
	}
	sb.WriteString("\n")

	return sb.String()
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05")
}
