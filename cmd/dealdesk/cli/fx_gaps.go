package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// FXGapsOptions configures the fx gaps command.
type FXGapsOptions struct {
	From       string
	To         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// FXGapsSummary is the JSON response for fx gaps.
type FXGapsSummary struct {
	OK      bool        `json:"ok"`
	From    string      `json:"from"`
	To      string      `json:"to"`
	Checked int         `json:"checked"`
	Gaps    []FXGapItem `json:"gaps"`
}

// FXGapItem is one missing (date, currency) row.
type FXGapItem struct {
	Date     string `json:"date"`
	Currency string `json:"currency"`
}

// GapsCommand reports missing rate rows. It exits 10 when gaps exist so
// scripts can alert on them.
func (c *FXOpsCLI) GapsCommand(ctx context.Context, opts FXGapsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	from, err := time.Parse(dateLayout, strings.TrimSpace(opts.From))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx gaps: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to, err := time.Parse(dateLayout, strings.TrimSpace(opts.To))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx gaps: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return 1
	}
	if from.After(to) {
		fmt.Fprintln(opts.Stderr, "fx gaps: --from must not be after --to")
		return 1
	}
	report, err := c.rates.Gaps(ctx, from, to)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx gaps: %v\n", err)
		return 1
	}
	summary := FXGapsSummary{
		OK:      len(report.Gaps) == 0,
		From:    from.Format(dateLayout),
		To:      to.Format(dateLayout),
		Checked: report.Checked,
		Gaps:    make([]FXGapItem, 0, len(report.Gaps)),
	}
	for _, gap := range report.Gaps {
		summary.Gaps = append(summary.Gaps, FXGapItem{Date: gap.Date.Format(dateLayout), Currency: gap.Currency})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "fx gaps: encode json: %v\n", err)
			return 1
		}
	} else {
		renderGapsHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderGapsHuman(out io.Writer, summary FXGapsSummary) {
	fmt.Fprintf(out, "FX gaps from %s to %s (%d checked)\n", summary.From, summary.To, summary.Checked)
	if summary.OK {
		fmt.Fprintln(out, "All rates are present.")
		return
	}
	fmt.Fprintf(out, "%d gap(s) detected:\n", len(summary.Gaps))
	for _, gap := range summary.Gaps {
		fmt.Fprintf(out, " - %s %s\n", gap.Date, gap.Currency)
	}
}
