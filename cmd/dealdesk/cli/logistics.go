package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/dealdesk/internal/logistics"
)

// StageBackfiller provisions stages for deals that have none.
type StageBackfiller interface {
	Backfill(ctx context.Context, batch int) (logistics.BackfillResult, error)
}

// LogisticsOpsCLI exposes stage maintenance helpers.
type LogisticsOpsCLI struct {
	stages StageBackfiller
}

// NewLogisticsOpsCLI constructs the helper.
func NewLogisticsOpsCLI(stages StageBackfiller) (*LogisticsOpsCLI, error) {
	if stages == nil {
		return nil, errors.New("logistics cli: backfiller required")
	}
	return &LogisticsOpsCLI{stages: stages}, nil
}

// LogisticsBackfillOptions configures the backfill command.
type LogisticsBackfillOptions struct {
	Batch      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type backfillSummary struct {
	OK     bool   `json:"ok"`
	Deals  int    `json:"deals"`
	Stages int    `json:"stages"`
	Error  string `json:"error,omitempty"`
}

// BackfillCommand runs the backfill in-process. Partial progress is reported
// even when some deals fail.
func (c *LogisticsOpsCLI) BackfillCommand(ctx context.Context, opts LogisticsBackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Batch < 0 {
		fmt.Fprintln(opts.Stderr, "logistics backfill: --batch must not be negative")
		return 1
	}
	result, err := c.stages.Backfill(ctx, opts.Batch)
	summary := backfillSummary{OK: err == nil, Deals: result.Deals, Stages: result.Stages}
	if err != nil {
		summary.Error = err.Error()
	}
	if opts.JSONOutput {
		if encErr := json.NewEncoder(opts.Stdout).Encode(summary); encErr != nil {
			fmt.Fprintf(opts.Stderr, "logistics backfill: encode json: %v\n", encErr)
			return 1
		}
	} else {
		fmt.Fprintf(opts.Stdout, "Stages backfilled: %d deal(s), %d stage(s)\n", summary.Deals, summary.Stages)
	}
	if err != nil {
		fmt.Fprintf(opts.Stderr, "logistics backfill: %v\n", err)
		return 1
	}
	return 0
}
