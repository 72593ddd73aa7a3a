package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/logistics"
)

type stubRates struct {
	imported []fx.Rate
	inserted int
	report   fx.GapReport
	err      error
}

func (s *stubRates) Import(_ context.Context, rates []fx.Rate) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.imported = append(s.imported, rates...)
	return s.inserted, nil
}

func (s *stubRates) Gaps(_ context.Context, from, to time.Time) (fx.GapReport, error) {
	if s.err != nil {
		return fx.GapReport{}, s.err
	}
	report := s.report
	report.From, report.To = from, to
	return report, nil
}

func newFXCLI(t *testing.T, rates *stubRates) *FXOpsCLI {
	t.Helper()
	cli, err := NewFXOpsCLI(rates)
	require.NoError(t, err)
	return cli
}

func TestImportCommandCSV(t *testing.T) {
	rates := &stubRates{inserted: 2}
	cli := newFXCLI(t, rates)

	source := strings.Join([]string{
		"# daily rates",
		"date,currency,rate",
		"2026-03-02,usd,90.5",
		"",
		"2026-03-01,EUR,\"98,25\"",
	}, "\n")
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.ImportCommand(context.Background(), FXImportOptions{
		SourceReader: strings.NewReader(source),
		Format:       "csv",
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       stderr,
	})
	require.Zero(t, code, stderr.String())

	require.Len(t, rates.imported, 2)
	require.Equal(t, "EUR", rates.imported[0].Currency)
	require.True(t, rates.imported[0].Rate.Equal(decimal.RequireFromString("98.25")))
	require.Equal(t, "USD", rates.imported[1].Currency)

	var summary FXImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, 2, summary.Rows)
	require.Equal(t, 2, summary.Inserted)
	require.False(t, summary.DryRun)
}

func TestImportCommandXLSX(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]any{"rate_date", "code", "value", "source"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]any{"2026-03-02", "CNY", "12.4", "bank"}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	rates := &stubRates{inserted: 1}
	cli := newFXCLI(t, rates)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.ImportCommand(context.Background(), FXImportOptions{
		SourceReader: buf,
		Format:       "xlsx",
		Stdout:       stdout,
		Stderr:       stderr,
	})
	require.Zero(t, code, stderr.String())
	require.Len(t, rates.imported, 1)
	require.Equal(t, "bank", rates.imported[0].Source)
	require.Contains(t, stdout.String(), "1 inserted")
}

func TestImportCommandDryRunDoesNotWrite(t *testing.T) {
	rates := &stubRates{}
	cli := newFXCLI(t, rates)
	stdout := new(bytes.Buffer)
	code := cli.ImportCommand(context.Background(), FXImportOptions{
		SourceReader: strings.NewReader("date,currency,rate\n2026-03-02,USD,90\n"),
		DryRun:       true,
		Stdout:       stdout,
		Stderr:       new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Empty(t, rates.imported)
	require.Contains(t, stdout.String(), "dry run")
}

func TestImportCommandRejectsBadSource(t *testing.T) {
	cases := map[string]string{
		"missing column": "date,rate\n2026-03-02,90\n",
		"bad date":       "date,currency,rate\n02.03.2026,USD,90\n",
		"bad rate":       "date,currency,rate\n2026-03-02,USD,ninety\n",
		"empty":          "",
	}
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			rates := &stubRates{}
			stderr := new(bytes.Buffer)
			code := newFXCLI(t, rates).ImportCommand(context.Background(), FXImportOptions{
				SourceReader: strings.NewReader(source),
				Stdout:       new(bytes.Buffer),
				Stderr:       stderr,
			})
			require.Equal(t, 1, code)
			require.NotEmpty(t, stderr.String())
			require.Empty(t, rates.imported)
		})
	}
}

func TestImportCommandReportsServiceError(t *testing.T) {
	rates := &stubRates{err: errors.New("validation failed: currency is not a known ISO 4217 currency")}
	stderr := new(bytes.Buffer)
	code := newFXCLI(t, rates).ImportCommand(context.Background(), FXImportOptions{
		SourceReader: strings.NewReader("date,currency,rate\n2026-03-02,XXZ,1\n"),
		Stdout:       new(bytes.Buffer),
		Stderr:       stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "ISO 4217")
}

func TestGapsCommandJSON(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rates := &stubRates{report: fx.GapReport{Checked: 8, Gaps: []fx.Gap{{Date: day, Currency: "TRY"}}}}
	stdout := new(bytes.Buffer)
	code := newFXCLI(t, rates).GapsCommand(context.Background(), FXGapsOptions{
		From:       "2026-03-01",
		To:         "2026-03-02",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Equal(t, 10, code)

	var summary FXGapsSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, []FXGapItem{{Date: "2026-03-02", Currency: "TRY"}}, summary.Gaps)
}

func TestGapsCommandNoGaps(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := newFXCLI(t, &stubRates{report: fx.GapReport{Checked: 4}}).GapsCommand(context.Background(), FXGapsOptions{
		From:   "2026-03-01",
		To:     "2026-03-01",
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "All rates are present.")
}

func TestGapsCommandValidatesRange(t *testing.T) {
	cli := newFXCLI(t, &stubRates{})
	for _, opts := range []FXGapsOptions{
		{From: "2026-03", To: "2026-03-02"},
		{From: "2026-03-01", To: "tomorrow"},
		{From: "2026-03-05", To: "2026-03-01"},
	} {
		opts.Stdout, opts.Stderr = new(bytes.Buffer), new(bytes.Buffer)
		require.Equal(t, 1, cli.GapsCommand(context.Background(), opts))
	}
}

type stubBackfiller struct {
	batch  int
	result logistics.BackfillResult
	err    error
}

func (s *stubBackfiller) Backfill(_ context.Context, batch int) (logistics.BackfillResult, error) {
	s.batch = batch
	return s.result, s.err
}

func TestLogisticsBackfillCommand(t *testing.T) {
	stages := &stubBackfiller{result: logistics.BackfillResult{Deals: 3, Stages: 15}}
	cli, err := NewLogisticsOpsCLI(stages)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.BackfillCommand(context.Background(), LogisticsBackfillOptions{Batch: 50, JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Equal(t, 50, stages.batch)
	require.JSONEq(t, `{"ok":true,"deals":3,"stages":15}`, stdout.String())
}

func TestLogisticsBackfillCommandPartialFailure(t *testing.T) {
	stages := &stubBackfiller{result: logistics.BackfillResult{Deals: 1, Stages: 5}, err: errors.New("backfill stages: 2 deals failed")}
	cli, err := NewLogisticsOpsCLI(stages)
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.BackfillCommand(context.Background(), LogisticsBackfillOptions{Stdout: stdout, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stdout.String(), "1 deal(s), 5 stage(s)")
	require.Contains(t, stderr.String(), "2 deals failed")
}

func TestJobsTriggerRequiresClient(t *testing.T) {
	cli := &JobsCLI{}
	_, err := cli.Trigger(context.Background(), "fx:refresh")
	require.Error(t, err)
	require.Equal(t, 1, cli.TriggerCommand(context.Background(), "fx:refresh", new(bytes.Buffer), new(bytes.Buffer)))
	require.Equal(t, 1, cli.StatsCommand(context.Background(), new(bytes.Buffer), new(bytes.Buffer)))
}
