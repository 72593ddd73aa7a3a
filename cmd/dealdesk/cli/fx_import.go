package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/dealdesk/internal/fx"
)

// FXImportOptions configures the fx import command.
type FXImportOptions struct {
	Source       string
	SourceReader io.Reader
	Format       string
	Sheet        string
	DryRun       bool
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
}

// FXImportSummary is the structured import outcome.
type FXImportSummary struct {
	Rows     int              `json:"rows"`
	Inserted int              `json:"inserted"`
	DryRun   bool             `json:"dry_run"`
	Rates    []FXImportedRate `json:"rates"`
}

// FXImportedRate is one parsed source row.
type FXImportedRate struct {
	Date     string `json:"date"`
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

// ImportCommand loads rates from a CSV or XLSX file and appends the ones not
// yet stored. Existing (date, currency) rows are never overwritten.
func (c *FXOpsCLI) ImportCommand(ctx context.Context, opts FXImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	rates, err := loadRates(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return 1
	}
	if len(rates) == 0 {
		fmt.Fprintln(opts.Stderr, "fx import: source contains no rates")
		return 1
	}
	summary := FXImportSummary{Rows: len(rates), DryRun: opts.DryRun}
	for _, rate := range rates {
		summary.Rates = append(summary.Rates, FXImportedRate{
			Date:     rate.Date.Format(dateLayout),
			Currency: rate.Currency,
			Rate:     rate.Rate.String(),
		})
	}
	if !opts.DryRun {
		inserted, err := c.rates.Import(ctx, rates)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
			return 1
		}
		summary.Inserted = inserted
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "fx import: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	if summary.DryRun {
		fmt.Fprintf(opts.Stdout, "FX import (dry run): %d row(s) parsed\n", summary.Rows)
	} else {
		fmt.Fprintf(opts.Stdout, "FX import: %d row(s) parsed, %d inserted, %d already present\n", summary.Rows, summary.Inserted, summary.Rows-summary.Inserted)
	}
	for _, rate := range summary.Rates {
		fmt.Fprintf(opts.Stdout, " - %s %s %s\n", rate.Date, rate.Currency, rate.Rate)
	}
	return 0
}

func loadRates(opts FXImportOptions) ([]fx.Rate, error) {
	var data []byte
	var err error
	switch {
	case opts.SourceReader != nil:
		data, err = io.ReadAll(opts.SourceReader)
	case opts.Source == "-":
		data, err = io.ReadAll(opts.Stdin)
	case strings.TrimSpace(opts.Source) == "":
		return nil, errors.New("--file is required")
	default:
		data, err = os.ReadFile(opts.Source)
	}
	if err != nil {
		return nil, err
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.Source)), ".")
	}
	var records [][]string
	switch format {
	case "", "csv":
		records, err = csvRecords(data)
	case "xlsx":
		records, err = xlsxRecords(data, opts.Sheet)
	default:
		return nil, fmt.Errorf("unsupported format %q (expected csv or xlsx)", format)
	}
	if err != nil {
		return nil, err
	}
	return parseRateRecords(records)
}

func csvRecords(data []byte) ([][]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	var records [][]string
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, err
		}
		records = append(records, record)
	}
}

func xlsxRecords(data []byte, sheet string) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = book.Close() }()
	if sheet == "" {
		sheet = book.GetSheetName(0)
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// parseRateRecords reads a header row naming date, currency and rate columns
// (source is optional), then one rate per row. Blank and #-prefixed rows are
// skipped.
func parseRateRecords(records [][]string) ([]fx.Rate, error) {
	records = dropBlankRecords(records)
	if len(records) == 0 {
		return nil, nil
	}
	indexes := map[string]int{"date": -1, "currency": -1, "rate": -1, "source": -1}
	for i, col := range records[0] {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "date", "rate_date":
			indexes["date"] = i
		case "currency", "code":
			indexes["currency"] = i
		case "rate", "value":
			indexes["rate"] = i
		case "source":
			indexes["source"] = i
		}
	}
	if indexes["date"] < 0 || indexes["currency"] < 0 || indexes["rate"] < 0 {
		return nil, errors.New("missing required columns in source (need date, currency, rate)")
	}
	rates := make([]fx.Rate, 0, len(records)-1)
	for line, record := range records[1:] {
		row := line + 2
		if indexes["date"] >= len(record) || indexes["currency"] >= len(record) || indexes["rate"] >= len(record) {
			return nil, fmt.Errorf("row %d: invalid record length", row)
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(record[indexes["date"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q (expected YYYY-MM-DD)", row, record[indexes["date"]])
		}
		value, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(record[indexes["rate"]], ",", ".")))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid rate %q", row, record[indexes["rate"]])
		}
		rate := fx.Rate{
			Date:     date,
			Currency: strings.ToUpper(strings.TrimSpace(record[indexes["currency"]])),
			Rate:     value,
		}
		if i := indexes["source"]; i >= 0 && i < len(record) {
			rate.Source = strings.TrimSpace(record[i])
		}
		rates = append(rates, rate)
	}
	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].Date.Equal(rates[j].Date) {
			return rates[i].Currency < rates[j].Currency
		}
		return rates[i].Date.Before(rates[j].Date)
	})
	return rates, nil
}

func dropBlankRecords(records [][]string) [][]string {
	out := records[:0:0]
	for _, record := range records {
		skip := true
		for _, field := range record {
			trimmed := strings.TrimSpace(field)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			skip = false
		}
		if !skip {
			out = append(out, record)
		}
	}
	return out
}
