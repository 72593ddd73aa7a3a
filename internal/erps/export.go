package erps

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const registrySheet = "ERPS"

var registryHeader = []any{
	"Specification", "Quote IDN", "Customer", "Signed", "Delivery deadline", "Advance deadline", "Days remaining",
	"Quote total", "Quote currency", "Total USD", "Planned advance", "Paid", "Remaining", "Remaining %", "Spent", "Profit",
	"Next planned payment", "Overdue planned",
}

// ExportXLSX writes the registry as a single-sheet workbook.
func ExportXLSX(entries []Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), registrySheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(registrySheet, "A1", &registryHeader); err != nil {
		return nil, fmt.Errorf("erps export header: %w", err)
	}
	for i, e := range entries {
		row := []any{
			e.Number,
			deref(e.QuoteIDN),
			e.CustomerName,
			e.SignDate.Format(time.DateOnly),
			e.DeliveryDeadline.Format(time.DateOnly),
			e.AdvanceDeadline.Format(time.DateOnly),
			e.DaysRemaining,
			e.QuoteTotal.InexactFloat64(),
			e.QuoteCurrency,
			e.Total.InexactFloat64(),
			e.PlannedAdvance.InexactFloat64(),
			e.TotalPaid.InexactFloat64(),
			e.Remaining.InexactFloat64(),
			e.RemainingPercent.InexactFloat64(),
			e.TotalSpent.InexactFloat64(),
			e.ActualProfit.InexactFloat64(),
			"",
			e.OverduePlanned,
		}
		if e.NextPlannedDate != nil {
			row[16] = e.NextPlannedDate.Format(time.DateOnly)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(registrySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("erps export row %d: %w", i+2, err)
		}
	}
	if err := f.SetPanes(registrySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("erps export write: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
