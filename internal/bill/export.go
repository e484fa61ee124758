package bill

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	itemsSheet  = "Line Items"
	issuesSheet = "Issues"

	// XLSXContentType is the media type of a spreadsheet export
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// WriteXLSX renders a reconciled bill as a workbook with its line items and issues
func WriteXLSX(w io.Writer, record *Record) error {
	if record == nil || record.Bill == nil {
		return fmt.Errorf("%w: record has no bill", ErrNotFound)
	}
	b := record.Bill

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", itemsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := []any{"Page Index", "Description", "Quantity", "Rate", "Amount", "Signature"}
	if err := f.SetSheetRow(itemsSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := 2
	for _, item := range b.Items() {
		cells := []any{
			item.PageIndex,
			item.Description,
			item.Quantity.InexactFloat64(),
			item.Rate.InexactFloat64(),
			item.Amount.InexactFloat64(),
			item.SourceSignature,
		}
		if err := f.SetSheetRow(itemsSheet, cellName(1, row), &cells); err != nil {
			return fmt.Errorf("writing item row %d: %w", row, err)
		}
		row++
	}

	totals := [][]any{{"", "Final total", "", "", b.FinalTotal.InexactFloat64()}}
	if b.Subtotal != nil {
		totals = append([][]any{{"", "Stated subtotal", "", "", b.Subtotal.InexactFloat64()}}, totals...)
	}
	row++
	for _, t := range totals {
		if err := f.SetSheetRow(itemsSheet, cellName(1, row), &t); err != nil {
			return fmt.Errorf("writing totals: %w", err)
		}
		row++
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	if err := f.SetCellStyle(itemsSheet, "D2", cellName(5, row), money); err != nil {
		return fmt.Errorf("styling amounts: %w", err)
	}

	if _, err := f.NewSheet(issuesSheet); err != nil {
		return fmt.Errorf("creating issues sheet: %w", err)
	}
	issueHeader := []any{"Kind", "Page Index", "Signature", "Detail"}
	if err := f.SetSheetRow(issuesSheet, "A1", &issueHeader); err != nil {
		return fmt.Errorf("writing issues header: %w", err)
	}
	for i, issue := range b.Issues {
		cells := []any{string(issue.Kind), issue.PageIndex, issue.ItemSignature, issue.Detail}
		if err := f.SetSheetRow(issuesSheet, cellName(1, i+2), &cells); err != nil {
			return fmt.Errorf("writing issue row: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
