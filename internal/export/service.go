package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/coopscan/receipts-api/internal/repository"
)

// Service is a tiny façade over the record repository that produces XLSX
// bytes for dashboard exports.
type Service struct {
	records repository.RecordRepository
	logger  *slog.Logger
}

func NewService(records repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// RecordsXLSX returns a workbook with up to limit records, newest first.
func (s *Service) RecordsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	recs, err := s.records.List(ctx, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Records"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Date",
		"Transaction Reference",
		"Account Number",
		"Customer Name",
		"Company",
		"Electricity Bill",
		"Amount Due",
		"Total Sales",
		"Scanner",
		"Captured At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.Date)
		write(2, r.TransactionRef)
		write(3, r.AccountNumber)
		write(4, r.CustomerName)
		write(5, r.Company)
		write(6, fmt.Sprintf("%.2f", r.ElectricityBill))
		if r.AmountDue != nil {
			write(7, fmt.Sprintf("%.2f", *r.AmountDue))
		}
		if r.TotalSales != nil {
			write(8, fmt.Sprintf("%.2f", *r.TotalSales))
		}
		write(9, r.ScannerName)
		write(10, r.CreatedAt.UTC().Format(time.RFC3339))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "C", 24)
	_ = f.SetColWidth(sheet, "D", "E", 30)
	_ = f.SetColWidth(sheet, "F", "H", 16)
	_ = f.SetColWidth(sheet, "I", "I", 18)
	_ = f.SetColWidth(sheet, "J", "J", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
