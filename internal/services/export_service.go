package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/xuri/excelize/v2"
)

// ExportService produces the monthly reconciliation report in CSV and XLSX
type ExportService struct {
	paymentRepo repository.PaymentRepository
}

func NewExportService(paymentRepo repository.PaymentRepository) *ExportService {
	return &ExportService{paymentRepo: paymentRepo}
}

func (s *ExportService) ExportMonthCSV(ctx context.Context, year int, month time.Month) ([]byte, string, error) {
	payments, err := s.paymentRepo.FindByMonth(ctx, year, month)
	if err != nil {
		return nil, "", err
	}

	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	_ = writer.Write([]string{"Billing Report", fmt.Sprintf("%s %d", month, year)})
	_ = writer.Write([]string{""})
	_ = writer.Write([]string{"Payment", "Lease", "Payer", "Type", "Status", "Amount", "Due Date", "Paid At", "Charge Ref"})

	var collected, outstanding float64
	for i := range payments {
		p := &payments[i]
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = p.PaidAt.Format("2006-01-02")
		}
		_ = writer.Write([]string{
			p.PaymentNumber,
			fmt.Sprintf("%d", p.LeaseID),
			p.Payer.Email,
			p.PaymentType,
			p.Status,
			fmt.Sprintf("%.2f", p.Amount),
			p.DueDate.Format("2006-01-02"),
			paidAt,
			derefStr(p.GatewayChargeID),
		})
		switch p.Status {
		case models.PaymentStatusSucceeded:
			collected += p.Amount
		case models.PaymentStatusPending, models.PaymentStatusProcessing, models.PaymentStatusFailed:
			outstanding += p.Amount
		}
	}

	_ = writer.Write([]string{""})
	_ = writer.Write([]string{"Collected", fmt.Sprintf("%.2f", collected)})
	_ = writer.Write([]string{"Outstanding", fmt.Sprintf("%.2f", outstanding)})

	writer.Flush()

	filename := fmt.Sprintf("billing_report_%d-%02d.csv", year, month)
	return buf.Bytes(), filename, nil
}

func (s *ExportService) ExportMonthXLSX(ctx context.Context, year int, month time.Month) ([]byte, string, error) {
	payments, err := s.paymentRepo.FindByMonth(ctx, year, month)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Payments"
	_ = f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Billing Report %s %d", month, year))
	_ = f.SetCellStyle(sheet, "A1", "A1", headerStyle)

	headers := []string{"Payment", "Lease", "Payer", "Type", "Status", "Amount", "Due Date", "Paid At", "Charge Ref"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 3)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	var collected, outstanding float64
	row := 4
	for i := range payments {
		p := &payments[i]
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = p.PaidAt.Format("2006-01-02")
		}
		values := []interface{}{
			p.PaymentNumber,
			p.LeaseID,
			p.Payer.Email,
			p.PaymentType,
			p.Status,
			p.Amount,
			p.DueDate.Format("2006-01-02"),
			paidAt,
			derefStr(p.GatewayChargeID),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		switch p.Status {
		case models.PaymentStatusSucceeded:
			collected += p.Amount
		case models.PaymentStatusPending, models.PaymentStatusProcessing, models.PaymentStatusFailed:
			outstanding += p.Amount
		}
		row++
	}

	row++
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Collected")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), collected)
	row++
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Outstanding")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), outstanding)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("billing_report_%d-%02d.xlsx", year, month)
	return buf.Bytes(), filename, nil
}
