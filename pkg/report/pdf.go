// Package report renders amortization schedules as downloadable PDF documents.
package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/avidalv/mortgage-tracker/pkg/amortization"
	"github.com/avidalv/mortgage-tracker/pkg/datetime"
	"github.com/avidalv/mortgage-tracker/pkg/mortgage"
)

const (
	marginLeft   = 15.0
	marginTop    = 15.0
	marginRight  = 15.0
	marginBottom = 20.0
	contentWidth = 180.0
	rowHeight    = 5.0
)

// pdfMoney formats money for PDF output. Standard PDF fonts expect Latin-1,
// so the euro sign is written as its CP1252 byte rather than UTF-8.
func pdfMoney(amount float64) string {
	return fmt.Sprintf("%.2f \x80", amount)
}

type schedulePDF struct {
	pdf      *fpdf.Fpdf
	mortgage mortgage.Mortgage
	schedule []amortization.Payment
	summary  amortization.Summary
}

// SchedulePDF renders the full amortization schedule for a mortgage as a PDF.
func SchedulePDF(m mortgage.Mortgage, schedule []amortization.Payment, summary amortization.Summary) ([]byte, error) {
	r := &schedulePDF{
		pdf:      fpdf.New("P", "mm", "A4", ""),
		mortgage: m,
		schedule: schedule,
		summary:  summary,
	}

	r.pdf.SetMargins(marginLeft, marginTop, marginRight)
	r.pdf.SetAutoPageBreak(true, marginBottom)

	r.addHeader()
	r.addScheduleTable()
	r.addSummary()

	var buf bytes.Buffer
	if err := r.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render schedule PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *schedulePDF) addHeader() {
	r.pdf.AddPage()

	r.pdf.SetFont("Arial", "B", 18)
	r.pdf.SetTextColor(0, 51, 102)
	title := "Amortization Schedule"
	if r.mortgage.Name != "" {
		title = fmt.Sprintf("Amortization Schedule - %s", r.mortgage.Name)
	}
	r.pdf.CellFormat(contentWidth, 10, title, "", 1, "L", false, 0, "")

	r.pdf.SetFont("Arial", "", 10)
	r.pdf.SetTextColor(80, 80, 80)
	r.pdf.CellFormat(contentWidth, 6, fmt.Sprintf("Principal: %s | Nominal rate: %.2f%% | Term: %d months | Start: %s",
		pdfMoney(r.mortgage.TotalAmount), r.mortgage.InterestRate, r.mortgage.TermMonths,
		r.mortgage.StartDate.Format(datetime.DateLayout)), "", 1, "L", false, 0, "")
	r.pdf.Ln(4)
}

func (r *schedulePDF) addScheduleTable() {
	widths := []float64{12, 28, 28, 28, 28, 34, 22}
	headers := []string{"#", "Date", "Principal", "Interest", "Payment", "Balance", "Rate"}

	r.drawTableHeader(widths, headers)

	r.pdf.SetFont("Arial", "", 8)
	r.pdf.SetTextColor(50, 50, 50)
	for _, p := range r.schedule {
		if r.pdf.GetY() > 270 {
			r.pdf.AddPage()
			r.drawTableHeader(widths, headers)
			r.pdf.SetFont("Arial", "", 8)
			r.pdf.SetTextColor(50, 50, 50)
		}
		cells := []string{
			fmt.Sprintf("%d", p.Number),
			p.Date.Format(datetime.DateLayout),
			pdfMoney(p.Principal),
			pdfMoney(p.Interest),
			pdfMoney(p.TotalPayment),
			pdfMoney(p.RemainingBalance),
			fmt.Sprintf("%.2f%%", p.InterestRate),
		}
		for i, cell := range cells {
			align := "R"
			if i < 2 {
				align = "L"
			}
			r.pdf.CellFormat(widths[i], rowHeight, cell, "B", 0, align, false, 0, "")
		}
		r.pdf.Ln(rowHeight)
	}
}

func (r *schedulePDF) drawTableHeader(widths []float64, headers []string) {
	r.pdf.SetFont("Arial", "B", 8)
	r.pdf.SetTextColor(0, 51, 102)
	for i, h := range headers {
		align := "R"
		if i < 2 {
			align = "L"
		}
		r.pdf.CellFormat(widths[i], rowHeight+1, h, "B", 0, align, false, 0, "")
	}
	r.pdf.Ln(rowHeight + 1)
}

func (r *schedulePDF) addSummary() {
	r.pdf.Ln(4)
	r.pdf.SetFont("Arial", "B", 10)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 6, fmt.Sprintf("Payments: %d | Total principal: %s | Total interest: %s | Total paid: %s",
		r.summary.NumberOfPayments,
		pdfMoney(r.summary.TotalPrincipal),
		pdfMoney(r.summary.TotalInterest),
		pdfMoney(r.summary.TotalPayments)), "", 1, "L", false, 0, "")
}
