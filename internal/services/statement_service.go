package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"modelhub_go_backend/internal/models"

	"github.com/jung-kurt/gofpdf"
)

const statementTopModels = 10

// StatementService renders a monthly usage statement as a PDF.
type StatementService struct {
	usage *UsageService
}

func NewStatementService(usage *UsageService) *StatementService {
	return &StatementService{usage: usage}
}

func (s *StatementService) Render(ctx context.Context, user *models.User, year int, month time.Month) ([]byte, error) {
	if month < time.January || month > time.December {
		return nil, NewValidationError("month must be between 1 and 12")
	}
	clock := s.usage.Clock()
	from, to := clock.Month(time.Date(year, month, 1, 12, 0, 0, 0, clock.Location()))

	days, err := s.usage.DailySummaries(ctx, user.ID, from, to.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	top, err := s.usage.TopModels(ctx, user.ID, from, to, statementTopModels)
	if err != nil {
		return nil, err
	}
	total := aggregateSummaries(days)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Usage statement %04d-%02d", year, month), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Usage statement for %s %d", month, year))
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Account: %s (%s)", user.DisplayName(), user.Email))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Requests: %d   Tokens: %d   Cost: $%s", total.TotalRequests, total.TotalTokens, total.TotalCost.StringFixed(4)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Monthly cost limit: $%s", user.MonthlyCostLimit.StringFixed(2)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	for _, h := range []struct {
		w    float64
		text string
	}{{40, "Date"}, {35, "Requests"}, {40, "Tokens"}, {40, "Cost (USD)"}, {35, "Success %"}} {
		pdf.CellFormat(h.w, 7, h.text, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	// Oldest first.
	for i := len(days) - 1; i >= 0; i-- {
		d := days[i]
		if d.TotalRequests == 0 {
			continue
		}
		pdf.CellFormat(40, 6, d.Date, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", d.TotalRequests), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", d.TotalTokens), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, d.TotalCost.StringFixed(4), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.1f", d.SuccessRate), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(top) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 7, "Top models")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		for _, m := range top {
			pdf.CellFormat(100, 6, m.DisplayName, "1", 0, "L", false, 0, "")
			pdf.CellFormat(35, 6, fmt.Sprintf("%d", m.Requests), "1", 0, "R", false, 0, "")
			pdf.CellFormat(45, 6, m.Cost.StringFixed(4), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render statement: %w", err)
	}
	return buf.Bytes(), nil
}

func aggregateSummaries(days []DailySummary) DailySummary {
	var out DailySummary
	for _, d := range days {
		out.TotalRequests += d.TotalRequests
		out.TotalTokens += d.TotalTokens
		out.TotalCost = out.TotalCost.Add(d.TotalCost)
	}
	return out
}
