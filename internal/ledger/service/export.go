package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/repository"
)

// ExportStockRegister renders an item's full ledger as a PDF stock register:
// every entry in audit order with its batch, actor and resulting total.
func (s *LedgerService) ExportStockRegister(ctx context.Context, itemID string) ([]byte, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.History(ctx, itemID, repository.HistoryQuery{
		Order: repository.OrderEntryAsc,
	})
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Stock Register", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Stock Register")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Item: %s", item.Name))
	pdf.Ln(6)
	if item.Category != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Category: %s", item.Category))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, fmt.Sprintf("On hand: %d", item.OnHandQuantity))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04")))
	pdf.Ln(10)

	headers := []string{"Entry", "Date", "Reason", "Delta", "Total", "Batch", "Actor"}
	widths := []float64{15, 30, 35, 15, 15, 40, 40}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, e := range entries {
		pdf.CellFormat(widths[0], 6, fmt.Sprintf("%d", e.EntryID), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[1], 6, e.CreatedAt.Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, string(e.Reason), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, fmt.Sprintf("%+d", e.Delta), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprintf("%d", e.ResultingTotal), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 6, shortBatchID(e), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[6], 6, e.ActorName, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	if len(entries) == 0 {
		pdf.CellFormat(190, 6, "No ledger entries recorded", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render stock register: %w", err)
	}
	return buf.Bytes(), nil
}

// shortBatchID abbreviates a batch id for the register table. Adjustments
// have no batch.
func shortBatchID(e *domain.LedgerEntry) string {
	if e.BatchID == nil {
		return "-"
	}
	id := *e.BatchID
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
