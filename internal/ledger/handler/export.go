package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/service"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// ExportHandler handles PDF export endpoints
type ExportHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(svc *service.LedgerService, log *logger.Logger) *ExportHandler {
	return &ExportHandler{
		service: svc,
		logger:  log,
	}
}

// StockRegister generates and serves an item's stock register PDF
func (h *ExportHandler) StockRegister(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	pdfBytes, err := h.service.ExportStockRegister(r.Context(), itemID)
	if err != nil {
		h.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to generate stock register PDF")
		httputil.Error(w, err)
		return
	}

	filename := fmt.Sprintf("stock-register-%s.pdf", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))
	w.Write(pdfBytes)
}
