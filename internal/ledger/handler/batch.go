package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/service"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// BatchHandler handles batch read endpoints. Batches are never created or
// mutated directly over HTTP; receipts and draws go through the ledger.
type BatchHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.LedgerService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// ListByItem lists an item's batches. By default only open batches in
// allocation order; ?include=all adds drained ones for audit views.
func (h *BatchHandler) ListByItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	if r.URL.Query().Get("include") == "all" {
		batches, err := h.service.ListBatches(r.Context(), itemID)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, batches)
		return
	}

	batches, err := h.service.ListOpenBatches(r.Context(), itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Expiring lists open batches expiring within ?days (default: the
// configured alert window)
func (h *BatchHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := 0
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 {
			httputil.Error(w, errors.BadRequest("days must be a positive integer"))
			return
		}
		days = parsed
	}

	batches, err := h.service.ExpiringBatches(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}
