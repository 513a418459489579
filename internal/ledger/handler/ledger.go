package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/repository"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/service"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

const expiryDateLayout = "2006-01-02"

// LedgerHandler handles the ledger's mutation and history endpoints
type LedgerHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(svc *service.LedgerService, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: svc,
		logger:  log,
	}
}

// Receive records a stock receipt, creating a new batch
func (h *LedgerHandler) Receive(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req struct {
		Quantity   int     `json:"quantity" validate:"required,gt=0"`
		ExpiryDate *string `json:"expiry_date,omitempty"`
		Note       *string `json:"note,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	expiry, err := parseExpiryDate(req.ExpiryDate)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Receive(r.Context(), itemID, req.Quantity, expiry, req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// Consume draws stock in FEFO order
func (h *LedgerHandler) Consume(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req struct {
		Quantity int    `json:"quantity" validate:"min=0"`
		Reason   string `json:"reason" validate:"required,oneof=SALE MANUAL_STOCK_OUT"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Consume(r.Context(), itemID, req.Quantity, domain.Reason(req.Reason))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// ConsumeFromBatch draws stock from one operator-chosen batch
func (h *LedgerHandler) ConsumeFromBatch(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req struct {
		BatchID  string  `json:"batch_id" validate:"required,uuid"`
		Quantity int     `json:"quantity" validate:"required,gt=0"`
		Reason   string  `json:"reason" validate:"required,oneof=SALE MANUAL_STOCK_OUT"`
		Note     *string `json:"note,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.ConsumeFromBatch(r.Context(), itemID, req.BatchID, req.Quantity, domain.Reason(req.Reason), req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Adjust records a direct correction entry
func (h *LedgerHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req struct {
		Delta int     `json:"delta" validate:"required"`
		Note  *string `json:"note,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Adjust(r.Context(), itemID, req.Delta, req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Reconcile recomputes the cached total from the ledger
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	result, err := h.service.Reconcile(r.Context(), itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// History reads the item's ledger entries.
// Query params: order (audit|display), filter (all|receipts|stock_outs),
// since (entry id cursor), limit.
func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	q := repository.HistoryQuery{
		Order:  repository.OrderEntryAsc,
		Filter: repository.FilterAll,
	}

	if r.URL.Query().Get("order") == "display" {
		q.Order = repository.OrderDateDesc
	}

	switch r.URL.Query().Get("filter") {
	case "", "all":
	case "receipts":
		q.Filter = repository.FilterReceipts
	case "stock_outs":
		q.Filter = repository.FilterStockOuts
	default:
		httputil.Error(w, errors.BadRequest("filter must be one of: all, receipts, stock_outs"))
		return
	}

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || since < 0 {
			httputil.Error(w, errors.BadRequest("since must be a non-negative entry id"))
			return
		}
		q.Since = since
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			httputil.Error(w, errors.BadRequest("limit must be a positive integer"))
			return
		}
		q.Limit = limit
	}

	entries, err := h.service.History(r.Context(), itemID, q)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

func parseExpiryDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(expiryDateLayout, *s)
	if err != nil {
		return nil, errors.Validation(map[string]string{
			"expiry_date": "must be a date in format " + expiryDateLayout,
		})
	}
	return &t, nil
}
