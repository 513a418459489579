package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/domain"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/service"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
)

// ItemHandler handles item catalog endpoints
type ItemHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(svc *service.LedgerService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		service: svc,
		logger:  log,
	}
}

// Create creates a new item
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string `json:"name" validate:"required,min=1,max=200"`
		Category         string `json:"category" validate:"max=100"`
		ReorderThreshold int    `json:"reorder_threshold" validate:"min=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item := &domain.Item{
		Name:             req.Name,
		Category:         req.Category,
		ReorderThreshold: req.ReorderThreshold,
	}
	if err := h.service.CreateItem(r.Context(), item); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// List lists active items with stock status
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}

// Get gets an item with its open batches
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Delete soft-deletes an item
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
