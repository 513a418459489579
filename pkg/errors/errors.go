package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrBadRequest          = errors.New("bad request")
	ErrConflict            = errors.New("resource conflict")
	ErrInternal            = errors.New("internal server error")
	ErrValidation          = errors.New("validation error")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNegativeStock       = errors.New("negative stock guard tripped")
	ErrBatchShortfall      = errors.New("insufficient batch quantity")
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
	// Integrity marks errors that indicate ledger corruption rather than
	// a rejected request. They must never reach end users unfiltered.
	Integrity bool `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Ledger error constructors

// InvalidQuantity rejects non-positive quantities before any write occurs.
func InvalidQuantity(quantity int) *AppError {
	return &AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    fmt.Sprintf("quantity must be positive, got %d", quantity),
		StatusCode: http.StatusBadRequest,
	}
}

// InsufficientStock reports an allocation-wide shortfall. No writes have
// occurred when this is returned; requested and available are included so
// the caller can surface an actionable message.
func InsufficientStock(requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock: requested %d, available %d", requested, available),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"available": fmt.Sprintf("%d", available),
		},
	}
}

// InsufficientBatchQuantity is the batch-level draw guard. A correct draw
// plan never trips it, so it is surfaced as an integrity error.
func InsufficientBatchQuantity(batchID string, amount, remaining int) *AppError {
	return &AppError{
		Err:        ErrBatchShortfall,
		Code:       "INSUFFICIENT_BATCH_QUANTITY",
		Message:    fmt.Sprintf("batch %s: draw of %d exceeds remaining %d", batchID, amount, remaining),
		StatusCode: http.StatusInternalServerError,
		Integrity:  true,
	}
}

// NegativeStock is the item-level aggregate guard. It is independent of the
// batch-level guard; both must agree, so a trip indicates corruption.
func NegativeStock(itemID string, delta, onHand int) *AppError {
	return &AppError{
		Err:        ErrNegativeStock,
		Code:       "NEGATIVE_STOCK",
		Message:    fmt.Sprintf("item %s: delta %d would drive on-hand %d negative", itemID, delta, onHand),
		StatusCode: http.StatusInternalServerError,
		Integrity:  true,
	}
}

// LedgerDivergence reports that the item-level and batch-level guards
// disagree about the resulting total. Both run independently so corruption
// is detectable rather than silent; this error means it was detected.
func LedgerDivergence(itemID string, aggregateTotal, expectedTotal int) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "LEDGER_DIVERGENCE",
		Message:    fmt.Sprintf("item %s: aggregate total %d diverges from batch-derived total %d", itemID, aggregateTotal, expectedTotal),
		StatusCode: http.StatusInternalServerError,
		Integrity:  true,
	}
}

// ConcurrencyConflict is returned once transaction retries are exhausted.
// The whole operation is safe to retry from the caller.
func ConcurrencyConflict(attempts int) *AppError {
	return &AppError{
		Err:        ErrConcurrencyConflict,
		Code:       "CONCURRENCY_CONFLICT",
		Message:    fmt.Sprintf("operation conflicted with concurrent updates after %d attempts", attempts),
		StatusCode: http.StatusConflict,
	}
}

// IsIntegrity reports whether err is an integrity-guard trip rather than an
// ordinary business rejection.
func IsIntegrity(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Integrity
	}
	return false
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
