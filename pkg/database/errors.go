package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
)

// IsRetryable reports whether err is a transient transaction failure
// (serialization failure or deadlock) that a fresh transaction may resolve.
func IsRetryable(err error) bool {
	pqErr, ok := unwrapPQ(err)
	if !ok {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return true
	}
	return false
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful
// messages. Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := unwrapPQ(err)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict("a record with these values already exists")

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps the ledger's CHECK constraints to typed errors.
// The quantity constraints mirror the in-code guards; reaching them means a
// guard was bypassed, so they surface as integrity errors.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "on_hand_quantity"):
		return errors.NegativeStock("", 0, 0)

	case strings.Contains(constraint, "remaining_quantity"):
		return errors.InsufficientBatchQuantity("", 0, 0)

	case strings.Contains(constraint, "received_quantity"):
		return errors.InvalidQuantity(0)

	case strings.Contains(constraint, "reason"):
		return errors.Validation(map[string]string{
			"reason": "must be one of: RECEIPT, SALE, MANUAL_STOCK_OUT, ADJUSTMENT",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func unwrapPQ(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}
