package database

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/pharmstock/pharmstock-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"wrapped serialization failure", fmt.Errorf("tx failed: %w", &pq.Error{Code: "40001"}), true},
		{"check violation", &pq.Error{Code: "23514"}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestMapPQError_CheckConstraints(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		wantErr    error
		integrity  bool
	}{
		{"aggregate guard", "items_on_hand_quantity_check", errors.ErrNegativeStock, true},
		{"batch guard", "batches_remaining_quantity_check", errors.ErrBatchShortfall, true},
		{"received quantity", "batches_received_quantity_check", errors.ErrInvalidQuantity, false},
		{"reason enum", "ledger_entries_reason_check", errors.ErrValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapPQError(&pq.Error{Code: "23514", Constraint: tt.constraint})
			require.NotNil(t, mapped)
			assert.True(t, errors.Is(mapped, tt.wantErr))
			assert.Equal(t, tt.integrity, mapped.Integrity)
		})
	}
}

func TestMapPQError_OtherClasses(t *testing.T) {
	unique := MapPQError(&pq.Error{Code: "23505"})
	require.NotNil(t, unique)
	assert.True(t, errors.Is(unique, errors.ErrConflict))

	fk := MapPQError(&pq.Error{Code: "23503"})
	require.NotNil(t, fk)
	assert.True(t, errors.Is(fk, errors.ErrBadRequest))

	notNull := MapPQError(&pq.Error{Code: "23502", Column: "name"})
	require.NotNil(t, notNull)
	assert.Equal(t, "must not be empty", notNull.Details["name"])

	// Anything else passes through untouched
	assert.Nil(t, MapPQError(&pq.Error{Code: "42P01"}))
	assert.Nil(t, MapPQError(fmt.Errorf("not a pq error")))
}
