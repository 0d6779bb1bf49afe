package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "quantity must be a positive integer"}
	if err.Error() != "quantity must be a positive integer" {
		t.Errorf("Error() = %q, want %q", err.Error(), "quantity must be a positive integer")
	}
}

func TestRejectionError_MatchesCategoryAndReason(t *testing.T) {
	err := AdmissionRejected(ErrInsufficientShares)

	if !errors.Is(err, ErrAdmissionRejected) {
		t.Error("errors.Is(err, ErrAdmissionRejected) = false")
	}
	if !errors.Is(err, ErrInsufficientShares) {
		t.Error("errors.Is(err, ErrInsufficientShares) = false")
	}
	if errors.Is(err, ErrCancellationRejected) {
		t.Error("admission rejection should not match the cancellation category")
	}
	if err.Error() != "admission_rejected: insufficient_shares" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRejectionError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("cancel order o-1: %w", CancellationRejected(ErrNotOrderOwner))

	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatal("errors.As should find the RejectionError")
	}
	if !errors.Is(err, ErrCancellationRejected) || !errors.Is(err, ErrNotOrderOwner) {
		t.Error("wrapped rejection lost its category or reason")
	}
}

func TestTerminalReason(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   error
	}{
		{OrderStatusFilled, ErrOrderAlreadyFilled},
		{OrderStatusCancelled, ErrOrderAlreadyCancelled},
		{OrderStatusRejected, ErrOrderAlreadyRejected},
	}
	for _, tt := range tests {
		if got := TerminalReason(tt.status); got != tt.want {
			t.Errorf("TerminalReason(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrAccountAlreadyExists,
		ErrAccountNotFound,
		ErrInstrumentAlreadyExists,
		ErrInstrumentNotFound,
		ErrInstrumentInactive,
		ErrInvalidQuantity,
		ErrInvalidPrice,
		ErrOrderKindUnsupported,
		ErrInsufficientFunds,
		ErrInsufficientShares,
		ErrNoLiquidity,
		ErrOrderNotFound,
		ErrNotOrderOwner,
		ErrOrderAlreadyFilled,
		ErrOrderAlreadyCancelled,
		ErrOrderAlreadyRejected,
		ErrWebhookNotFound,
		ErrAdmissionRejected,
		ErrCancellationRejected,
		ErrSettlementFailed,
		ErrConcurrentModification,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
