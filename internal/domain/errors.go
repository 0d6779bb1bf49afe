package domain

import "errors"

// Error categories. A RejectionError matches its category with errors.Is
// and unwraps to the specific reason below.
var (
	ErrAdmissionRejected      = errors.New("admission_rejected")
	ErrCancellationRejected   = errors.New("cancellation_rejected")
	ErrSettlementFailed       = errors.New("settlement_failed")
	ErrConcurrentModification = errors.New("concurrent_modification")
)

// Sentinel reasons for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists    = errors.New("account_already_exists")
	ErrAccountNotFound         = errors.New("account_not_found")
	ErrPositionNotFound        = errors.New("position_not_found")
	ErrInstrumentAlreadyExists = errors.New("instrument_already_exists")
	ErrInstrumentNotFound      = errors.New("instrument_not_found")
	ErrInstrumentInactive      = errors.New("instrument_inactive")
	ErrInvalidQuantity         = errors.New("invalid_quantity")
	ErrInvalidPrice            = errors.New("invalid_price")
	ErrOrderKindUnsupported    = errors.New("order_kind_unsupported")
	ErrInsufficientFunds       = errors.New("insufficient_funds")
	ErrInsufficientShares      = errors.New("insufficient_shares")
	ErrNoLiquidity             = errors.New("no_liquidity")
	ErrOrderNotFound           = errors.New("order_not_found")
	ErrNotOrderOwner           = errors.New("not_order_owner")
	ErrOrderAlreadyFilled      = errors.New("order_already_filled")
	ErrOrderAlreadyCancelled   = errors.New("order_already_cancelled")
	ErrOrderAlreadyRejected    = errors.New("order_already_rejected")
	ErrVersionMismatch         = errors.New("version_mismatch")
	ErrWebhookNotFound         = errors.New("webhook_not_found")
)

// RejectionError pairs an error category with the reason it was raised.
type RejectionError struct {
	Category error
	Reason   error
}

func (e *RejectionError) Error() string {
	return e.Category.Error() + ": " + e.Reason.Error()
}

// Is reports whether target is the error's category.
func (e *RejectionError) Is(target error) bool {
	return target == e.Category
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// AdmissionRejected wraps reason as an admission-time rejection.
func AdmissionRejected(reason error) error {
	return &RejectionError{Category: ErrAdmissionRejected, Reason: reason}
}

// CancellationRejected wraps reason as a rejected cancel request.
func CancellationRejected(reason error) error {
	return &RejectionError{Category: ErrCancellationRejected, Reason: reason}
}

// ConcurrentModification wraps reason as a request that lost a race with
// the matcher.
func ConcurrentModification(reason error) error {
	return &RejectionError{Category: ErrConcurrentModification, Reason: reason}
}

// TerminalReason returns the cancellation reason for an order in the
// given terminal status.
func TerminalReason(s OrderStatus) error {
	switch s {
	case OrderStatusFilled:
		return ErrOrderAlreadyFilled
	case OrderStatusCancelled:
		return ErrOrderAlreadyCancelled
	default:
		return ErrOrderAlreadyRejected
	}
}

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
