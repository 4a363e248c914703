package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when input fails validation
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when a referenced record doesn't exist or isn't eligible
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a debit would drive a balance below zero
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyUsed is returned when a voucher has already been redeemed
	ErrAlreadyUsed = errors.New("voucher already used")

	// ErrDuplicateView is returned when the account already viewed the campaign today
	ErrDuplicateView = errors.New("campaign already viewed today")

	// ErrAlreadyProcessed is returned when a request has already left the pending state
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrLimitReached is returned when a campaign has no views left
	ErrLimitReached = errors.New("campaign view limit reached")

	// ErrStorageUnavailable wraps any failure of the underlying store
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDuplicateKey is returned on unique violations other than ad views
	ErrDuplicateKey = errors.New("duplicate key")
)

// Kind is the stable machine-readable failure classification.
type Kind string

const (
	KindInvalidRequest     Kind = "INVALID_REQUEST"
	KindNotFound           Kind = "NOT_FOUND"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindAlreadyUsed        Kind = "ALREADY_USED"
	KindDuplicateView      Kind = "DUPLICATE_VIEW"
	KindAlreadyProcessed   Kind = "ALREADY_PROCESSED"
	KindLimitReached       Kind = "LIMIT_REACHED"
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
	KindConflict           Kind = "CONFLICT"
	KindInternal           Kind = "INTERNAL_ERROR"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	// storage first: a storage failure may also wrap a driver error that matches nothing else
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrNotFound, KindNotFound},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrAlreadyUsed, KindAlreadyUsed},
	{ErrDuplicateView, KindDuplicateView},
	{ErrAlreadyProcessed, KindAlreadyProcessed},
	{ErrLimitReached, KindLimitReached},
	{ErrDuplicateKey, KindConflict},
}

// KindOf classifies err. It returns "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Invalid builds an ErrInvalidRequest with a human message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
