package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is the parent of every caller-input error. Validation errors are
// surfaced to the caller and never retried.
var ErrValidation = errors.New("validation failed")

var (
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, MaxQuantity)
	ErrEmptyCart         = fmt.Errorf("%w: cart is empty, nothing to checkout", ErrValidation)
	ErrIncompleteProfile = fmt.Errorf("%w: shipping profile is incomplete", ErrValidation)
	ErrUnknownProduct    = fmt.Errorf("%w: product does not exist", ErrValidation)
	ErrUnknownSize       = fmt.Errorf("%w: size is not offered for this product", ErrValidation)
	ErrInvalidProduct    = fmt.Errorf("%w: product is invalid", ErrValidation)
	ErrInvalidConfig     = fmt.Errorf("%w: payment configuration is invalid", ErrValidation)
	ErrAmountOverflow    = fmt.Errorf("%w: order total is out of range", ErrValidation)
)

var (
	ErrBackendUnavailable    = errors.New("backend unavailable")
	ErrProvider              = errors.New("payment provider error")
	ErrPaymentNotConfigured  = errors.New("payment is not configured")
	ErrUnauthenticated       = errors.New("caller is not authenticated")
	ErrProfileSaveFailed     = errors.New("profile save failed")
	ErrSessionCreationFailed = errors.New("payment session creation failed")
	ErrLineNotFound          = errors.New("cart line not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrAttemptInProgress     = errors.New("checkout attempt already in progress")
	ErrIllegalTransition     = errors.New("illegal transition of checkout status")
)

// IncompleteProfileError names the profile fields that were empty after trimming.
type IncompleteProfileError struct {
	Missing []string
}

func (e *IncompleteProfileError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrIncompleteProfile, strings.Join(e.Missing, ", "))
}

func (e *IncompleteProfileError) Is(target error) bool {
	return target == ErrIncompleteProfile || target == ErrValidation
}
