package patron

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine and the store backends. Callers
// match them with errors.Is; the engine wraps them with context.
var (
	// General errors
	ErrNotFound     = errors.New("patron: not found")
	ErrInvalidInput = errors.New("patron: invalid input")
	ErrUnauthorized = errors.New("patron: unauthorized")

	// Account ledger errors
	ErrAccountNotFound   = errors.New("patron: account not found")
	ErrInsufficientFunds = errors.New("patron: insufficient funds")
	ErrInvalidAmount     = errors.New("patron: invalid amount")
	ErrAmountOverflow    = errors.New("patron: amount overflow")

	// Creator registry errors
	ErrZeroFee             = errors.New("patron: fee must be greater than zero")
	ErrDuplicateCreator    = errors.New("patron: creator already registered")
	ErrCreatorNotFound     = errors.New("patron: creator not found")
	ErrInsufficientBalance = errors.New("patron: withdrawal exceeds creator balance")

	// Subscription errors
	ErrDuplicateActiveSubscription = errors.New("patron: subscription already active")
	ErrNoSubscription              = errors.New("patron: no subscription")
	ErrNotDue                      = errors.New("patron: renewal not due")
	ErrAutoRenewFailed             = errors.New("patron: auto-renewal payment failed")
	ErrMaxRetriesExceeded          = errors.New("patron: renewal retries exhausted, subscription cancelled")

	// Store errors
	ErrStoreClosed     = errors.New("patron: store is closed")
	ErrMigrationFailed = errors.New("patron: migration failed")
)

// Code is a stable numeric error code for callers that cannot carry Go
// errors across their boundary, such as an HTTP mirror or a gateway.
type Code uint32

// Error codes. Codes 2, 3, 4, 5 and 7 keep the values clients of the
// on-chain contract already know.
const (
	CodeOK                          Code = 0
	CodeUnauthorized                Code = 1
	CodeDuplicateActiveSubscription Code = 2
	CodeZeroFee                     Code = 3
	CodeDuplicateCreator            Code = 4
	CodeAutoRenewFailed             Code = 5
	CodeNotDue                      Code = 6
	CodeMaxRetriesExceeded          Code = 7
	CodeNoSubscription              Code = 8
	CodeInsufficientBalance         Code = 9
	CodeInsufficientFunds           Code = 10
	CodeNotFound                    Code = 11
	CodeInvalidInput                Code = 12
	CodeInternal                    Code = 99
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrUnauthorized, CodeUnauthorized},
	{ErrDuplicateActiveSubscription, CodeDuplicateActiveSubscription},
	{ErrZeroFee, CodeZeroFee},
	{ErrDuplicateCreator, CodeDuplicateCreator},
	{ErrAutoRenewFailed, CodeAutoRenewFailed},
	{ErrNotDue, CodeNotDue},
	{ErrMaxRetriesExceeded, CodeMaxRetriesExceeded},
	{ErrNoSubscription, CodeNoSubscription},
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrNotFound, CodeNotFound},
	{ErrCreatorNotFound, CodeNotFound},
	{ErrAccountNotFound, CodeNotFound},
	{ErrInvalidAmount, CodeInvalidInput},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrAmountOverflow, CodeInvalidInput},
}

// CodeOf returns the code for err. Nil maps to CodeOK and unknown errors
// to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("patron: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "patron: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("patron: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns e if it holds errors, nil otherwise.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCreatorNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrNoSubscription)
}

// IsRetryable returns true if the same call may succeed later without any
// change by the caller other than waiting or funding an account.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAutoRenewFailed) ||
		errors.Is(err, ErrNotDue) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsPaymentFailure returns true when the call committed a failed charge.
// The state change (attempt counter, history entry) is durable even though
// an error is returned.
func IsPaymentFailure(err error) bool {
	return errors.Is(err, ErrAutoRenewFailed) ||
		errors.Is(err, ErrMaxRetriesExceeded)
}
