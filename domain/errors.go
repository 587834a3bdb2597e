/*
Package domain holds the error taxonomy shared by every ledger package.

PURPOSE:
  All failure categories in one place so that callers (CLI, query front-end,
  tests) can classify any error with errors.Is without importing the package
  that produced it.

ERROR CATEGORIES:
  1. Validation          - non-positive quantity/price, empty name, bad account
  2. Insufficient stock  - FIFO allocation cannot cover a quantity
  3. Insufficient funds  - a debit exceeds the available capital
  4. Not found           - unknown sale, order, lot or account id
  5. Conflict            - another writer committed to the store first

Every category is recoverable by the caller. A failed operation never leaves
a partial state change behind. Conflicts are not client errors: the same
input succeeds once retried against the newer state.

USAGE:
  if errors.Is(err, domain.ErrInsufficientStock) {
      // ask for a smaller quantity
  }

SEE ALSO:
  - bank/ledger.go: raises funds / not found errors
  - inventory/fifo.go: raises stock errors
*/
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when an input violates a business rule
	// before any state is touched.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when the outstanding lots cannot
	// cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientFunds is returned when a debit exceeds the available
	// capital of an account.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySettled is returned for an installment against a sale or
	// order that is already fully paid.
	ErrAlreadySettled = fmt.Errorf("%w: already settled", ErrValidation)

	// ErrConflict is returned when a snapshot was built on a revision that
	// is no longer the latest in the store.
	ErrConflict = errors.New("concurrent modification")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError provides details about a capital shortage.
// Amounts are minor units of Currency.
type InsufficientFundsError struct {
	Account   string
	Currency  string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s: available %d, requested %d %s",
		e.Account, e.Available, e.Requested, e.Currency)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is how much more capital the debit needed.
func (e *InsufficientFundsError) Shortfall() int64 { return e.Requested - e.Available }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	What      string // "units" for physical stock, a currency code for exchange positions
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d %s, requested %d",
		e.Available, e.What, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports the revision a writer built on and the one the store
// holds.
type ConflictError struct {
	Parent int64
	Latest int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification: built on revision %d, store is at %d", e.Parent, e.Latest)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input and can be
// corrected and retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is a lost race against another writer.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
