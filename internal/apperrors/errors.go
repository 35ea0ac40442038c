// Package apperrors defines the error taxonomy of the ledger engine.
// Sentinels are matched with errors.Is; the structured types below carry
// the offending entry/quantity so callers can report the exact limit that
// was violated.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInsufficientStock means a warehouse counter would go negative.
	ErrInsufficientStock = errors.New("insufficient warehouse stock")

	// ErrInsufficientInventoryAtCustomer means a customer would return more
	// cylinders than they hold.
	ErrInsufficientInventoryAtCustomer = errors.New("insufficient inventory at customer")

	ErrPaymentExceedsDue = errors.New("payment exceeds due amount")

	ErrUnsupportedEdit = errors.New("entry type or field not editable")
	ErrEntryTooOld     = errors.New("entry outside editable window")
	ErrChainViolation  = errors.New("edit would break downstream chain")

	ErrConcurrencyConflict = errors.New("concurrent modification, retries exhausted")
	ErrLockTimeout         = errors.New("lock wait exceeded, service busy")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type InsufficientStockError struct {
	WarehouseID int32
	VariantID   int32
	Bucket      string // "filled" or "empty"
	Requested   int32
	Available   int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient %s stock at warehouse %d for variant %d: requested %d, available %d",
		e.Bucket, e.WarehouseID, e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type InsufficientInventoryError struct {
	CustomerID int64
	VariantID  int32
	Held       int32
	FilledOut  int32
	EmptyIn    int32
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("customer %d holds %d cylinders of variant %d (+%d in this entry), cannot return %d",
		e.CustomerID, e.Held, e.VariantID, e.FilledOut, e.EmptyIn)
}

func (e *InsufficientInventoryError) Unwrap() error { return ErrInsufficientInventoryAtCustomer }

type PaymentExceedsDueError struct {
	CustomerID int64
	Due        decimal.Decimal
	Received   decimal.Decimal
}

func (e *PaymentExceedsDueError) Error() string {
	return fmt.Sprintf("payment %s exceeds due %s for customer %d",
		e.Received.StringFixed(2), e.Due.StringFixed(2), e.CustomerID)
}

func (e *PaymentExceedsDueError) Unwrap() error { return ErrPaymentExceedsDue }

type EntryTooOldError struct {
	EntryID    int64
	ChainLen   int
	EditWindow int
}

func (e *EntryTooOldError) Error() string {
	return fmt.Sprintf("entry %d is outside the editable window: only the latest %d of %d chain entries may be edited",
		e.EntryID, e.EditWindow, e.ChainLen)
}

func (e *EntryTooOldError) Unwrap() error { return ErrEntryTooOld }

// ChainViolation identifies one downstream entry whose recomputed value
// would go negative.
type ChainViolation struct {
	EntryID         int64     `json:"entryId"`
	TransactionDate time.Time `json:"transactionDate"`
	Kind            string    `json:"kind"` // "balance" or "due"
	Computed        string    `json:"computed"`
}

// ChainViolationError aggregates every chain-breaking row found during the
// validate-before-mutate walk, not just the first.
type ChainViolationError struct {
	Violations []ChainViolation
}

func (e *ChainViolationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("entry %d (%s) would have negative %s: %s",
			v.EntryID, v.TransactionDate.Format("2006-01-02"), v.Kind, v.Computed)
	}
	return "edit would break chain: " + strings.Join(parts, "; ")
}

func (e *ChainViolationError) Unwrap() error { return ErrChainViolation }

// IsRetryable reports whether the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrLockTimeout)
}

// IsClientError reports whether the error is a business-rule rejection
// rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientInventoryAtCustomer) ||
		errors.Is(err, ErrPaymentExceedsDue) ||
		errors.Is(err, ErrUnsupportedEdit) ||
		errors.Is(err, ErrEntryTooOld) ||
		errors.Is(err, ErrChainViolation)
}
