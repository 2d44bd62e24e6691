// Package errs defines the ledger's error taxonomy. Every rejection surfaced by
// the core is one of the sentinels below, optionally wrapped with call context.
package errs

import (
	"errors"
	"fmt"
)

// Kind groups error codes by who is at fault and what the caller can do.
type Kind int32

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindAuthorization
	KindEconomic
	KindArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindState:
		return "StateError"
	case KindAuthorization:
		return "AuthorizationError"
	case KindEconomic:
		return "EconomicError"
	case KindArithmetic:
		return "ArithmeticError"
	default:
		return "UnknownError"
	}
}

// Error is a structured rejection. Codes are stable and safe to expose to callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation
var (
	ErrInvalidTickSpacing    = newError(KindValidation, "InvalidTickSpacing", "tick spacing must be positive")
	ErrMinTickNotMultiple    = newError(KindValidation, "MinTickNotMultiple", "min tick must be a multiple of tick spacing")
	ErrMaxTickNotMultiple    = newError(KindValidation, "MaxTickNotMultiple", "max tick must be a multiple of tick spacing")
	ErrMinTickGreaterThanMax = newError(KindValidation, "MinTickGreaterThanMax", "min tick must be less than max tick")
	ErrTooManyBins           = newError(KindValidation, "TooManyBins", "tick range produces too many bins")
	ErrBinIndexOutOfRange    = newError(KindValidation, "BinIndexOutOfRange", "bin index out of range")
	ErrArrayLengthMismatch   = newError(KindValidation, "ArrayLengthMismatch", "bin and quantity arrays differ in length")
	ErrNoTokensToBuy         = newError(KindValidation, "NoTokensToBuy", "no tokens requested")
	ErrInvalidRange          = newError(KindValidation, "InvalidRange", "end bin must be >= start bin")
	ErrRangeTooLarge         = newError(KindValidation, "RangeTooLarge", "range too large")
	ErrInvalidCommand        = newError(KindValidation, "InvalidCommand", "malformed command")
)

// State
var (
	ErrProgramNotInitialized     = newError(KindState, "ProgramNotInitialized", "program is not initialized")
	ErrProgramAlreadyInitialized = newError(KindState, "ProgramAlreadyInitialized", "program is already initialized")
	ErrMarketNotFound            = newError(KindState, "MarketNotFound", "market does not exist")
	ErrMarketNotActive           = newError(KindState, "MarketNotActive", "market is not active")
	ErrMarketClosed              = newError(KindState, "MarketClosed", "market is closed")
	ErrAlreadyClosed             = newError(KindState, "AlreadyClosed", "market is already closed")
	ErrOutOfOrderClose           = newError(KindState, "OutOfOrderClose", "markets must be closed in ascending id order")
	ErrMarketIsNotClosed         = newError(KindState, "MarketIsNotClosed", "market is not closed")
	ErrDuplicateCommand          = newError(KindState, "DuplicateCommand", "command already processed")
	ErrInvalidBinState           = newError(KindState, "InvalidBinState", "bin quantity exceeds total supply")
)

// Authorization
var (
	ErrOwnerOnly = newError(KindAuthorization, "OwnerOnly", "only the program owner may do this")
)

// Economic
var (
	ErrEmptyBin                = newError(KindEconomic, "EmptyBin", "cannot sell from an empty bin")
	ErrInsufficientBinBalance  = newError(KindEconomic, "InsufficientBinBalance", "cannot sell more than the bin holds")
	ErrInsufficientUserBalance = newError(KindEconomic, "InsufficientUserBalance", "position holds less than requested")
	ErrSlippageExceeded        = newError(KindEconomic, "SlippageExceeded", "price moved beyond the caller's limit")
	ErrNoCollateralToWithdraw  = newError(KindEconomic, "NoCollateralToWithdraw", "no collateral to withdraw")
	ErrSelfTransfer            = newError(KindEconomic, "SelfTransfer", "cannot transfer to self")
	ErrNotWinningBin           = newError(KindEconomic, "NotWinningBin", "position holds nothing in the winning bin")
	ErrInsufficientCollateral  = newError(KindEconomic, "InsufficientCollateral", "market collateral cannot cover payout")
)

// Arithmetic
var (
	ErrOverflow       = newError(KindArithmetic, "Overflow", "arithmetic overflow")
	ErrUnderflow      = newError(KindArithmetic, "Underflow", "arithmetic underflow")
	ErrDivisionByZero = newError(KindArithmetic, "DivisionByZero", "division by zero")
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable code of the first *Error in err's chain, or "Internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}
