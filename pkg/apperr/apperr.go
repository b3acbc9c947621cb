// Package apperr holds the error kinds the accounting engine reports.
//
// Every kind is a local, synchronous condition the caller can act on: the
// kind alone decides between retrying and rejecting. Errors are wrapped with
// fmt.Errorf("...: %w") and classified with errors.Is or KindOf.
package apperr

import (
	"errors"
)

var (
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrInvalidTerms       = errors.New("invalid terms")
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnbalancedEntry    = errors.New("unbalanced entry")
	ErrDuplicateEvent     = errors.New("duplicate event")
	ErrNoRateAvailable    = errors.New("no rate available")
	ErrBusy               = errors.New("busy")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
	ErrUnknownAccount     = errors.New("unknown account")
	ErrUnknownCurrency    = errors.New("unknown currency")
	ErrCurrencyInUse      = errors.New("currency in use")
)

// Kind names an error kind.
type Kind string

const (
	KindNone               Kind = ""
	KindCurrencyMismatch   Kind = "CurrencyMismatch"
	KindInvalidTerms       Kind = "InvalidTerms"
	KindInvalidInterval    Kind = "InvalidInterval"
	KindInvalidAmount      Kind = "InvalidAmount"
	KindUnbalancedEntry    Kind = "UnbalancedEntry"
	KindDuplicateEvent     Kind = "DuplicateEvent"
	KindNoRateAvailable    Kind = "NoRateAvailable"
	KindBusy               Kind = "Busy"
	KindStorageUnavailable Kind = "StorageUnavailable"
	KindNotFound           Kind = "NotFound"
	KindUnknownAccount     Kind = "UnknownAccount"
	KindUnknownCurrency    Kind = "UnknownCurrency"
	KindCurrencyInUse      Kind = "CurrencyInUse"
	KindInternal           Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrCurrencyMismatch, KindCurrencyMismatch},
	{ErrInvalidTerms, KindInvalidTerms},
	{ErrInvalidInterval, KindInvalidInterval},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrUnbalancedEntry, KindUnbalancedEntry},
	{ErrDuplicateEvent, KindDuplicateEvent},
	{ErrNoRateAvailable, KindNoRateAvailable},
	{ErrBusy, KindBusy},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrNotFound, KindNotFound},
	{ErrUnknownAccount, KindUnknownAccount},
	{ErrUnknownCurrency, KindUnknownCurrency},
	{ErrCurrencyInUse, KindCurrencyInUse},
}

// KindOf returns the kind of err. Errors outside the taxonomy are
// KindInternal; a nil error is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Retryable reports whether the same request may succeed if sent again.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrStorageUnavailable)
}

// storageError hides a collaborator failure behind ErrStorageUnavailable.
// The cause is kept for logging only; errors.Is never reaches it.
type storageError struct {
	op    string
	cause error
}

func (e *storageError) Error() string {
	return ErrStorageUnavailable.Error() + ": " + e.op
}

func (e *storageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func (e *storageError) Cause() error {
	return e.cause
}

// Storage translates a persistence or transport failure into
// ErrStorageUnavailable. The message names only the operation.
func Storage(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var se *storageError
	if errors.As(cause, &se) {
		return cause
	}
	return &storageError{op: op, cause: cause}
}

// Cause returns the raw collaborator error behind a storage error, or err
// itself when there is none.
func Cause(err error) error {
	var se *storageError
	if errors.As(err, &se) {
		return se.cause
	}
	return err
}
