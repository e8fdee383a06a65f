// Package apperr defines the failure taxonomy shared by the issuance workflows.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindConfiguration          Kind = "configuration"
	KindInsufficientFunds      Kind = "insufficient_funds"
	KindLedgerUnavailable      Kind = "ledger_unavailable"
	KindTransactionFailed      Kind = "transaction_failed"
	KindExpectedObjectNotFound Kind = "expected_object_not_found"
	KindMintNotConfirmed       Kind = "mint_not_confirmed"
)

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrConfiguration          = &Error{Kind: KindConfiguration}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds}
	ErrLedgerUnavailable      = &Error{Kind: KindLedgerUnavailable}
	ErrTransactionFailed      = &Error{Kind: KindTransactionFailed}
	ErrExpectedObjectNotFound = &Error{Kind: KindExpectedObjectNotFound}
	ErrMintNotConfirmed       = &Error{Kind: KindMintNotConfirmed}
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so sentinels compare equal to any error of their kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Transient reports whether retrying the whole invocation may succeed.
func Transient(err error) bool {
	return KindOf(err) == KindLedgerUnavailable
}

// HTTPStatus maps a failure onto the response contract: 400 for bad input,
// 500 for anything downstream.
func HTTPStatus(err error) int {
	if KindOf(err) == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
