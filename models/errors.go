package models

import (
	"github.com/pkg/errors"
)

// ErrorKind classifies failures surfaced by the escrow client
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindUnauthorized         ErrorKind = "unauthorized"
	KindInvalidState         ErrorKind = "invalid_state"
	KindNotFound             ErrorKind = "not_found"
	KindUnsupportedNetwork   ErrorKind = "unsupported_network"
	KindMisconfiguredNetwork ErrorKind = "misconfigured_network"
	KindLedger               ErrorKind = "ledger_error"
	KindPartialFailure       ErrorKind = "partial_failure"
)

var kindLabels = map[ErrorKind]string{
	KindInvalidInput:         "Invalid Input",
	KindUnauthorized:         "Unauthorized",
	KindInvalidState:         "Invalid State",
	KindNotFound:             "Not Found",
	KindUnsupportedNetwork:   "Unsupported Network",
	KindMisconfiguredNetwork: "Misconfigured Network",
	KindLedger:               "Ledger Error",
	KindPartialFailure:       "Partial Failure",
}

// Label returns the human label used as the message prefix.
func (k ErrorKind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}

	return "Error"
}

// Error is a classified error. Its message reads "<Label>: <msg>".
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.Label() + ": " + e.Msg
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError returns a classified error without a cause.
func NewError(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError classifies cause. A nil cause yields nil.
func WrapError(kind ErrorKind, cause error, msg string) error {
	if cause == nil {
		return nil
	}

	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are ledger errors.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return KindLedger
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

var ErrWalletNotConnected = NewError(KindUnauthorized, "wallet not connected")
