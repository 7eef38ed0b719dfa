package ops

import (
	"errors"

	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
)

// ErrorKind classifies a Failure. The backend kinds mirror backend.ErrorKind;
// UnknownOperation and Validation are raised by the Executor itself.
type ErrorKind string

const (
	KindUnknownOperation ErrorKind = "unknown_operation"
	KindValidation       ErrorKind = "validation"
	KindAuthentication   ErrorKind = "authentication"
	KindAuthorization    ErrorKind = "authorization"
	KindNotFound         ErrorKind = "not_found"
	KindServer           ErrorKind = "server"
	KindNetwork          ErrorKind = "network"
	KindUnknown          ErrorKind = "unknown"
)

// Failure is the error half of a Result. Message is user-facing.
type Failure struct {
	Kind    ErrorKind `json:"errorKind"`
	Message string    `json:"message"`
}

// Result is the outcome of one Execute call: exactly one of Data and Failure
// is meaningful. Data is nil for operations that return nothing.
type Result struct {
	Operation string   `json:"operation"`
	Data      any      `json:"data,omitempty"`
	Failure   *Failure `json:"failure,omitempty"`
}

// Succeeded reports whether the call succeeded.
func (r *Result) Succeeded() bool { return r != nil && r.Failure == nil }

// Success returns a successful Result carrying data.
func Success(op string, data any) *Result {
	return &Result{Operation: op, Data: data}
}

// Fail returns a failed Result.
func Fail(op string, kind ErrorKind, message string) *Result {
	return &Result{Operation: op, Failure: &Failure{Kind: kind, Message: message}}
}

// failureFromError converts an adapter error into a Failure.
func failureFromError(err error) *Failure {
	var be *backend.Error
	if errors.As(err, &be) {
		return &Failure{Kind: ErrorKind(be.Kind), Message: be.Message}
	}
	var ae *argError
	if errors.As(err, &ae) {
		return &Failure{Kind: KindValidation, Message: ae.Error()}
	}
	return &Failure{Kind: KindUnknown, Message: err.Error()}
}
