package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorises a failed backend call.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindServer         ErrorKind = "server"
	KindNetwork        ErrorKind = "network"
	KindUnknown        ErrorKind = "unknown"
)

// Default user-facing messages used when the backend does not supply one.
const (
	networkMessage    = "ネットワーク接続に失敗しました"
	unexpectedMessage = "予期しないエラーが発生しました"
)

// Error is returned by every Client method when the backend rejects a call
// or cannot be reached. Message is safe to show to the end user.
type Error struct {
	Kind    ErrorKind
	Status  int    // HTTP status; 0 for transport failures
	Op      string // client method that failed, e.g. "LikePost"
	Message string
	Err     error // underlying transport or decode error, if any
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend %s: %s (HTTP %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("backend %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err, or KindUnknown when err is not a
// backend *Error.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// kindForStatus maps an HTTP status to an ErrorKind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindAuthorization
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindServer
	default:
		return KindUnknown
	}
}
