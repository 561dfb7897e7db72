package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
)

const (
	CodeInvalidRequest     = "invalid_request"
	CodeMissingFields      = "missing_fields"
	CodeInvalidRole        = "invalid_role"
	CodeInvalidEmail       = "invalid_email"
	CodeInvalidName        = "invalid_name"
	CodeInvalidDate        = "invalid_class_date"
	CodeInvalidTime        = "invalid_class_time"
	CodeInvalidAvatar      = "invalid_avatar"
	CodeDuplicateEmail     = "duplicate_email"
	CodeEmailReserved      = "email_registration_in_progress"
	CodeInvalidCredentials = "invalid_credentials"
	CodeMissingToken       = "missing_token"
	CodeInvalidToken       = "invalid_token"
	CodeInvalidResetToken  = "invalid_or_expired_token"
	CodeForbidden          = "forbidden"
	CodeUserNotFound       = "user_not_found"
	CodeStudentNotFound    = "student_not_found"
	CodeMentorNotFound     = "mentor_not_found"
	CodeClassesNotFound    = "class_details_not_found"
	CodeInvalidSignature   = "invalid_payment_signature"
	CodeGatewayError       = "gateway_error"
	CodeSendError          = "send_error"
	CodeServerError        = "server_error"
)

// Error carries a kind for status mapping, a stable code for clients and a
// human readable message. The cause is kept for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func Auth(code, message string) *Error {
	return New(KindAuth, code, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, CodeForbidden, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, CodeServerError, message, cause)
}

// As returns the *Error in err's chain, or nil.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func IsKind(err error, kind Kind) bool {
	appErr := As(err)
	return appErr != nil && appErr.Kind == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
