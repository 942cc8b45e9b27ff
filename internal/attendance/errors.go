package attendance

import (
	"errors"
	"net/http"
)

// Code identifies why a check-in was refused.
type Code string

const (
	CodeInvalidCredential    Code = "invalid_credential"
	CodeNotFound             Code = "not_found"
	CodeInactiveRegistration Code = "inactive_registration"
	CodeSessionsExhausted    Code = "sessions_exhausted"
	CodeScanCapReached       Code = "scan_cap_reached"
	CodeSessionNotFound      Code = "session_not_found"
	CodeSeminarMismatch      Code = "seminar_mismatch"
	CodeDuplicateCheckIn     Code = "duplicate_checkin"
	CodeMakeupExhausted      Code = "makeup_exhausted"
	CodePersistence          Code = "persistence_error"
)

// Error is a refused or failed check-in. Two errors match under errors.Is when their codes match.
type Error struct {
	Code  Code
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Msg + ": " + e.cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Status maps the code to an HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case CodeInvalidCredential:
		return http.StatusUnauthorized
	case CodeNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeDuplicateCheckIn:
		return http.StatusConflict
	case CodeInactiveRegistration, CodeSessionsExhausted, CodeScanCapReached, CodeSeminarMismatch, CodeMakeupExhausted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidCredential    = &Error{Code: CodeInvalidCredential, Msg: "invalid credential"}
	ErrNotFound             = &Error{Code: CodeNotFound, Msg: "registration not found"}
	ErrInactiveRegistration = &Error{Code: CodeInactiveRegistration, Msg: "registration is not active"}
	ErrSessionsExhausted    = &Error{Code: CodeSessionsExhausted, Msg: "no sessions remaining"}
	ErrScanCapReached       = &Error{Code: CodeScanCapReached, Msg: "qr scan limit reached"}
	ErrSessionNotFound      = &Error{Code: CodeSessionNotFound, Msg: "session not found"}
	ErrSeminarMismatch      = &Error{Code: CodeSeminarMismatch, Msg: "session belongs to another seminar"}
	ErrDuplicateCheckIn     = &Error{Code: CodeDuplicateCheckIn, Msg: "already checked in to this session"}
	ErrMakeupExhausted      = &Error{Code: CodeMakeupExhausted, Msg: "makeup session already used"}
	ErrPersistence          = &Error{Code: CodePersistence, Msg: "failed to record attendance"}
)

func wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Msg: sentinel.Msg, cause: cause}
}

// codeOf returns the check-in code carried by err, or persistence_error for anything else.
func codeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodePersistence
}
