package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the service. Handlers map Status onto the HTTP
// response; Code is stable for clients.
const (
	CodeInvalidArgument    = "invalid_argument"
	CodeNotFound           = "not_found"
	CodeNotRelevantForUser = "not_relevant_for_user"
	CodeEntitiesNotFound   = "entities_not_found"
	CodeUpstreamFailed     = "upstream_failed"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Invalid(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeInvalidArgument, fmt.Errorf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeNotFound, fmt.Errorf(format, args...))
}

func NotRelevant() *Error {
	return New(http.StatusBadRequest, CodeNotRelevantForUser, errors.New("observation not relevant for user"))
}

func EntitiesNotFound() *Error {
	return New(http.StatusBadRequest, CodeEntitiesNotFound, errors.New("entities not found"))
}

// StatusOf returns the HTTP status carried by err, or 500 for plain errors.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the stable error code carried by err, if any.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func IsCode(err error, code string) bool { return CodeOf(err) == code }
