// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package procedure

import (
	"errors"
	"net/http"
	"strings"
)

// Error is a procedure failure with a wire code and HTTP status.
type Error struct {
	Code    string
	Status  int
	Message string
	Cause   error
}

// NewError returns an Error for the given status whose code is derived
// from the status text, e.g. 404 becomes NOT_FOUND.
func NewError(status int, message string) Error {
	return Error{
		Code:    CodeFor(status),
		Status:  status,
		Message: message,
	}
}

// Error implements the [error] interface.
func (e Error) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return e.Code + ": " + e.Message + ": " + e.Cause.Error()
}

// Unwrap
func (e Error) Unwrap() error {
	return e.Cause
}

// CodeFor maps an HTTP status to an upper snake case error code.
func CodeFor(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "UNKNOWN"
	}
	text = strings.ReplaceAll(text, "-", " ")
	return strings.ToUpper(strings.Join(strings.Fields(text), "_"))
}

// AsError converts any error into an Error. Errors which are not
// already an Error become INTERNAL_SERVER_ERROR with status 500.
func AsError(err error) Error {
	var perr Error
	if errors.As(err, &perr) {
		if perr.Status == 0 {
			perr.Status = http.StatusInternalServerError
		}
		if perr.Code == "" {
			perr.Code = CodeFor(perr.Status)
		}
		return perr
	}
	return Error{
		Code:    CodeFor(http.StatusInternalServerError),
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
		Cause:   err,
	}
}
