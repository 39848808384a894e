// Package apierr defines the structured errors returned by the HTTP API.
//
// Every error carries a machine-readable code, a human-readable message
// and the HTTP status. The JSON form is {"code", "message", "data":
// {"status"}}, the shape the Multiplier front end already parses.
package apierr

import (
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeMissingData        = "missing_data"
	CodeForbidden          = "rest_forbidden"
	CodeInsertFailed       = "db_insert_error"
	CodeInvalidJSON        = "invalid_json"
	CodeNotFound           = "not_found"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInternal           = "internal_error"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Body is the JSON representation of an Error.
type Body struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Data    BodyData `json:"data"`
}

type BodyData struct {
	Status int `json:"status"`
}

// Body returns the JSON body for the error. The wrapped cause is never
// exposed to clients.
func (e *Error) Body() Body {
	return Body{Code: e.Code, Message: e.Message, Data: BodyData{Status: e.Status}}
}

func New(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

// MissingData is a validation failure (400).
func MissingData(message string) *Error {
	return New(http.StatusBadRequest, CodeMissingData, message, nil)
}

// Forbidden is a missing or invalid session token (401).
func Forbidden(message string) *Error {
	return New(http.StatusUnauthorized, CodeForbidden, message, nil)
}

// InsertFailed is a store write failure (500).
func InsertFailed(message string, err error) *Error {
	return New(http.StatusInternalServerError, CodeInsertFailed, message, err)
}

// Internal is any other unexpected failure (500).
func Internal(message string, err error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, message, err)
}
