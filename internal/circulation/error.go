// Package circulation holds the pieces shared by the borrows, fines and
// lifecycle packages: the error taxonomy, the clock/ID seams and pagination.
package circulation

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT" // ロック競合（1回だけ自動リトライ対象）
	CodeInternal        Code = "INTERNAL"

	// Business-rule violations. Each rejection keeps its own code so the
	// caller can tell them apart; none of these collapse into CONFLICT.
	CodeBookUnavailable Code = "BOOK_UNAVAILABLE"
	CodeLimitExceeded   Code = "LIMIT_EXCEEDED"
	CodeNotActive       Code = "NOT_ACTIVE"
	CodeAlreadyPaid     Code = "ALREADY_PAID"
	CodeInvalidAmount   Code = "INVALID_AMOUNT"
	CodeOverPayment     Code = "OVER_PAYMENT"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func ErrBookUnavailable(msg string) *APIError {
	return &APIError{Code: CodeBookUnavailable, Message: msg}
}

func ErrLimitExceeded(msg string) *APIError {
	return &APIError{Code: CodeLimitExceeded, Message: msg}
}

func ErrNotActive(msg string) *APIError { return &APIError{Code: CodeNotActive, Message: msg} }

func ErrAlreadyPaid(msg string) *APIError { return &APIError{Code: CodeAlreadyPaid, Message: msg} }

func ErrInvalidAmount(msg string) *APIError {
	return &APIError{Code: CodeInvalidAmount, Message: msg}
}

func ErrOverPayment(msg string) *APIError { return &APIError{Code: CodeOverPayment, Message: msg} }

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument, CodeInvalidAmount:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeBookUnavailable, CodeLimitExceeded,
			CodeNotActive, CodeAlreadyPaid, CodeOverPayment:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// CodeOf extracts the taxonomy code, CodeInternal for unknown errors.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

type errorDTO struct {
	Error APIError `json:"error"`
}

// ErrorBody builds the JSON error envelope handlers return.
func ErrorBody(err error) any {
	var api *APIError
	if errors.As(err, &api) {
		return errorDTO{Error: *api}
	}
	return errorDTO{Error: APIError{Code: CodeInternal, Message: err.Error()}}
}
