// Package errors maps service failures onto the status codes and messages the HTTP layer
// returns to callers.
package errors

import (
	"errors"
	"net/http"
)

// Category classifies a ServiceError.
type Category int

const (
	CategoryGeneralError Category = iota
	// CategoryDataError is malformed input: a bad identifier, parameter or body.
	CategoryDataError
	// CategoryUnauthorized means the caller could not be identified.
	CategoryUnauthorized
	// CategoryForbidden means the caller is known but may not act.
	CategoryForbidden
	CategoryResourceNotFound
	// CategoryNotSupported is a feature this deployment has not configured.
	CategoryNotSupported
	// CategoryLocked refuses work until some state clears, e.g. a missing gas estimate.
	CategoryLocked
	// CategoryDependencyFailure is a failing chain node, cache or manifest host.
	CategoryDependencyFailure
)

var categories = map[Category]struct {
	name   string
	status int
}{
	CategoryGeneralError:      {"GeneralError", http.StatusInternalServerError},
	CategoryDataError:         {"DataError", http.StatusBadRequest},
	CategoryUnauthorized:      {"Unauthorized", http.StatusUnauthorized},
	CategoryForbidden:         {"Forbidden", http.StatusForbidden},
	CategoryResourceNotFound:  {"ResourceNotFound", http.StatusNotFound},
	CategoryNotSupported:      {"NotSupported", http.StatusNotImplemented},
	CategoryLocked:            {"Locked", http.StatusLocked},
	CategoryDependencyFailure: {"DependencyFailure", http.StatusBadGateway},
}

func (c Category) String() string {
	if info, ok := categories[c]; ok {
		return info.name
	}
	return categories[CategoryGeneralError].name
}

// ServiceError carries a caller-facing Message next to the underlying Err, which is only
// ever logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// StatusCode returns the HTTP status of the category.
func (err ServiceError) StatusCode() int {
	if info, ok := categories[err.Category]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error".
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error")
}

func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message)
}

func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message)
}

func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message)
}

func NotSupportedError(err error, message string) error {
	return newError(CategoryNotSupported, err, message)
}

func LockedError(err error, message string) error {
	return newError(CategoryLocked, err, message)
}

func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message)
}
