package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Business rule codes surfaced to clients.
const (
	CodeNotFound                 = "NOT_FOUND"
	CodeBookNotFound             = "BOOK_NOT_FOUND"
	CodeBookAvailable            = "BOOK_AVAILABLE"
	CodeBookUnavailable          = "BOOK_UNAVAILABLE"
	CodeBookNotAvailable         = "BOOK_NOT_AVAILABLE"
	CodeDuplicateReservation     = "DUPLICATE_RESERVATION"
	CodeMembershipExpired        = "MEMBERSHIP_EXPIRED"
	CodeUnauthorizedCancel       = "UNAUTHORIZED_CANCEL"
	CodeUnauthorizedPickup       = "UNAUTHORIZED_PICKUP"
	CodeInvalidReservationStatus = "INVALID_RESERVATION_STATUS"
	CodeReservationNotFound      = "RESERVATION_NOT_FOUND"
	CodeExtendBlocked            = "EXTEND_BLOCKED_BY_RESERVATION"
	CodeInvalidLoanStatus        = "INVALID_LOAN_STATUS"
	CodeInvalidFineStatus        = "INVALID_FINE_STATUS"
)

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

type BusinessRuleError struct {
	Code    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Violation(code, format string, args ...interface{}) error {
	return &BusinessRuleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps a storage error once with the failing operation.
// A nil err passes through so call sites can wrap unconditionally.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// CodeOf returns the business rule code carried by err, or "".
func CodeOf(err error) string {
	var brv *BusinessRuleError
	if errors.As(err, &brv) {
		return brv.Code
	}
	return ""
}

// HTTPStatus maps an engine error to a response status. Domain violations
// become client errors carrying their code; everything else is a generic 500.
func HTTPStatus(err error) int {
	if IsNotFound(err) {
		return http.StatusNotFound
	}
	var brv *BusinessRuleError
	if errors.As(err, &brv) {
		if strings.HasSuffix(brv.Code, "_NOT_FOUND") || brv.Code == CodeNotFound {
			return http.StatusNotFound
		}
		if strings.HasPrefix(brv.Code, "UNAUTHORIZED_") {
			return http.StatusForbidden
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
