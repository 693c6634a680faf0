// Package apperr holds the error taxonomy shared by the booking engine, the catalog and
// the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindForbidden
)

type Code string

const (
	TooManyPending        Code = "TooManyPending"
	ServiceIDRequired     Code = "ServiceIdRequired"
	StartInPast           Code = "StartInPast"
	ServiceInactive       Code = "ServiceInactive"
	BusinessInactive      Code = "BusinessInactive"
	ClientBlocked         Code = "ClientBlocked"
	ProviderUnavailable   Code = "ProviderUnavailable"
	LunchBreakConflict    Code = "LunchBreakConflict"
	SlotConflict          Code = "SlotConflict"
	CannotModifyFinalized Code = "CannotModifyFinalized"
	DuplicateTitle        Code = "DuplicateTitle"
	InvalidWindow         Code = "InvalidWindow"
	InvalidDuration       Code = "InvalidDuration"
	NoAvailability        Code = "NoAvailability"
	InvalidInput          Code = "InvalidInput"

	ServiceNotFound     Code = "ServiceNotFound"
	AppointmentNotFound Code = "AppointmentNotFound"
	ProviderNotFound    Code = "ProviderNotFound"

	Forbidden Code = "Forbidden"
)

var kinds = map[Code]Kind{
	ServiceNotFound:     KindNotFound,
	AppointmentNotFound: KindNotFound,
	ProviderNotFound:    KindNotFound,
	Forbidden:           KindForbidden,
}

// Kind returns the kind a code belongs to; unknown codes are validation errors.
func (c Code) Kind() Kind {
	if k, ok := kinds[c]; ok {
		return k
	}
	return KindValidation
}

// Error is a domain rejection with a human readable message.
type Error struct {
	Code    Code
	Message string
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches any *Error carrying the same code, so errors.Is(err, apperr.New(SlotConflict, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the code of a domain error, or "" for anything else.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error to a response status. Non-domain errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code.Kind() {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
