// Package response renders the OCPI JSON envelope.
//
// Every reply, success or failure, is a Response[T]: the payload plus a
// numeric status code, an optional message and the server time. Responses
// are plain values; With* methods return modified copies.
package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	dErrors "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain-errors"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/httputil"
	pstrings "github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/strings"
)

// StatusCode is the OCPI status code carried in the envelope.
type StatusCode int

const (
	StatusSuccess StatusCode = 1000

	StatusClientError          StatusCode = 2000
	StatusInvalidParameters    StatusCode = 2001
	StatusNotEnoughInformation StatusCode = 2002
	StatusUnknownLocation      StatusCode = 2003
	StatusUnknownToken         StatusCode = 2004

	StatusServerError          StatusCode = 3000
	StatusUnableToUseClientAPI StatusCode = 3001
	StatusUnsupportedVersion   StatusCode = 3002
	StatusNoMatchingEndpoints  StatusCode = 3003
)

// IsSuccess reports whether the code is in the 1xxx range.
func (c StatusCode) IsSuccess() bool {
	return c >= 1000 && c < 2000
}

// IsClientError reports whether the code is in the 2xxx range.
func (c StatusCode) IsClientError() bool {
	return c >= 2000 && c < 3000
}

// Response is the envelope around every payload.
type Response[T any] struct {
	Data                  T                `json:"data,omitempty"`
	StatusCode            StatusCode       `json:"status_code"`
	StatusMessage         string           `json:"status_message,omitempty"`
	AdditionalInformation any              `json:"additionalInformation,omitempty"`
	Timestamp             domain.Timestamp `json:"timestamp"`
}

// OK wraps a successful payload.
func OK[T any](data T, now time.Time) Response[T] {
	return Response[T]{
		Data:          data,
		StatusCode:    StatusSuccess,
		StatusMessage: "Success",
		Timestamp:     domain.NewTimestamp(now),
	}
}

// Fail builds an envelope without payload.
func Fail(code StatusCode, message string, now time.Time) Response[any] {
	return Response[any]{
		StatusCode:    code,
		StatusMessage: message,
		Timestamp:     domain.NewTimestamp(now),
	}
}

// WithMessage returns a copy with a different status message.
func (r Response[T]) WithMessage(message string) Response[T] {
	r.StatusMessage = message
	return r
}

// WithAdditionalInformation returns a copy carrying extra detail.
func (r Response[T]) WithAdditionalInformation(info any) Response[T] {
	r.AdditionalInformation = info
	return r
}

// Write renders the envelope.
func Write[T any](w http.ResponseWriter, httpStatus int, resp Response[T]) {
	httputil.WriteJSON(w, httpStatus, resp)
}

// unauthorizedInfo is the additionalInformation body of a 401.
type unauthorizedInfo struct {
	Reasons []string `json:"reasons"`
}

// WriteUnauthorized renders a 401 listing every rejection reason once.
func WriteUnauthorized(w http.ResponseWriter, reasons []string, now time.Time) {
	w.Header().Set("WWW-Authenticate", `Token realm="ocpi"`)
	reasons = pstrings.DedupeAndTrim(reasons)
	if reasons == nil {
		reasons = []string{}
	}
	resp := Fail(StatusClientError, "Invalid or missing token!", now).
		WithAdditionalInformation(unauthorizedInfo{Reasons: reasons})
	Write(w, http.StatusUnauthorized, resp)
}

// statusError pins an explicit OCPI status code on an error.
type statusError struct {
	code StatusCode
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// WithStatus attaches an explicit OCPI status code, overriding the one
// derived from the domain error code.
func WithStatus(err error, code StatusCode) error {
	if err == nil {
		return nil
	}
	return &statusError{code: code, err: err}
}

// Classify maps an error to the HTTP status, OCPI status and a client-safe
// message. Internal errors never expose their message.
func Classify(err error) (int, StatusCode, string) {
	httpStatus, code, message := classifyDomain(err)
	var se *statusError
	if errors.As(err, &se) {
		code = se.code
	}
	return httpStatus, code, message
}

func classifyDomain(err error) (int, StatusCode, string) {
	de, ok := dErrors.As(err)
	if !ok {
		return http.StatusInternalServerError, StatusServerError, "Internal server error"
	}
	switch de.Code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest, StatusInvalidParameters, de.Message
	case dErrors.CodeNotFound:
		return http.StatusNotFound, StatusClientError, de.Message
	case dErrors.CodeConflict:
		return http.StatusConflict, StatusClientError, de.Message
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized, StatusClientError, de.Message
	case dErrors.CodeForbidden:
		return http.StatusForbidden, StatusClientError, de.Message
	case dErrors.CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed, StatusClientError, de.Message
	case dErrors.CodePreconditionFailed:
		return http.StatusPreconditionFailed, StatusClientError, de.Message
	case dErrors.CodeUnsupportedVersion:
		return http.StatusBadRequest, StatusUnsupportedVersion, de.Message
	case dErrors.CodeUpstream:
		return http.StatusBadGateway, StatusUnableToUseClientAPI, de.Message
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable, StatusServerError, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, StatusServerError, "Internal server error"
	}
}

// WriteError renders err as an envelope.
func WriteError(w http.ResponseWriter, err error, now time.Time) {
	httpStatus, code, message := Classify(err)
	Write(w, httpStatus, Fail(code, message, now))
}
