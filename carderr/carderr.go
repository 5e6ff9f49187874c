// Package carderr implements the error taxonomy of spec.md §7: fatal
// failures carry an HTTP status where one is available (0 when the
// failure is a protocol or parse error with no associated response),
// while recoverable conditions are handled inline by their caller and
// never become a *CardDAVError.
package carderr

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// Code classifies a fatal failure.
type Code int

const (
	// CodeUnknown is a protocol or parse failure with no HTTP status.
	CodeUnknown Code = iota
	// CodeHTTP wraps a non-recoverable HTTP status.
	CodeHTTP
	// CodeSSL is a TLS/SSL error observed without the account's
	// ignore-SSL-errors policy set.
	CodeSSL
	// CodeMissingData is missing required protocol data (empty
	// principal, empty home-set URL, duplicate GUID conflicts).
	CodeMissingData
)

// CardDAVError is the fatal-error type the engine emits via its error()
// callback (spec.md §6, §7).
type CardDAVError struct {
	Code       Code
	HTTPStatus int // 0 if no response was involved.
	Err        error
}

// New wraps err as a fatal CardDAVError with no associated HTTP status.
func New(code Code, err error) *CardDAVError {
	return &CardDAVError{Code: code, Err: err}
}

// FromHTTPStatus wraps err as a fatal CardDAVError carrying status.
func FromHTTPStatus(status int, err error) *CardDAVError {
	return &CardDAVError{Code: CodeHTTP, HTTPStatus: status, Err: err}
}

// ClassifyTransportError wraps a raw transport-layer error (one returned
// directly by the HTTP client, before any response was received) as a fatal
// CardDAVError. An SSL/certificate verification failure is classified
// CodeSSL with HTTPStatus 401, matching the original implementation's
// sslErrorsOccurred handler aborting via errorOccurred(401); ignoreSSLErrors
// is the per-account policy flag (spec.md §6) that would have suppressed the
// error before it reached the transport in the first place (see
// cmd/carddavsyncd's InsecureSkipVerify wiring) — if an SSL error reaches
// here despite the policy being set, it's classified CodeUnknown instead of
// escalated, since there's no partial response to resume from either way.
func ClassifyTransportError(err error, ignoreSSLErrors bool) *CardDAVError {
	if isSSLError(err) && !ignoreSSLErrors {
		return &CardDAVError{Code: CodeSSL, HTTPStatus: 401, Err: err}
	}
	return New(CodeUnknown, err)
}

func isSSLError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var certInvalidErr x509.CertificateInvalidError
	if errors.As(err, &certInvalidErr) {
		return true
	}
	return false
}

func (e *CardDAVError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("carddav: fatal error (HTTP %d): %v", e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("carddav: fatal error: %v", e.Err)
}

func (e *CardDAVError) Unwrap() error { return e.Err }
