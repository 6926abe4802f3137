package globalconf

import (
	"errors"
	"fmt"
)

// Diagnostics error codes reported by the status endpoint and used as process exit codes
const (
	ErrorCodeOK                         = 0
	ErrorCodeRunInProgress              = 117
	ErrorCodeAnchorNotForExternalSource = 118
	ErrorCodeMalformedAnchor            = 119
	ErrorCodeAnchorNotFound             = 120
	ErrorCodeMissingPrivateParams       = 121
	ErrorCodeCannotDownloadConf         = 122
	ErrorCodeExpiredConf                = 123
	ErrorCodeInvalidSignatureValue      = 124
	ErrorCodeInternal                   = 125
	ErrorCodeUninitialized              = 126
)

var (
	// ErrAnchorNotFound is returned when the anchor file does not exist
	ErrAnchorNotFound = errors.New("configuration anchor file not found")

	// ErrMalformedAnchor is returned when the anchor cannot be parsed
	ErrMalformedAnchor = errors.New("malformed configuration anchor")

	// ErrMalformedConfiguration is returned for unparsable or inconsistent configuration content
	ErrMalformedConfiguration = errors.New("malformed global configuration")

	// ErrExpiredConfiguration is returned when a configuration directory has expired
	ErrExpiredConfiguration = errors.New("global configuration expired")

	// ErrInvalidSignature is returned when a directory signature does not verify
	ErrInvalidSignature = errors.New("invalid signature value")

	// ErrCertNotFound is returned when no verification certificate matches the signature
	ErrCertNotFound = errors.New("verification certificate not found")

	// ErrHashMismatch is returned when downloaded content does not match its declared hash
	ErrHashMismatch = errors.New("content hash mismatch")
)

// CodedError attaches a diagnostics error code to an error
type CodedError struct {
	Code int
	Err  error
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%v (code %d)", e.Err, e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// WithCode wraps err with a diagnostics code
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Err: err}
}

// ErrorCode classifies an error into a diagnostics error code
func ErrorCode(err error) int {
	if err == nil {
		return ErrorCodeOK
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	switch {
	case errors.Is(err, ErrAnchorNotFound):
		return ErrorCodeAnchorNotFound
	case errors.Is(err, ErrMalformedAnchor):
		return ErrorCodeMalformedAnchor
	case errors.Is(err, ErrExpiredConfiguration):
		return ErrorCodeExpiredConf
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrCertNotFound):
		return ErrorCodeInvalidSignatureValue
	case errors.Is(err, ErrMalformedConfiguration), errors.Is(err, ErrHashMismatch):
		return ErrorCodeCannotDownloadConf
	}
	return ErrorCodeInternal
}
