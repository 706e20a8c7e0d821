package okto

import "errors"

// ErrorKind classifies every failure surfaced by this module.
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "ConfigurationError"
	KindEncoding       ErrorKind = "EncodingError"
	KindKey            ErrorKind = "KeyError"
	KindNetwork        ErrorKind = "NetworkError"
	KindEstimation     ErrorKind = "EstimationError"
	KindExecution      ErrorKind = "ExecutionError"
	KindAuthentication ErrorKind = "AuthenticationError"
)

// Kind sentinels for errors.Is matching, e.g. errors.Is(err, okto.ErrEncoding).
var (
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrEncoding       = &Error{Kind: KindEncoding}
	ErrKey            = &Error{Kind: KindKey}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrEstimation     = &Error{Kind: KindEstimation}
	ErrExecution      = &Error{Kind: KindExecution}
	ErrAuthentication = &Error{Kind: KindAuthentication}
)

// Error is the discriminated failure carried by every operation of the
// module. Message is what the caller presents to the user; backend
// messages are kept verbatim.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Code    int       `json:"code,omitempty"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel matching e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a kinded error around err.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// AsError returns err as an *Error, defaulting unknown failures to fallback.
func AsError(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: fallback, Err: err}
}

type userOperationError string

func (e userOperationError) Error() string {
	return string(e)
}

// Define error constants
const (
	ErrMissingClientSWA     userOperationError = "client SWA is required"
	ErrMissingClientKey     userOperationError = "client private key is required"
	ErrMissingPrivateKey    userOperationError = "private key is empty"
	ErrInvalidPrivateKey    userOperationError = "invalid hex-encoded private key"
	ErrInvalidAddress       userOperationError = "invalid hex-encoded address"
	ErrInvalidNumeric       userOperationError = "invalid numeric value"
	ErrNegativeNumeric      userOperationError = "numeric value cannot be negative"
	ErrUint128Overflow      userOperationError = "value does not fit in 16 bytes"
	ErrUint256Overflow      userOperationError = "value does not fit in 32 bytes"
	ErrUint48Overflow       userOperationError = "value does not fit in 6 bytes"
	ErrInvalidHexData       userOperationError = "invalid hex-encoded data"
	ErrInvalidNonce         userOperationError = "invalid sponsorship nonce"
	ErrInvalidChainID       userOperationError = "invalid chain ID"
	ErrInvalidSignature     userOperationError = "invalid signature"
	ErrInvalidAuthToken     userOperationError = "invalid auth token"
	ErrUnsupportedNamespace userOperationError = "unsupported CAIP-2 namespace"
	ErrInvalidAmount        userOperationError = "invalid token amount"
)
