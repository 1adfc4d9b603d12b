package crawler

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind string

// Failure classes captured into Result.ErrorKind.
const (
	KindNone       ErrorKind = ""
	KindURL        ErrorKind = "url"
	KindTransport  ErrorKind = "transport"
	KindContent    ErrorKind = "content"
	KindProtocol   ErrorKind = "protocol"
	KindUnexpected ErrorKind = "unexpected"
)

// Sentinel errors for each failure class; FetchError unwraps to one of them.
var (
	ErrURL       = errors.New("malformed url")
	ErrTransport = errors.New("transport failure")
	ErrContent   = errors.New("content failure")
	ErrProtocol  = errors.New("protocol anomaly")
)

// FetchError carries the failure class alongside its cause.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	var out []error
	if s := sentinelFor(e.Kind); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewFetchError wraps err with a failure class.
func NewFetchError(kind ErrorKind, rawURL string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}

// Errorf builds a FetchError from a format string.
func Errorf(kind ErrorKind, rawURL, format string, args ...any) *FetchError {
	return NewFetchError(kind, rawURL, fmt.Errorf(format, args...))
}

// KindOf reports the failure class of err. Errors outside the taxonomy are unexpected.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &fe):
		return fe.Kind
	case errors.Is(err, ErrURL):
		return KindURL
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrContent):
		return KindContent
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	default:
		return KindUnexpected
	}
}

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindURL:
		return ErrURL
	case KindTransport:
		return ErrTransport
	case KindContent:
		return ErrContent
	case KindProtocol:
		return ErrProtocol
	default:
		return nil
	}
}
