package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	KindRateLimit ErrorKind = iota + 1
	KindTimeout
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate limit"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Sentinels matched by TransportError through errors.Is.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("request timed out")
	ErrConnection  = errors.New("connection failed")
)

// TransportError is a transient failure talking to the backend. Callers may
// retry it.
type TransportError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimit
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrConnection:
		return e.Kind == KindConnection
	}
	return false
}

// IsTransient reports whether err is a transport failure worth retrying.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// classify maps an SDK error to a *TransportError when it is transient, and
// wraps it with the provider name otherwise. status is the HTTP status the
// SDK reported, or 0.
func classify(provider string, err error, status int) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}

	kind := transientKind(err, status)
	if kind == 0 {
		return fmt.Errorf("%s API error: %w", provider, err)
	}
	return &TransportError{Kind: kind, Provider: provider, StatusCode: status, Err: err}
}

// statusOverloaded is Anthropic's "overloaded" status.
const statusOverloaded = 529

func transientKind(err error, status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, statusOverloaded:
		return KindConnection
	}
	if status != 0 {
		return 0
	}

	// Cancellation by the caller is final.
	if errors.Is(err, context.Canceled) {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindConnection
	}
	return 0
}
