package search

import (
	"errors"
	"fmt"
)

// Kind classifica as falhas do núcleo de federação
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindRateLimit
	KindUnavailable
	KindGone
	KindProtocolMismatch
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindRateLimit:
		return "RateLimitExceeded"
	case KindUnavailable:
		return "ResourceUnavailable"
	case KindGone:
		return "ResourceGone"
	case KindProtocolMismatch:
		return "ProtocolMismatch"
	case KindNotFound:
		return "NotFound"
	}
	return "Unknown"
}

// Error carrega o tipo da falha e uma mensagem já higienizada
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is permite errors.Is(err, search.ErrRateLimited) e similares
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrRateLimited      = &Error{Kind: KindRateLimit}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
	ErrGone             = &Error{Kind: KindGone}
	ErrProtocolMismatch = &Error{Kind: KindProtocolMismatch}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Configuration(format string, args ...any) *Error {
	return newError(KindConfiguration, nil, format, args...)
}

func RateLimited(format string, args ...any) *Error {
	return newError(KindRateLimit, nil, format, args...)
}

func Unavailable(err error, format string, args ...any) *Error {
	return newError(KindUnavailable, err, format, args...)
}

func Gone(format string, args ...any) *Error {
	return newError(KindGone, nil, format, args...)
}

func ProtocolMismatch(format string, args ...any) *Error {
	return newError(KindProtocolMismatch, nil, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// KindOf retorna o tipo do primeiro *Error na cadeia, ou KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
