package errors

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindDomain    Kind = "domain"
	KindTransport Kind = "transport"
	KindPlatform  Kind = "platform"
	KindBootstrap Kind = "bootstrap"
	KindStorage   Kind = "storage"
	KindVision    Kind = "vision"
	KindUnknown   Kind = "unknown"

	// Catalog extraction failure classes.
	KindInput             Kind = "input"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindCodec             Kind = "codec"
	KindModel             Kind = "model"
	KindParse             Kind = "parse"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Detail carries diagnostic payload for operators, e.g. the raw model reply.
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a diagnostic payload and returns the same error.
func (e *Error) WithDetail(detail string) *Error {
	if e == nil {
		return nil
	}
	e.Detail = detail
	return e
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the kind of the first typed error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// DetailOf returns the diagnostic payload of the first typed error in the chain.
func DetailOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Detail
	}
	return ""
}

// IsTimeout reports whether the chain contains a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// MessageOf returns the message of the first typed error in the chain, or err.Error().
func MessageOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Message
	}
	return err.Error()
}
