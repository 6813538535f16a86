package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to surface it.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindUnsupportedMedia Kind = "unsupported_media"
	KindPayloadTooLarge  Kind = "payload_too_large"
	KindAuthorization    Kind = "authorization"
	KindNetwork          Kind = "network"
	KindServer           Kind = "server"
	KindUpload           Kind = "upload"
	KindStaleContext     Kind = "stale_context"
)

// Error is the single error type produced by the messaging core and its
// transports. Match on it with errors.Is against the sentinels below, or
// errors.As to read Status/Limit.
type Error struct {
	Kind   Kind
	Op     string
	Msg    string
	Status int
	Limit  int64
	Err    error
}

var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrUnsupportedMedia = &Error{Kind: KindUnsupportedMedia}
	ErrPayloadTooLarge  = &Error{Kind: KindPayloadTooLarge}
	ErrAuthorization    = &Error{Kind: KindAuthorization}
	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrServer           = &Error{Kind: KindServer}
	ErrUpload           = &Error{Kind: KindUpload}
	ErrStaleContext     = &Error{Kind: KindStaleContext}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, so errors.Is(err, ErrValidation) matches any
// validation failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func validationError(op, msg string) *Error {
	return newError(KindValidation, op, msg)
}

// KindOf returns the Kind of err, or "" when err did not come from here.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether err is transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindServer, KindUpload:
		return true
	}
	return false
}

// Notice renders err as a short user-facing message.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong: " + err.Error()
	}
	switch e.Kind {
	case KindValidation:
		if e.Msg != "" {
			return e.Msg
		}
		return "Please check your input."
	case KindUnsupportedMedia:
		return "Only images and videos can be attached."
	case KindPayloadTooLarge:
		if e.Msg != "" {
			return e.Msg
		}
		return "That file is too large."
	case KindAuthorization:
		return "Your session has expired. Please sign in again."
	case KindNetwork:
		return "Can't reach the server. Check your connection and retry."
	case KindServer:
		return "The server had a problem. Please retry."
	case KindUpload:
		return "The attachment upload failed. Nothing was sent."
	case KindStaleContext:
		return ""
	}
	return err.Error()
}

// FormatBytes renders whole megabytes as "10 MB".
func FormatBytes(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%.1f MB", float64(n)/mb)
}
