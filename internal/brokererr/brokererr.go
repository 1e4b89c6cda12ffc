// Package brokererr is the broker's error taxonomy and its mapping onto RPC
// status codes. Every capability operation that can fail returns one of
// these constructors rather than a bare error, so the MCP boundary can
// always render a single structured status line.
package brokererr

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// Kind names a taxonomy member. Kept as a string rather than an int enum so
// it reads directly in the rendered status line and in audit details.
type Kind string

const (
	KindPolicyViolation        Kind = "POLICY_VIOLATION"
	KindPathNotAllowed         Kind = "PATH_NOT_ALLOWED"
	KindCommandNotWhitelisted  Kind = "COMMAND_NOT_WHITELISTED"
	KindApprovalRequired       Kind = "APPROVAL_REQUIRED"
	KindFileError              Kind = "FILE_ERROR"
	KindGitError               Kind = "GIT_ERROR"
	KindCommandError           Kind = "COMMAND_ERROR"
	KindSnapshotError          Kind = "SNAPSHOT_ERROR"
	KindConfigError            Kind = "CONFIG_ERROR"
	KindDatabaseError          Kind = "DATABASE_ERROR"
	KindInvalidArgument        Kind = "INVALID_ARGUMENT"
	KindNotFound               Kind = "NOT_FOUND"
	KindInternal               Kind = "INTERNAL"
)

// Reason is the machine-parseable "service + action" pair carried alongside
// every status, per spec.md §7's "message, and optionally a machine-parseable
// reason (service + action)".
type Reason struct {
	Service string
	Action  string
}

// Error is the broker's single structured error type. It renders as
// "<KIND>: <message> [service=<s> action=<a>]" (the bracketed reason is
// omitted when both service and action are empty), so the kind, which
// determines the code, and the message and reason survive the MCP
// transport, which carries tool errors as plain text with no native
// status-code field.
type Error struct {
	Kind    Kind
	Code    codes.Code
	Reason  Reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Reason.Service == "" && e.Reason.Action == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s [service=%s action=%s]", e.Kind, e.Message, e.Reason.Service, e.Reason.Action)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, code codes.Code, service, action, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Reason:  Reason{Service: service, Action: action},
		Message: fmt.Sprintf(format, args...),
	}
}

func PolicyViolation(service, action, format string, args ...any) *Error {
	return newErr(KindPolicyViolation, codes.PermissionDenied, service, action, format, args...)
}

func PathNotAllowed(service, action, format string, args ...any) *Error {
	return newErr(KindPathNotAllowed, codes.PermissionDenied, service, action, format, args...)
}

func CommandNotWhitelisted(service, action, format string, args ...any) *Error {
	return newErr(KindCommandNotWhitelisted, codes.PermissionDenied, service, action, format, args...)
}

func ApprovalRequired(service, action, format string, args ...any) *Error {
	return newErr(KindApprovalRequired, codes.FailedPrecondition, service, action, format, args...)
}

func FileError(service, action string, cause error) *Error {
	e := newErr(KindFileError, codes.Internal, service, action, "%v", cause)
	e.Cause = cause
	return e
}

func GitError(service, action string, cause error) *Error {
	e := newErr(KindGitError, codes.Internal, service, action, "%v", cause)
	e.Cause = cause
	return e
}

func CommandError(service, action string, cause error) *Error {
	e := newErr(KindCommandError, codes.Internal, service, action, "%v", cause)
	e.Cause = cause
	return e
}

func SnapshotError(service, action string, cause error) *Error {
	e := newErr(KindSnapshotError, codes.Internal, service, action, "%v", cause)
	e.Cause = cause
	return e
}

func ConfigError(service, action string, cause error) *Error {
	e := newErr(KindConfigError, codes.Internal, service, action, "%v", cause)
	e.Cause = cause
	return e
}

func DatabaseError(service, action string, cause error) *Error {
	e := newErr(KindDatabaseError, codes.Internal, service, action, "%v", cause)
	e.Cause = cause
	return e
}

func InvalidArgument(service, action, format string, args ...any) *Error {
	return newErr(KindInvalidArgument, codes.InvalidArgument, service, action, format, args...)
}

func NotFound(service, action, format string, args ...any) *Error {
	return newErr(KindNotFound, codes.NotFound, service, action, format, args...)
}

func Internal(service, action string, cause error) *Error {
	e := newErr(KindInternal, codes.Internal, service, action, "%v", cause)
	e.Cause = cause
	return e
}
