package brokererr

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestConstructorsMapToExpectedCodes(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		code codes.Code
	}{
		{"PolicyViolation", PolicyViolation("file", "read", "denied"), codes.PermissionDenied},
		{"PathNotAllowed", PathNotAllowed("file", "read", "denied"), codes.PermissionDenied},
		{"CommandNotWhitelisted", CommandNotWhitelisted("command", "run", "denied"), codes.PermissionDenied},
		{"ApprovalRequired", ApprovalRequired("file", "create", "needs approval"), codes.FailedPrecondition},
		{"InvalidArgument", InvalidArgument("file", "read", "too big"), codes.InvalidArgument},
		{"NotFound", NotFound("snapshot", "get", "missing"), codes.NotFound},
		{"FileError", FileError("file", "read", errors.New("io error")), codes.Internal},
		{"Internal", Internal("file", "read", errors.New("boom")), codes.Internal},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("%s: Code = %v, want %v", tc.name, tc.err.Code, tc.code)
		}
	}
}

func TestErrorStringIncludesServiceAndAction(t *testing.T) {
	err := PolicyViolation("file", "read", "path not allowed")
	msg := err.Error()
	if !strings.Contains(msg, "service=file") || !strings.Contains(msg, "action=read") {
		t.Fatalf("expected the rendered message to carry service/action, got %q", msg)
	}
	if !strings.Contains(msg, "path not allowed") {
		t.Fatalf("expected the rendered message to carry the original reason, got %q", msg)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := FileError("file", "read", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through to the wrapped cause")
	}
}
