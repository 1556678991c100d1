package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "jobId is required")

	if err.Code != CodeValidation {
		t.Errorf("expected code=%s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "jobId is required" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack trace to be captured")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "simple error",
			err:      New(CodeValidation, "invalid"),
			contains: []string{"VALIDATION_ERROR", "invalid"},
		},
		{
			name:     "error with op",
			err:      &Error{Code: CodeRender, Message: "encoder failed", Op: "pipeline.render"},
			contains: []string{"pipeline.render", "RENDER_ERROR", "encoder failed"},
		},
		{
			name:     "error with underlying",
			err:      &Error{Code: CodeResource, Message: "fetch failed", Err: fmt.Errorf("connection reset")},
			contains: []string{"fetch failed", "connection reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := tt.err.Error()
			for _, c := range tt.contains {
				if !strings.Contains(str, c) {
					t.Errorf("expected error string to contain %q, got: %s", c, str)
				}
			}
		})
	}
}

func TestWrap(t *testing.T) {
	original := fmt.Errorf("disk gone")
	wrapped := Wrap(original, "workspace.create", "create failed")

	if wrapped.Code != CodeInternal {
		t.Errorf("expected code=%s, got %s", CodeInternal, wrapped.Code)
	}
	if errors.Unwrap(wrapped) != original {
		t.Error("Unwrap should return original error")
	}
	if Wrap(nil, "op", "message") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	original := Resource(fmt.Errorf("404"), "assets.fetch", "download failed")
	wrapped := Wrap(original, "pipeline.download", "asset resolution failed")

	if wrapped.Code != CodeResource {
		t.Errorf("expected code to be preserved as %s, got %s", CodeResource, wrapped.Code)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, 400},
		{CodeNotFound, 404},
		{CodeConflict, 409},
		{CodeRateLimited, 429},
		{CodeInternal, 500},
		{CodeRender, 500},
		{CodeResource, 502},
		{CodePublish, 502},
		{CodeCapacity, 503},
		{CodeUnavailable, 503},
		{CodeStorageFull, 507},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "test").HTTPStatus(); got != tt.status {
				t.Errorf("expected status=%d, got %d", tt.status, got)
			}
		})
	}
}

func TestCapacity(t *testing.T) {
	err := Capacity(5, 5)
	if !IsCapacity(err) {
		t.Fatal("expected capacity code")
	}
	if err.Message != "capacity" {
		t.Errorf("expected reason 'capacity', got %q", err.Message)
	}
	if err.Fields["limit"] != 5 {
		t.Errorf("expected limit field, got %v", err.Fields["limit"])
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(fmt.Errorf("plain")) != CodeInternal {
		t.Error("plain errors should map to internal")
	}
	inner := ValidationField("timeline", "empty")
	if GetCode(fmt.Errorf("ctx: %w", inner)) != CodeValidation {
		t.Error("expected code through fmt wrapping")
	}
	if GetFields(inner)["field"] != "timeline" {
		t.Error("expected field to be recorded")
	}
}

func TestErrorIs(t *testing.T) {
	if !errors.Is(New(CodeNotFound, "a"), New(CodeNotFound, "b")) {
		t.Error("expected errors with same code to match with Is")
	}
	if errors.Is(New(CodeNotFound, "a"), New(CodeValidation, "c")) {
		t.Error("expected errors with different codes to not match")
	}
}

func TestStackTrace(t *testing.T) {
	stack := New(CodeInternal, "test error").StackTrace()
	if !strings.Contains(stack, ".go:") {
		t.Errorf("expected stack trace to contain file references, got: %s", stack)
	}
}
