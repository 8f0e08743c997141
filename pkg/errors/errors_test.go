package errors

import (
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := &Error{Type: ErrorTypeAuth, Message: "session rejected", Code: 401}
	expected := "auth error (code 401): session rejected"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeNetwork, "connection reset")
	if !IsType(err, ErrorTypeNetwork) {
		t.Error("Expected network error to match ErrorTypeNetwork")
	}
	if IsType(err, ErrorTypeAuth) {
		t.Error("Expected network error not to match ErrorTypeAuth")
	}
	if IsType(nil, ErrorTypeNetwork) {
		t.Error("Expected nil not to match any type")
	}
	if IsType(fmt.Errorf("plain error"), ErrorTypeNetwork) {
		t.Error("Expected untyped error not to match")
	}
}

func TestIsTypeWrapped(t *testing.T) {
	inner := New(ErrorTypeAuth, "invalid credentials")
	wrapped := fmt.Errorf("login failed: %w", inner)

	if !IsType(wrapped, ErrorTypeAuth) {
		t.Error("Expected wrapped auth error to match ErrorTypeAuth")
	}

	var typed *Error
	if !As(wrapped, &typed) {
		t.Fatal("Expected As to unwrap the typed error")
	}
	if typed.Message != "invalid credentials" {
		t.Errorf("Expected inner message, got %q", typed.Message)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		retryable bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeServerError, true},
		{ErrorTypeAuth, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeParsing, false},
		{ErrorTypeStorage, false},
		{ErrorTypeTagging, false},
		{ErrorTypeUnknown, false},
	}

	for _, test := range tests {
		if got := IsRetryable(test.errorType); got != test.retryable {
			t.Errorf("IsRetryable(%s) = %v, want %v", test.errorType, got, test.retryable)
		}
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	retryable := []int{0, 429, 500, 502, 503, 504, 599}
	for _, code := range retryable {
		if !IsRetryableStatusCode(code) {
			t.Errorf("Expected status %d to be retryable", code)
		}
	}

	notRetryable := []int{200, 301, 400, 401, 403, 404}
	for _, code := range notRetryable {
		if IsRetryableStatusCode(code) {
			t.Errorf("Expected status %d not to be retryable", code)
		}
	}
}
