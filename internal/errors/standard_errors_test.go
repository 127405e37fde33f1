package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStandardErrorCreation(t *testing.T) {
	tests := []struct {
		name         string
		createError  func() *StandardError
		expectedCode ErrorCode
	}{
		{
			name:         "validation error",
			createError:  func() *StandardError { return NewValidationError("query", "must not be empty", "") },
			expectedCode: ErrorCodeValidationError,
		},
		{
			name:         "required field error",
			createError:  func() *StandardError { return NewRequiredFieldError("content") },
			expectedCode: ErrorCodeRequiredField,
		},
		{
			name:         "dimension mismatch",
			createError:  func() *StandardError { return NewDimensionMismatchError(1024, 512) },
			expectedCode: ErrorCodeDimensionMismatch,
		},
		{
			name:         "not found",
			createError:  func() *StandardError { return NewNotFoundError("vault") },
			expectedCode: ErrorCodeNotFound,
		},
		{
			name:         "persistence error",
			createError:  func() *StandardError { return NewPersistenceError("store", errTest) },
			expectedCode: ErrorCodePersistenceError,
		},
		{
			name:         "remote error",
			createError:  func() *StandardError { return NewRemoteError("embed", errTest) },
			expectedCode: ErrorCodeRemoteError,
		},
		{
			name:         "internal error",
			createError:  func() *StandardError { return NewInternalError("boom", errTest) },
			expectedCode: ErrorCodeInternalError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.createError()
			if err.ErrorInfo.Code != tc.expectedCode {
				t.Fatalf("expected code %s, got %s", tc.expectedCode, err.ErrorInfo.Code)
			}
			if err.Error() == "" {
				t.Fatalf("expected non-empty message")
			}
		})
	}
}

var errTest = jsonErr("boom")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }

func TestToHTTPStatus(t *testing.T) {
	cases := map[*StandardError]int{
		NewValidationError("query", "required", nil): http.StatusBadRequest,
		NewDimensionMismatchError(8, 4):               http.StatusBadRequest,
		NewNotFoundError("vault"):                     http.StatusNotFound,
		NewPersistenceError("store", nil):             http.StatusInternalServerError,
		NewInternalError("boom", nil):                 http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := err.ToHTTPStatus(); got != want {
			t.Errorf("code %s: got status %d, want %d", err.ErrorInfo.Code, got, want)
		}
	}
}

func TestWriteHTTPError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewValidationError("query", "required", nil).WithTraceID("trace-123")
	err.WriteHTTPError(rec)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Header().Get("X-Trace-ID") != "trace-123" {
		t.Fatalf("expected trace id header to be set")
	}

	var body StandardError
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("failed to decode body: %v", decodeErr)
	}
	if body.ErrorInfo.Code != ErrorCodeValidationError {
		t.Fatalf("unexpected code in body: %s", body.ErrorInfo.Code)
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(NewValidationError("x", "y", nil)) {
		t.Fatalf("expected validation error to be classified as such")
	}
	if IsValidationError(NewInternalError("x", nil)) {
		t.Fatalf("internal error should not be classified as validation")
	}
}
