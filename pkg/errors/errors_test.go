package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "concurrent update detected", retryable: true},
		{code: CodeInvalidTransition, status: http.StatusConflict, publicMsg: "operation not allowed in the current order status", detailsOK: true},
		{code: CodeQuantityInvariant, status: http.StatusUnprocessableEntity, publicMsg: "quantity out of range", detailsOK: true},
		{code: CodeInsufficientFunds, status: http.StatusUnprocessableEntity, publicMsg: "insufficient funds", detailsOK: true},
		{code: CodeIdempotencyConflict, status: http.StatusConflict, publicMsg: "idempotency key reused with different parameters", detailsOK: true},
		{code: CodePersistence, status: http.StatusServiceUnavailable, publicMsg: "storage unavailable", retryable: true},
		{code: CodeTimeout, status: http.StatusGatewayTimeout, publicMsg: "operation timed out; re-read state before retrying", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestViolationRoundTrip(t *testing.T) {
	err := NewViolation(CodeQuantityInvariant, "return exceeds received", Violation{
		EntityID:   "line-1",
		Field:      "quantity",
		Current:    int64(3),
		Attempted:  int64(5),
		Constraint: "returned <= received",
	})

	v, ok := err.Violation()
	if !ok {
		t.Fatalf("expected violation detail")
	}
	if v.EntityID != "line-1" || v.Attempted != int64(5) {
		t.Fatalf("unexpected violation %+v", v)
	}

	if _, ok := New(CodeValidation, "plain").Violation(); ok {
		t.Fatalf("plain error should not carry a violation")
	}
}

func TestAsReturnsTypedErrorThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeInsufficientFunds, "balance too low"))
	if got := As(err); got == nil || got.Code() != CodeInsufficientFunds {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeInsufficientFunds) {
		t.Fatalf("IsCode should match wrapped code")
	}
	if CodeOf(stdErrors.New("untyped")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
