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
		{code: CodeEventNotFound, status: http.StatusNotFound, publicMsg: "event not found", detailsOK: true},
		{code: CodeEventValidation, status: http.StatusBadRequest, publicMsg: "invalid event", detailsOK: true},
		{code: CodeEventPublish, status: http.StatusServiceUnavailable, publicMsg: "event could not be published", retryable: true},
		{code: CodeEventHandler, status: http.StatusInternalServerError, publicMsg: "event handler failed", retryable: true},
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
	base := New(CodeEventValidation, "missing event type")
	if base.Code() != CodeEventValidation {
		t.Fatalf("expected event validation code, got %s", base.Code())
	}
	if base.Message() != "missing event type" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "event_type"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("redis down")
	wrapped := Wrap(CodeEventPublish, cause, "persist event")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeEventPublish {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(CodeEventValidation, "bad priority")
	outer := Wrap(CodeEventPublish, inner, "publish")
	wrapped := fmt.Errorf("caller: %w", outer)

	if !HasCode(wrapped, CodeEventPublish) {
		t.Fatal("expected publish code in chain")
	}
	if !HasCode(wrapped, CodeEventValidation) {
		t.Fatal("expected validation code in chain")
	}
	if HasCode(wrapped, CodeEventNotFound) {
		t.Fatal("did not expect not-found code")
	}
	if HasCode(nil, CodeInternal) {
		t.Fatal("nil error carries no code")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeEventNotFound, "no such event")
	if got := As(err); got == nil || got.Code() != CodeEventNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
