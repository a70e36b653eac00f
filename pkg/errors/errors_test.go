package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestKindStatusMapping(t *testing.T) {
	tests := []struct {
		err      *AppError
		expected int
	}{
		{MissingCredential("x"), http.StatusUnauthorized},
		{Unauthorized("x"), http.StatusForbidden},
		{UnknownProperty("x"), http.StatusBadRequest},
		{InvalidValue("x", nil), http.StatusBadRequest},
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{StoreFailure("x", nil), http.StatusInternalServerError},
		{RateLimited("x"), http.StatusTooManyRequests},
	}
	for _, test := range tests {
		if test.err.Code != test.expected {
			t.Errorf("%s: code = %d, want %d", test.err.Kind, test.err.Code, test.expected)
		}
	}
}

func TestIsMatchesByKind(t *testing.T) {
	wrapped := fmt.Errorf("loading reading: %w", NotFound("reading not found"))
	if !stderrors.Is(wrapped, ErrNotFound) {
		t.Fatal("expected wrapped NotFound to match ErrNotFound")
	}
	if stderrors.Is(wrapped, ErrConflict) {
		t.Fatal("NotFound must not match ErrConflict")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("KindOf = %s", KindOf(wrapped))
	}
	if KindOf(stderrors.New("boom")) != KindStoreFailure {
		t.Fatal("unclassified errors should be store failures")
	}
}

func TestWriteErrorHidesCause(t *testing.T) {
	rw := httptest.NewRecorder()
	WriteError(rw, StoreFailure("could not update readings", stderrors.New("pq: connection refused")))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error"] != "could not update readings" {
		t.Fatalf("unexpected error message %v", body["error"])
	}
	if body["kind"] != string(KindStoreFailure) {
		t.Fatalf("unexpected kind %v", body["kind"])
	}
}
