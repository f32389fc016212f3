package errmodel

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestNewAndFrom(t *testing.T) {
	e := Validation(CodeInvalidField, "field missing", map[string]any{"field": "name"})
	if e.Category != CategoryValidation || e.Code != CodeInvalidField {
		t.Fatalf("unexpected: %#v", e)
	}
	if got := From(e); got != e {
		t.Fatalf("From should return same error instance")
	}
	wrapped := fmt.Errorf("handler: %w", e)
	if got := From(wrapped); got != e {
		t.Fatalf("From should unwrap to the typed error")
	}
}

func TestCauseIsReachable(t *testing.T) {
	e := IO(CodeSnapshotFailed, "write snapshot", nil, os.ErrPermission)
	if !errors.Is(e, os.ErrPermission) {
		t.Fatal("errors.Is should see the cause")
	}
	if len(e.Causes) != 1 || e.Causes[0].Category != CategorySystem {
		t.Fatalf("causes=%+v", e.Causes)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[*Error]int{
		Validation("bad_json", "x", nil):                 400,
		Validation(CodeBodyTooLarge, "x", nil):           413,
		Store(CodeStoreUnavailable, "down", nil):         503,
		Store(CodeStoreFailed, "boom", nil):              500,
		IO(CodeExportFailed, "disk full", nil, nil):      500,
		Network(CodeUpstreamFailed, "timeout", nil, nil): 502,
		From(errors.New("plain")):                        500,
	}
	for e, want := range cases {
		if got := HTTPStatus(e); got != want {
			t.Fatalf("%s: status=%d want %d", e.Code, got, want)
		}
	}
}

func TestWriteHTTP_StatusAndEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	WriteHTTP(rr, req, Validation("bad_json", "oops", nil))
	if rr.Code != 400 {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"category\":\"validation\"") {
		t.Fatalf("body missing category: %s", body)
	}
	if !strings.Contains(body, "\"code\":\"bad_json\"") {
		t.Fatalf("body missing code: %s", body)
	}
}
