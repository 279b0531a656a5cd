package endpoint

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

var errSentinel = errors.New("json encode error")

type jsonBadValue struct{}

func (jsonBadValue) MarshalJSON() ([]byte, error) {
	return nil, errSentinel
}

func TestNoContentRenderer(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := (&NoContentRenderer{}).Render(rec, nil); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

func TestJSONRenderer_SetsContentTypeAndEncodesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/vnd.api+json")

	r := JSONRenderer{Value: map[string]string{"hello": "<world>"}}
	if err := r.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected Content-Type %q, got %q", "application/json", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Body.String(); got != "{\"hello\":\"<world>\"}\n" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestJSONRenderer_EncodeError_ReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	r := JSONRenderer{Value: jsonBadValue{}}
	err := r.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected errSentinel, got %v", err)
	}
}
