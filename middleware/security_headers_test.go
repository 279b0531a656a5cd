package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnehpets/ledgerrpc/endpoint"
)

func runProcessor(t *testing.T, p endpoint.Processor, r *http.Request) (*httptest.ResponseRecorder, bool, error) {
	t.Helper()
	w := httptest.NewRecorder()
	nextCalled := false
	err := p.Process(w, r, func(http.ResponseWriter, *http.Request) error {
		nextCalled = true
		return nil
	})
	return w, nextCalled, err
}

func TestSecurityHeadersProcessor_DefaultHeaders(t *testing.T) {
	w, nextCalled, err := runProcessor(t, NewSecurityHeadersProcessor(), httptest.NewRequest(http.MethodPost, "/", nil))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !nextCalled {
		t.Fatal("next was not called")
	}

	want := map[string]string{
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
		"Referrer-Policy":              "no-referrer",
		"X-Content-Type-Options":       "nosniff",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Access-Control-Allow-Origin":  "",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s: got %q, want %q", k, got, v)
		}
	}
}

func TestSecurityHeadersProcessor_HSTSOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  SecurityHeadersOption
		want string
	}{
		{"custom", WithHSTS(600, false, true), "max-age=600; preload"},
		{"disabled", WithoutHSTS(), ""},
		{"zero max age", WithHSTS(0, true, true), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, _ := runProcessor(t, NewSecurityHeadersProcessor(tt.opt), httptest.NewRequest(http.MethodPost, "/", nil))
			if got := w.Header().Get("Strict-Transport-Security"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeadersProcessor_CORS(t *testing.T) {
	tests := []struct {
		name        string
		config      *CORSConfig
		origin      string
		wantOrigin  string
		wantCreds   string
		wantExposed string
		wantCORP    string
	}{
		{
			name:        "allowed origin",
			config:      &CORSConfig{AllowedOrigins: []string{"https://app.example"}},
			origin:      "https://app.example",
			wantOrigin:  "https://app.example",
			wantExposed: RequestIDHeader,
		},
		{
			name:        "wildcard",
			config:      &CORSConfig{AllowedOrigins: []string{"*"}},
			origin:      "https://any.example",
			wantOrigin:  "*",
			wantExposed: RequestIDHeader,
		},
		{
			name:     "wildcard never combined with credentials",
			config:   &CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true},
			origin:   "https://any.example",
			wantCORP: "same-origin",
		},
		{
			name:        "credentials with explicit origin",
			config:      &CORSConfig{AllowedOrigins: []string{"https://app.example"}, AllowCredentials: true, ExposedHeaders: []string{}},
			origin:      "https://app.example",
			wantOrigin:  "https://app.example",
			wantCreds:   "true",
			wantExposed: "",
		},
		{
			name:     "unlisted origin",
			config:   &CORSConfig{AllowedOrigins: []string{"https://app.example"}},
			origin:   "https://evil.example",
			wantCORP: "same-origin",
		},
		{
			name:     "same-origin request",
			config:   &CORSConfig{AllowedOrigins: []string{"*"}},
			wantCORP: "same-origin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w, nextCalled, err := runProcessor(t, NewSecurityHeadersProcessor(WithCORSConfig(tt.config)), r)
			if err != nil || !nextCalled {
				t.Fatalf("expected next to run, err=%v", err)
			}
			h := w.Header()
			if got := h.Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin: got %q, want %q", got, tt.wantOrigin)
			}
			if got := h.Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Allow-Credentials: got %q, want %q", got, tt.wantCreds)
			}
			if got := h.Get("Access-Control-Expose-Headers"); got != tt.wantExposed {
				t.Errorf("Expose-Headers: got %q, want %q", got, tt.wantExposed)
			}
			if got := h.Get("Cross-Origin-Resource-Policy"); got != tt.wantCORP {
				t.Errorf("CORP: got %q, want %q", got, tt.wantCORP)
			}
		})
	}
}

func TestSecurityHeadersProcessor_CORS_Preflight(t *testing.T) {
	p := NewSecurityHeadersProcessor(WithCORS("https://app.example"))
	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	r.Header.Set("Origin", "https://app.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w, nextCalled, err := runProcessor(t, p, r)
	if nextCalled {
		t.Fatal("preflight should short-circuit the chain")
	}
	if endpoint.StatusOf(err) != http.StatusNoContent {
		t.Fatalf("expected 204, got %v", err)
	}
	h := w.Header()
	if got := h.Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Allow-Methods: got %q", got)
	}
	if got := h.Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("Allow-Headers: got %q", got)
	}
	if got := h.Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age: got %q", got)
	}
}

func TestWithCORS_NoOriginsDisables(t *testing.T) {
	if p := NewSecurityHeadersProcessor(WithCORS()); p.CORS != nil {
		t.Fatal("expected CORS to stay disabled with no origins")
	}
}
