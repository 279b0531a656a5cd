package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mnehpets/ledgerrpc/endpoint"
)

func TestRequestLogger_RequestID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"trace id wins", map[string]string{"X-Amzn-Trace-Id": "Root=1-abc", "X-Request-Id": "r1"}, "Root=1-abc"},
		{"request id", map[string]string{"X-Request-Id": "r1"}, "r1"},
		{"generated", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := endpoint.Handler(func(_ http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
				seen = RequestIDFromContext(r.Context())
				if _, ok := LoggerFromContext(r.Context()); !ok {
					t.Error("expected a request logger in context")
				}
				return &endpoint.NoContentRenderer{}, nil
			}, NewRequestLogger(zap.NewNop()))

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			echoed := rec.Header().Get(RequestIDHeader)
			if echoed != seen {
				t.Fatalf("echoed id %q differs from context id %q", echoed, seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Fatalf("got id %q, want %q", seen, tt.want)
			}
			if tt.want == "" && len(seen) != 36 {
				t.Fatalf("expected a generated UUID, got %q", seen)
			}
		})
	}
}

func TestRequestLogger_LogsInAndOut(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewRequestLogger(zap.New(core), WithLogLevel(zapcore.InfoLevel))
	clock := time.Unix(0, 0)
	p.now = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}

	h := endpoint.Handler(func(_ http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		l, _ := LoggerFromContext(r.Context())
		l.Debug("inside")
		return &endpoint.JSONRenderer{Status: http.StatusAccepted, Value: "hello"}, nil
	}, p)

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("X-Request-Id", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Message != "<-- POST /rpc" || entries[0].Level != zapcore.InfoLevel {
		t.Errorf("unexpected first entry: %s %q", entries[0].Level, entries[0].Message)
	}
	if entries[1].ContextMap()["req_id"] != "abc" {
		t.Errorf("expected handler logs to carry req_id, got %v", entries[1].ContextMap())
	}
	out := entries[2]
	if out.Message != "--> POST /rpc" {
		t.Errorf("unexpected last entry %q", out.Message)
	}
	fields := out.ContextMap()
	if fields["status"] != int64(http.StatusAccepted) {
		t.Errorf("status: got %v", fields["status"])
	}
	if fields["size"] != int64(len("\"hello\"\n")) {
		t.Errorf("size: got %v", fields["size"])
	}
	if fields["ms"] != float64(5) {
		t.Errorf("ms: got %v", fields["ms"])
	}
}

func TestRequestLogger_ErrorStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := endpoint.Handler(func(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
		return nil, endpoint.Error(http.StatusForbidden, "nope", errors.New("denied"))
	}, NewRequestLogger(zap.New(core)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	out := logs.FilterMessage("--> GET /").All()
	if len(out) != 1 || out[0].ContextMap()["status"] != int64(http.StatusForbidden) {
		t.Fatalf("expected out line with status 403, got %v", out)
	}
}
