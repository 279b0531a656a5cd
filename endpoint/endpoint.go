// Package endpoint is the HTTP transport layer used to host the JSON-RPC
// dispatcher.
//
// A request passes through three phases:
//
//  1. Processors: middleware-style hooks (logging, headers, CORS) that wrap
//     the rest of the chain.
//  2. Unmarshal + EndpointFunc: request headers are decoded into a typed
//     params struct using struct tags, then the EndpointFunc runs and
//     returns a Renderer. It does not write to the response directly.
//  3. Render: the returned Renderer writes status, headers and body.
//
// Supported Renderers:
//   - JSONRenderer: serializes a value as JSON.
//   - NoContentRenderer: writes a status code with no body.
package endpoint

import (
	"errors"
	"io"
	"net/http"
)

// EndpointError is a client-visible error that maps directly to an HTTP status code.
//
// The handler wrapper uses this to translate returned Go errors into HTTP
// responses.
type EndpointError struct {
	Status int
	// Message is a short, human-readable description suitable for an HTTP error body.
	Message string
	Cause   error
}

func (e *EndpointError) Error() string {
	if e == nil {
		return "endpoint: error: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *EndpointError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Error creates a new EndpointError.
func Error(status int, message string, err error) error {
	return newEndpointError(status, message, err)
}

func newEndpointError(status int, message string, err error) error {
	// Avoid double-wrapping.
	var ee *EndpointError
	if errors.As(err, &ee) {
		return err
	}
	return &EndpointError{Status: status, Message: message, Cause: err}
}

// StatusOf returns the HTTP status an error will be rendered with.
func StatusOf(err error) int {
	var ee *EndpointError
	if errors.As(err, &ee) && ee != nil && ee.Status >= 100 {
		return ee.Status
	}
	return http.StatusInternalServerError
}

// Renderers are values that write a response into an http.ResponseWriter.
//
// Protocol:
//   - Renderers MUST call w.WriteHeader() to write the HTTP response status
//     and headers, followed by any body writes.
//   - Renderers may optionally write the Content-Type header before
//     calling w.WriteHeader().
//
// If Render returns a non-nil error, it indicates a failure to write the
// response. The response may already be partially written at that point.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Processor is middleware-style logic that wraps the rest of the chain.
//
// Protocol:
//   - Processors MUST call next(...), unless they intend to
//     short-circuit the request.
//   - Processors MUST NOT call w.WriteHeader(...) or write the body, but may
//     wrap w to observe what the renderer writes.
//
// If any processor returns a non-nil error, the chain stops immediately
// and that error is rendered by the handler.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc is the wrapped handler function type.
//
// It receives the response writer, the incoming request, and a typed params
// value decoded from the request, and returns a Renderer responsible for
// writing the response, or an error.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

// EndpointHandler is the standard http.Handler wrapper for an EndpointFunc.
//
// It runs zero or more processors. It then calls Endpoint with decoded
// params and invokes the returned Renderer to write the response.
type EndpointHandler[P any] struct {
	Endpoint   EndpointFunc[P]
	Processors []Processor
}

// Handler constructs an EndpointHandler.
//
// This helper exists to enable type inference for the params type P.
func Handler[P any](fn EndpointFunc[P], processors ...Processor) *EndpointHandler[P] {
	return &EndpointHandler[P]{
		Endpoint:   fn,
		Processors: processors,
	}
}

// HandleFunc adapts an EndpointFunc into an http.HandlerFunc.
func HandleFunc[P any](fn EndpointFunc[P], processors ...Processor) http.HandlerFunc {
	return Handler(fn, processors...).ServeHTTP
}

// ServeHTTP implements http.Handler.
func (h *EndpointHandler[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Endpoint == nil {
		http.Error(w, "endpoint: nil EndpointFunc", http.StatusInternalServerError)
		return
	}

	var run func(i int, w2 http.ResponseWriter, r2 *http.Request) error
	run = func(i int, w2 http.ResponseWriter, r2 *http.Request) error {
		if i < 0 || i > len(h.Processors) {
			return errors.New("endpoint: invalid processor index")
		} else if i < len(h.Processors) {
			if h.Processors[i] == nil {
				return errors.New("endpoint: nil processor")
			}
			return h.Processors[i].Process(w2, r2, func(w3 http.ResponseWriter, r3 *http.Request) error {
				return run(i+1, w3, r3)
			})
		}

		// P must be a struct type, or a pointer to a struct type.
		// This is enforced by Unmarshal at runtime.
		var params P
		if err := Unmarshal(r2, &params); err != nil {
			return err
		}
		renderer, err := h.Endpoint(w2, r2, params)
		if err != nil {
			return err
		}
		if renderer == nil {
			return errors.New("endpoint: nil renderer")
		}
		if c, ok := renderer.(io.Closer); ok {
			defer c.Close()
		}
		return renderer.Render(w2, r2)
	}

	if err := run(0, w, r); err != nil {
		status := StatusOf(err)
		message := err.Error()
		var ee *EndpointError
		if errors.As(err, &ee) && ee != nil {
			message = ee.Message
			if message == "" {
				message = http.StatusText(status)
			}
		}
		http.Error(w, message, status)
	}
}
