package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mnehpets/ledgerrpc/endpoint"
	"github.com/mnehpets/ledgerrpc/middleware"
)

// DefaultBatchConcurrency bounds how many batch items run at once.
const DefaultBatchConcurrency = 16

// JSONRPCEndpoint dispatches JSON-RPC requests to the methods in its
// registry. Use endpoint.Handler(e.Endpoint, processors...) to create an
// http.Handler.
type JSONRPCEndpoint struct {
	*Registry

	logger     *zap.Logger
	metrics    *metrics
	batchLimit int
}

// Option configures a JSONRPCEndpoint.
type Option func(*JSONRPCEndpoint)

// WithNamespace prefixes every registered method name with namespace + ".".
func WithNamespace(namespace string) Option {
	return func(e *JSONRPCEndpoint) {
		e.Registry = NewRegistry(namespace)
	}
}

// WithRegistry serves the methods of an existing registry.
func WithRegistry(r *Registry) Option {
	return func(e *JSONRPCEndpoint) {
		e.Registry = r
	}
}

// WithLogger sets the logger used when no per-request logger is installed
// by middleware.RequestLogger.
func WithLogger(l *zap.Logger) Option {
	return func(e *JSONRPCEndpoint) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics registers call counters and handler latency histograms on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *JSONRPCEndpoint) {
		e.metrics = newMetrics(reg)
	}
}

// WithBatchConcurrency bounds the number of batch items handled at once.
// n <= 0 removes the bound.
func WithBatchConcurrency(n int) Option {
	return func(e *JSONRPCEndpoint) {
		e.batchLimit = n
	}
}

// NewEndpoint creates a JSON-RPC endpoint with an empty registry.
func NewEndpoint(opts ...Option) *JSONRPCEndpoint {
	e := &JSONRPCEndpoint{
		Registry:   NewRegistry(""),
		logger:     zap.NewNop(),
		batchLimit: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxBodySize bounds the request body. Larger bodies are refused with an
// InvalidRequest error and HTTP 413.
const MaxBodySize = 1 << 20

// rpcParams holds the request headers the endpoint reads. The body is read
// by the endpoint itself since JSON-RPC reports malformed and oversized
// bodies as protocol errors.
type rpcParams struct {
	// RequestID is used when no request logger has assigned an id. Header
	// size is bounded by the server, so decoding it cannot fail.
	RequestID string `header:"X-Request-Id" maxLength:"0"`
}

// Endpoint is the endpoint function that processes JSON-RPC requests.
// Pass to endpoint.Handler() to create an http.Handler.
func (e *JSONRPCEndpoint) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return errorRenderer(http.StatusMethodNotAllowed, NewError(CodeInvalidRequest, "Method Not Allowed")), nil
	}

	// Per JSON-RPC over HTTP, a Content-Type other than JSON is refused.
	if mt := endpoint.RequestMediaType(r); mt != "" && !endpoint.IsJSONMediaType(mt) {
		return errorRenderer(http.StatusUnsupportedMediaType, NewError(CodeInvalidRequest, "Unsupported Media Type")), nil
	}

	body, err := readBody(r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return errorRenderer(http.StatusRequestEntityTooLarge, NewError(CodeInvalidRequest, "Request Entity Too Large")), nil
		}
		return errorRenderer(http.StatusBadRequest, Wrap(CodeParseError, err, CodeText(CodeParseError))), nil
	}

	if params.RequestID != "" && middleware.RequestIDFromContext(r.Context()) == "" {
		r = r.WithContext(middleware.WithRequestID(r.Context(), params.RequestID))
	}
	return e.handleBody(r, body), nil
}

var errBodyTooLarge = errors.New("request body too large")

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	// One byte over the limit is enough to report it.
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(body) > MaxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// handleBody classifies the body as single or batch and dispatches it.
func (e *JSONRPCEndpoint) handleBody(r *http.Request, body []byte) endpoint.Renderer {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return errorRenderer(http.StatusBadRequest, codeError(CodeParseError, "empty body"))
	}
	if err := jx.DecodeBytes(body).Validate(); err != nil {
		return errorRenderer(http.StatusBadRequest, Wrap(CodeParseError, err, CodeText(CodeParseError)))
	}

	d := jx.DecodeBytes(body)
	switch d.Next() {
	case jx.Object:
		resp := e.handleOne(r, body)
		if resp.suppressed() {
			return &endpoint.NoContentRenderer{}
		}
		return &endpoint.JSONRenderer{Value: resp}

	case jx.Array:
		var items []json.RawMessage
		err := d.Arr(func(d *jx.Decoder) error {
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			items = append(items, json.RawMessage(raw))
			return nil
		})
		if err != nil {
			return errorRenderer(http.StatusBadRequest, Wrap(CodeParseError, err, CodeText(CodeParseError)))
		}
		if len(items) == 0 {
			return errorRenderer(http.StatusBadRequest, NewError(CodeInvalidRequest, CodeText(CodeInvalidRequest)))
		}
		responses := e.handleBatch(r, items)
		if len(responses) == 0 {
			return &endpoint.NoContentRenderer{}
		}
		return &endpoint.JSONRenderer{Value: responses}
	}

	return errorRenderer(http.StatusBadRequest, codeError(CodeParseError, "not an object or array"))
}

// handleBatch handles every item concurrently and returns the responses
// that must be written, in input order.
func (e *JSONRPCEndpoint) handleBatch(r *http.Request, items []json.RawMessage) []*Response {
	all := make([]*Response, len(items))
	var g errgroup.Group
	if e.batchLimit > 0 {
		g.SetLimit(e.batchLimit)
	}
	for i, item := range items {
		g.Go(func() error {
			all[i] = e.handleOne(r, item)
			return nil
		})
	}
	// handleOne never fails; errors are carried in the responses.
	_ = g.Wait()

	out := make([]*Response, 0, len(all))
	for _, resp := range all {
		if !resp.suppressed() {
			out = append(out, resp)
		}
	}
	return out
}

// handleOne runs a single request through parse, lookup, resolve and
// invoke. It always returns a response; whether it is written is decided
// by the caller.
func (e *JSONRPCEndpoint) handleOne(r *http.Request, raw []byte) *Response {
	ctx := r.Context()
	log := e.requestLogger(ctx)

	req, perr := ParseRequest(raw)
	if perr != nil {
		resp := &Response{ID: NullID, Error: perr}
		e.logCall(log, resp)
		e.metrics.observe(resp, false)
		return resp
	}

	resp := &Response{ID: req.ID, Request: req}
	log = log.With(zap.String("rpc_method", req.Method), zap.Stringer("rpc_id", req.ID))

	entry, ok := e.Lookup(req.Method)
	if !ok {
		resp.Error = NewError(CodeMethodNotFound, CodeText(CodeMethodNotFound))
		e.logCall(log, resp)
		e.metrics.observe(resp, false)
		return resp
	}

	args, rerr := entry.resolve(req.Params)
	if rerr != nil {
		resp.Error = rerr
		e.logCall(log, resp)
		e.metrics.observe(resp, true)
		return resp
	}

	callCtx := WithCall(ctx, &Call{Request: req, HTTPRequest: r, Logger: log})
	start := time.Now()
	result, err := invoke(callCtx, entry, args)
	resp.Elapsed = time.Since(start)
	if err != nil {
		resp.Error = AsError(err)
	} else {
		resp.Result = result
	}
	resp.settle()
	e.logCall(log, resp)
	e.metrics.observe(resp, true)
	return resp
}

// invoke calls the handler, turning a panic into a generic InternalError.
func invoke(ctx context.Context, entry *MethodEntry, args Args) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			LoggerFromContext(ctx).Error("rpc handler panic",
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			result, err = nil, NewError(CodeInternalError, CodeText(CodeInternalError))
		}
	}()
	return entry.Handler(ctx, args)
}

func (e *JSONRPCEndpoint) requestLogger(ctx context.Context) *zap.Logger {
	if l, ok := middleware.LoggerFromContext(ctx); ok {
		return l
	}
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		return e.logger.With(zap.String("req_id", id))
	}
	return e.logger
}

func (e *JSONRPCEndpoint) logCall(log *zap.Logger, resp *Response) {
	if resp.Error != nil {
		fields := []zap.Field{
			zap.Int("code", resp.Error.Code),
			zap.String("message", resp.Error.Message),
		}
		// Only untagged failures carry an internal cause worth logging.
		if resp.Error.Code == CodeInternalError {
			if cause := errors.Unwrap(resp.Error); cause != nil {
				fields = append(fields, zap.Error(cause))
			}
		}
		log.Error("rpc error", fields...)
		return
	}
	log.Debug("rpc call", zap.Float64("ms", float64(resp.Elapsed)/float64(time.Millisecond)))
}

// errorRenderer writes a single error response with id null.
func errorRenderer(status int, err *Error) endpoint.Renderer {
	return &endpoint.JSONRenderer{
		Status: status,
		Value:  &Response{ID: NullID, Error: err},
	}
}
