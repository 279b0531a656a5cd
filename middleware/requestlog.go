package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mnehpets/ledgerrpc/endpoint"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-Id"

// traceIDHeader is set by AWS load balancers.
const traceIDHeader = "X-Amzn-Trace-Id"

type loggerKey struct{}
type requestIDKey struct{}

// RequestLogger is a processor that tags each request with an id and a
// child logger, and logs the request on the way in and out.
//
// The id is taken from X-Amzn-Trace-Id, then X-Request-Id, else a fresh
// UUID. It is echoed in the X-Request-Id response header.
type RequestLogger struct {
	logger *zap.Logger
	level  zapcore.Level
	now    func() time.Time
}

// RequestLoggerOption configures a RequestLogger.
type RequestLoggerOption func(*RequestLogger)

// WithLogLevel sets the level of the in/out lines. Default: debug.
func WithLogLevel(level zapcore.Level) RequestLoggerOption {
	return func(p *RequestLogger) {
		p.level = level
	}
}

// NewRequestLogger creates a RequestLogger writing to logger.
func NewRequestLogger(logger *zap.Logger, opts ...RequestLoggerOption) *RequestLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &RequestLogger{logger: logger, level: zapcore.DebugLevel, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process implements endpoint.Processor.
func (p *RequestLogger) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := p.now()

	id := r.Header.Get(traceIDHeader)
	if id == "" {
		id = r.Header.Get(RequestIDHeader)
	}
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	log := p.logger.With(
		zap.String("req_id", id),
		zap.String("req_ip", r.RemoteAddr),
	)
	ctx := WithRequestID(r.Context(), id)
	ctx = context.WithValue(ctx, loggerKey{}, log)

	log.Log(p.level, "<-- "+r.Method+" "+r.URL.Path)

	sw := &statusWriter{ResponseWriter: w}
	err := next(sw, r.WithContext(ctx))

	status := sw.status
	if err != nil {
		// The handler renders the error after the chain unwinds.
		status = endpoint.StatusOf(err)
	} else if status == 0 {
		status = http.StatusOK
	}
	log.Log(p.level, "--> "+r.Method+" "+r.URL.Path,
		zap.Int("status", status),
		zap.Float64("ms", float64(p.now().Sub(start))/float64(time.Millisecond)),
		zap.Int("size", sw.size),
	)
	return err
}

// LoggerFromContext returns the request logger installed by RequestLogger.
func LoggerFromContext(ctx context.Context) (*zap.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	return l, ok && l != nil
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id installed by RequestLogger
// or WithRequestID, or "" when there is none.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusWriter records the status code and body size written by a renderer.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

var _ endpoint.Processor = (*RequestLogger)(nil)
