package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/ledgerrpc/endpoint"
)

// SecurityHeadersProcessor sets response headers suited to a JSON API.
//
// Defaults (NewSecurityHeadersProcessor):
//   - HSTS: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cross-Origin-Resource-Policy: same-origin
//
// Browser clients on other origins need CORS; see WithCORS. CORS preflight
// (OPTIONS) requests are answered directly with 204.
type SecurityHeadersProcessor struct {
	// HSTS configures Strict-Transport-Security. Nil disables it.
	HSTS *HSTSConfig

	ReferrerPolicy        string
	ContentTypeOptions    bool
	ContentSecurityPolicy string
	// CrossOriginResourcePolicy is dropped automatically when CORS is enabled
	// for the requesting origin.
	CrossOriginResourcePolicy string

	// CORS configures Cross-Origin Resource Sharing. Nil disables it.
	CORS *CORSConfig
}

// HSTSConfig configures HTTP Strict Transport Security.
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API. "*" allows any
	// origin unless AllowCredentials is set.
	AllowedOrigins []string
	// Default: POST, OPTIONS
	AllowedMethods []string
	// Default: Content-Type
	AllowedHeaders []string
	// Default: X-Request-Id
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Default: 3600
	MaxAge int
}

// SecurityHeadersOption is a functional option for configuring SecurityHeadersProcessor.
type SecurityHeadersOption func(*SecurityHeadersProcessor)

// NewSecurityHeadersProcessor creates a SecurityHeadersProcessor with API defaults.
func NewSecurityHeadersProcessor(opts ...SecurityHeadersOption) *SecurityHeadersProcessor {
	p := &SecurityHeadersProcessor{
		HSTS: &HSTSConfig{
			MaxAge:            31536000, // 1 year
			IncludeSubDomains: true,
		},
		ReferrerPolicy:            "no-referrer",
		ContentTypeOptions:        true,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		CrossOriginResourcePolicy: "same-origin",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithHSTS configures HSTS settings.
func WithHSTS(maxAge int, includeSubDomains, preload bool) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = &HSTSConfig{
			MaxAge:            maxAge,
			IncludeSubDomains: includeSubDomains,
			Preload:           preload,
		}
	}
}

// WithoutHSTS disables HSTS headers, e.g. for plain-HTTP development.
func WithoutHSTS() SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = nil
	}
}

// WithCORS enables CORS for the given origins with default methods and
// headers.
func WithCORS(origins ...string) SecurityHeadersOption {
	return WithCORSConfig(&CORSConfig{AllowedOrigins: origins})
}

// WithCORSConfig enables CORS with a full configuration. Unset lists and
// MaxAge take their defaults.
func WithCORSConfig(config *CORSConfig) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		if config == nil || len(config.AllowedOrigins) == 0 {
			p.CORS = nil
			return
		}
		c := *config
		if c.AllowedMethods == nil {
			c.AllowedMethods = []string{http.MethodPost, http.MethodOptions}
		}
		if c.AllowedHeaders == nil {
			c.AllowedHeaders = []string{"Content-Type"}
		}
		if c.ExposedHeaders == nil {
			c.ExposedHeaders = []string{RequestIDHeader}
		}
		if c.MaxAge == 0 {
			c.MaxAge = 3600
		}
		p.CORS = &c
	}
}

// Process implements endpoint.Processor.
func (p *SecurityHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if hsts := formatHSTS(p.HSTS); hsts != "" {
		h.Set("Strict-Transport-Security", hsts)
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}
	if p.ContentTypeOptions {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}

	allowed := setCORSHeaders(w, r, p.CORS)
	if p.CrossOriginResourcePolicy != "" && !allowed {
		h.Set("Cross-Origin-Resource-Policy", p.CrossOriginResourcePolicy)
	}

	if p.CORS != nil &&
		r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != "" {
		return endpoint.Error(http.StatusNoContent, "", nil)
	}
	return next(w, r)
}

func formatHSTS(config *HSTSConfig) string {
	if config == nil || config.MaxAge <= 0 {
		return ""
	}
	parts := []string{"max-age=" + strconv.Itoa(config.MaxAge)}
	if config.IncludeSubDomains {
		parts = append(parts, "includeSubDomains")
	}
	if config.Preload {
		parts = append(parts, "preload")
	}
	return strings.Join(parts, "; ")
}

// setCORSHeaders writes CORS headers for cross-origin requests and reports
// whether the request's origin was allowed.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, config *CORSConfig) bool {
	origin := r.Header.Get("Origin")
	if config == nil || origin == "" {
		return false
	}

	h := w.Header()
	allowed := false
	for _, o := range config.AllowedOrigins {
		if o == "*" && !config.AllowCredentials {
			// '*' is never combined with credentials.
			h.Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	if config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(config.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
	}
	if r.Method == http.MethodOptions {
		if len(config.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
		}
		if len(config.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
		}
		if config.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}
	}
	return true
}

var _ endpoint.Processor = (*SecurityHeadersProcessor)(nil)
