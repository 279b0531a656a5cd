// Package config loads server settings from the environment and an
// optional .env file.
package config

import (
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config holds the settings of the rpc-auth server.
type Config struct {
	ListenAddr string
	// RPCNode is the URL of the ledger node used for authority lookups.
	RPCNode          string
	Namespace        string
	AddressPrefix    string
	CacheTTL         time.Duration
	CacheMaxMB       int
	SignatureMaxAge  time.Duration
	LedgerTimeout    time.Duration
	BatchConcurrency int
	LogLevel         zapcore.Level
	// LogFile enables rotated file output when set.
	LogFile     string
	CORSOrigins []string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		AddressPrefix:    "STM",
		CacheTTL:         2 * time.Minute,
		CacheMaxMB:       16,
		SignatureMaxAge:  60 * time.Second,
		LedgerTimeout:    10 * time.Second,
		BatchConcurrency: 16,
		LogLevel:         zapcore.InfoLevel,
	}
}

// Load reads files (default ".env") into the environment without
// overriding variables that are already set, then parses the environment.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load env file")
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup parses settings from lookup, starting from Default.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.str("LISTEN_ADDR", &c.ListenAddr)
	p.str("RPC_NODE", &c.RPCNode)
	p.str("RPC_NAMESPACE", &c.Namespace)
	p.str("ADDRESS_PREFIX", &c.AddressPrefix)
	p.duration("AUTH_CACHE_TTL", &c.CacheTTL)
	p.integer("AUTH_CACHE_MAX_MB", &c.CacheMaxMB)
	p.duration("SIGNATURE_MAX_AGE", &c.SignatureMaxAge)
	p.duration("LEDGER_TIMEOUT", &c.LedgerTimeout)
	p.integer("BATCH_CONCURRENCY", &c.BatchConcurrency)
	p.level("LOG_LEVEL", &c.LogLevel)
	p.str("LOG_FILE", &c.LogFile)
	p.list("CORS_ORIGINS", &c.CORSOrigins)

	if p.err != nil {
		return Config{}, p.err
	}
	return c, nil
}

// Validate checks the settings needed to serve authenticated requests.
func (c Config) Validate() error {
	var problems []string
	if c.RPCNode == "" {
		problems = append(problems, "RPC_NODE must be set")
	}
	if c.AddressPrefix == "" {
		problems = append(problems, "ADDRESS_PREFIX must not be empty")
	}
	if c.CacheTTL <= 0 {
		problems = append(problems, "AUTH_CACHE_TTL must be positive")
	}
	if c.CacheMaxMB <= 0 {
		problems = append(problems, "AUTH_CACHE_MAX_MB must be positive")
	}
	if c.SignatureMaxAge <= 0 {
		problems = append(problems, "SIGNATURE_MAX_AGE must be positive")
	}
	if c.LedgerTimeout < 0 {
		problems = append(problems, "LEDGER_TIMEOUT must not be negative")
	}
	if c.BatchConcurrency < 0 {
		problems = append(problems, "BATCH_CONCURRENCY must not be negative")
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// parser records the first malformed variable.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = errors.Wrapf(err, "invalid %s", key)
	}
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return
	}
	*dst = d
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return
	}
	*dst = n
}

func (p *parser) level(key string, dst *zapcore.Level) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	l, err := zapcore.ParseLevel(v)
	if err != nil {
		p.fail(key, err)
		return
	}
	*dst = l
}

func (p *parser) list(key string, dst *[]string) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
