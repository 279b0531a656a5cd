package auth

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a fetched authority is trusted.
const DefaultCacheTTL = 2 * time.Minute

// DefaultCacheSizeMB bounds the memory held by cached authorities.
const DefaultCacheSizeMB = 16

// Store sizing for single-key authorities, which encode to well under
// cacheEntrySize bytes.
const (
	cacheShards        = 64
	cacheEntriesWindow = 1024
	cacheEntrySize     = 256
)

// cacheEntry is the stored form of a fetched authority.
type cacheEntry struct {
	Authority Authority `cbor:"1,keyasint"`
	FetchedAt time.Time `cbor:"2,keyasint"`
}

var cacheEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// AuthorityCache fronts a Ledger with a TTL cache keyed by account name.
//
// Entries are refreshed lazily on read once older than the TTL. Concurrent
// misses for the same account may each query the ledger; the results
// converge on the same ledger state.
type AuthorityCache struct {
	ledger Ledger
	store  *bigcache.BigCache
	ttl    time.Duration
	sizeMB int
	now    func() time.Time
	logger *zap.Logger
}

// CacheOption configures an AuthorityCache.
type CacheOption func(*AuthorityCache)

// WithTTL sets how long an entry is served before being refetched.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *AuthorityCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxCacheSize caps the store at mb megabytes. The oldest entries are
// evicted first once the cap is reached.
func WithMaxCacheSize(mb int) CacheOption {
	return func(c *AuthorityCache) {
		if mb > 0 {
			c.sizeMB = mb
		}
	}
}

// WithClock replaces time.Now for TTL checks.
func WithClock(now func() time.Time) CacheOption {
	return func(c *AuthorityCache) {
		c.now = now
	}
}

// WithCacheLogger sets the logger for store failures.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *AuthorityCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewAuthorityCache creates a cache over ledger.
func NewAuthorityCache(ledger Ledger, opts ...CacheOption) (*AuthorityCache, error) {
	c := &AuthorityCache{
		ledger: ledger,
		ttl:    DefaultCacheTTL,
		sizeMB: DefaultCacheSizeMB,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Staleness is decided against FetchedAt; the store's own life window
	// only reclaims memory.
	config := bigcache.DefaultConfig(c.ttl)
	config.Shards = cacheShards
	config.MaxEntriesInWindow = cacheEntriesWindow
	config.MaxEntrySize = cacheEntrySize
	config.HardMaxCacheSize = c.sizeMB
	config.CleanWindow = 0
	config.Verbose = false
	store, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, errors.Wrap(err, "create authority store")
	}
	c.store = store
	return c, nil
}

// Authority returns the posting authority of account, querying the ledger
// when no fresh entry is cached.
func (c *AuthorityCache) Authority(ctx context.Context, account string) (*Authority, error) {
	if a, ok := c.lookup(account); ok {
		return a, nil
	}

	a, err := c.ledger.PostingAuthority(ctx, account)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, ledgerError(err)
	}

	b, err := cacheEncMode.Marshal(cacheEntry{Authority: *a, FetchedAt: c.now()})
	if err == nil {
		err = c.store.Set(account, b)
	}
	if err != nil {
		c.logger.Warn("authority cache store failed", zap.String("account", account), zap.Error(err))
	}
	return a, nil
}

func (c *AuthorityCache) lookup(account string) (*Authority, bool) {
	b, err := c.store.Get(account)
	if err != nil {
		return nil, false
	}
	var e cacheEntry
	if err := cbor.Unmarshal(b, &e); err != nil {
		c.logger.Warn("authority cache entry corrupt", zap.String("account", account), zap.Error(err))
		return nil, false
	}
	if c.now().Sub(e.FetchedAt) >= c.ttl {
		return nil, false
	}
	return &e.Authority, true
}

// Close releases the store.
func (c *AuthorityCache) Close() error {
	return c.store.Close()
}
