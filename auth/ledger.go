package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-faster/errors"
)

// Authority is an account's posting authority as recorded on the ledger.
type Authority struct {
	WeightThreshold uint32        `json:"weight_threshold" cbor:"1,keyasint"`
	AccountAuths    []AccountAuth `json:"account_auths" cbor:"2,keyasint,omitempty"`
	KeyAuths        []KeyAuth     `json:"key_auths" cbor:"3,keyasint,omitempty"`
}

// KeyAuth is a weighted public key. On the wire it is ["STM…", weight].
type KeyAuth struct {
	Key    string `cbor:"1,keyasint"`
	Weight uint32 `cbor:"2,keyasint"`
}

func (k *KeyAuth) UnmarshalJSON(b []byte) error {
	return unmarshalPair(b, &k.Key, &k.Weight)
}

func (k KeyAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{k.Key, k.Weight})
}

// AccountAuth is a weighted delegation to another account. On the wire it
// is ["account", weight].
type AccountAuth struct {
	Account string `cbor:"1,keyasint"`
	Weight  uint32 `cbor:"2,keyasint"`
}

func (a *AccountAuth) UnmarshalJSON(b []byte) error {
	return unmarshalPair(b, &a.Account, &a.Weight)
}

func (a AccountAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{a.Account, a.Weight})
}

func unmarshalPair(b []byte, name *string, weight *uint32) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.Errorf("authority entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], name); err != nil {
		return errors.Wrap(err, "authority entry name")
	}
	if err := json.Unmarshal(pair[1], weight); err != nil {
		return errors.Wrap(err, "authority entry weight")
	}
	return nil
}

// Ledger looks up an account's posting authority. Implementations return
// ErrAccountNotFound when the account does not exist.
type Ledger interface {
	PostingAuthority(ctx context.Context, account string) (*Authority, error)
}

// LedgerFunc adapts a function to Ledger.
type LedgerFunc func(ctx context.Context, account string) (*Authority, error)

func (f LedgerFunc) PostingAuthority(ctx context.Context, account string) (*Authority, error) {
	return f(ctx, account)
}

// NodeLedger queries a ledger node over JSON-RPC.
type NodeLedger struct {
	client  *rpc.Client
	timeout time.Duration
}

// LedgerOption configures a NodeLedger.
type LedgerOption func(*ledgerConfig)

type ledgerConfig struct {
	httpClient *http.Client
	timeout    time.Duration
}

// WithHTTPClient sets the HTTP client used to reach the node.
func WithHTTPClient(c *http.Client) LedgerOption {
	return func(cfg *ledgerConfig) {
		cfg.httpClient = c
	}
}

// WithLedgerTimeout bounds each authority query. Zero means no bound
// beyond the caller's context.
func WithLedgerTimeout(d time.Duration) LedgerOption {
	return func(cfg *ledgerConfig) {
		cfg.timeout = d
	}
}

// DialLedger connects to the node at url. For HTTP urls no connection is
// made until the first query.
func DialLedger(ctx context.Context, url string, opts ...LedgerOption) (*NodeLedger, error) {
	cfg := ledgerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	var clientOpts []rpc.ClientOption
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, rpc.WithHTTPClient(cfg.httpClient))
	}
	client, err := rpc.DialOptions(ctx, url, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "dial ledger")
	}
	return &NodeLedger{client: client, timeout: cfg.timeout}, nil
}

type ledgerAccount struct {
	Name    string    `json:"name"`
	Posting Authority `json:"posting"`
}

// PostingAuthority implements Ledger using condenser_api.get_accounts.
func (l *NodeLedger) PostingAuthority(ctx context.Context, account string) (*Authority, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	var accounts []*ledgerAccount
	if err := l.client.CallContext(ctx, &accounts, "condenser_api.get_accounts", []string{account}); err != nil {
		return nil, errors.Wrap(err, "get_accounts")
	}
	if len(accounts) == 0 || accounts[0] == nil {
		return nil, ErrAccountNotFound
	}
	return &accounts[0].Posting, nil
}

// Close releases the underlying client.
func (l *NodeLedger) Close() {
	l.client.Close()
}
