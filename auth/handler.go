// Package auth adds signed-request authentication to JSON-RPC methods.
//
// A signed call carries a single named param, __signed, holding the account
// name, the base64 JSON of the real params, a nonce, a timestamp and one
// compact secp256k1 signature over the request digest. The signature must
// recover to the account's single posting key as recorded on the ledger:
//
//	ledger, _ := auth.DialLedger(ctx, "https://api.example.com")
//	cache, _ := auth.NewAuthorityCache(ledger)
//	v := auth.NewVerifier(cache)
//
//	auth.RegisterAuthenticated(rpc, "sudo", v, jsonrpc.Typed(
//		func(ctx context.Context, p struct {
//			Command string `json:"command"`
//		}) (string, error) {
//			account, _ := auth.AccountFromContext(ctx)
//			if err := auth.Assert(account == "admin", "Nope"); err != nil {
//				return "", err
//			}
//			return "sudo " + p.Command, nil
//		}))
package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/mnehpets/ledgerrpc/jsonrpc"
)

type accountKey struct{}

// WithAccount returns a context carrying the verified account name.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

// AccountFromContext returns the account that signed the current call.
// It is only set inside methods wrapped by Authenticated.
func AccountFromContext(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(accountKey{}).(string)
	return a, ok
}

// Option configures an authenticated method.
type Option func(*handlerConfig)

type handlerConfig struct {
	maxAge time.Duration
	now    func() time.Time
}

// WithMaxSignatureAge sets how old a signature timestamp may be.
// Default: 60s.
func WithMaxSignatureAge(d time.Duration) Option {
	return func(c *handlerConfig) {
		c.maxAge = d
	}
}

// WithSignatureClock replaces time.Now for timestamp checks.
func WithSignatureClock(now func() time.Time) Option {
	return func(c *handlerConfig) {
		c.now = now
	}
}

// Registrar is the part of a method registry used by RegisterAuthenticated.
// *jsonrpc.Registry and *jsonrpc.JSONRPCEndpoint implement it.
type Registrar interface {
	Register(name string, m jsonrpc.Method)
}

// RegisterAuthenticated registers m under name, requiring every call to be
// signed by the calling account's posting key.
func RegisterAuthenticated(reg Registrar, name string, v *Verifier, m jsonrpc.Method, opts ...Option) {
	reg.Register(name, Authenticated(v, m, opts...))
}

// Authenticated wraps m so that it only runs for signed calls.
//
// The returned method takes the single parameter __signed, by name or as
// the only positional argument. Any other param is rejected as
// unauthorized. The envelope is opened and verified; on success the signing account is bound into the
// context (see AccountFromContext) and m is invoked with the inner params
// resolved against its own parameter names.
//
// Envelope and verification failures are reported with code 401 and the
// message "Unauthorized: <reason>". An *AssertionError returned by m is
// reported with code 400 and its message.
func Authenticated(v *Verifier, m jsonrpc.Method, opts ...Option) jsonrpc.Method {
	cfg := handlerConfig{maxAge: DefaultMaxSignatureAge, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	return jsonrpc.Method{
		Params:    []string{SignedParam},
		RawParams: true,
		Handler: func(ctx context.Context, _ jsonrpc.Args) (any, error) {
			log := jsonrpc.LoggerFromContext(ctx)

			var (
				method string
				params jsonrpc.Params
			)
			if call, ok := jsonrpc.CallFromContext(ctx); ok {
				method = call.Request.Method
				params = call.Request.Params
			}
			raw, err := signedParam(params)
			if err != nil {
				return nil, reject(log, "", err)
			}

			env, err := OpenEnvelope(method, raw, cfg.now(), cfg.maxAge)
			if err != nil {
				return nil, reject(log, "", err)
			}
			account, err := v.Verify(ctx, env)
			if err != nil {
				return nil, reject(log, env.Account, err)
			}

			inner, rerr := jsonrpc.Resolve(env.Params, m.Params)
			if rerr != nil {
				return nil, rerr
			}
			result, err := m.Handler(WithAccount(ctx, account), inner)
			if err != nil {
				return nil, assertionError(err)
			}
			return result, nil
		},
	}
}

// signedParam returns the envelope from {"__signed": ...} or [envelope], nil
// when there is none.
func signedParam(p jsonrpc.Params) (json.RawMessage, error) {
	switch p.Kind {
	case jsonrpc.ParamsNamed:
		raw, ok := p.Lookup(SignedParam)
		if !ok {
			return nil, nil
		}
		for _, np := range p.Named {
			if np.Name != SignedParam {
				return nil, ErrInvalidRequestParams
			}
		}
		return raw, nil
	case jsonrpc.ParamsPositional:
		switch len(p.Positional) {
		case 0:
			return nil, nil
		case 1:
			return p.Positional[0], nil
		}
		return nil, ErrInvalidRequestParams
	}
	return nil, nil
}

func reject(log *zap.Logger, account string, err error) error {
	fields := []zap.Field{zap.String("account", account), zap.Error(err)}
	if errors.Is(err, ErrLedgerUnavailable) {
		log.Warn("rpc auth ledger query failed", fields...)
	} else {
		log.Debug("rpc auth rejected", fields...)
	}
	return unauthorized(err)
}

// assertionError tags an *AssertionError with CodeAssertion. Errors that
// already carry a JSON-RPC code are left alone.
func assertionError(err error) error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return err
	}
	var ae *AssertionError
	if errors.As(err, &ae) {
		return jsonrpc.NewError(CodeAssertion, ae.Message)
	}
	return err
}
