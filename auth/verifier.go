package auth

import (
	"context"
	"crypto/sha256"
)

// AuthorityResolver supplies account authorities to a Verifier.
// *AuthorityCache implements it.
type AuthorityResolver interface {
	Authority(ctx context.Context, account string) (*Authority, error)
}

// Verifier checks that a signed envelope was produced by the single
// posting key of its account.
type Verifier struct {
	resolver AuthorityResolver
	prefix   string
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithAddressPrefix sets the public key prefix of the ledger network.
func WithAddressPrefix(prefix string) VerifierOption {
	return func(v *Verifier) {
		v.prefix = prefix
	}
}

// NewVerifier creates a Verifier resolving authorities through resolver.
func NewVerifier(resolver AuthorityResolver, opts ...VerifierOption) *Verifier {
	v := &Verifier{resolver: resolver, prefix: DefaultAddressPrefix}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AddressPrefix returns the public key prefix the verifier expects.
func (v *Verifier) AddressPrefix() string { return v.prefix }

// Verify returns the account that signed env. Failures are Reason values,
// possibly wrapping a ledger error; check them with errors.Is.
//
// Only authorities with exactly one key, no account delegations and a key
// weight meeting the threshold are accepted. Anything else is rejected
// rather than partially evaluated.
func (v *Verifier) Verify(ctx context.Context, env *SignedEnvelope) (string, error) {
	if len(env.Digest) != sha256.Size {
		return "", ErrInvalidMessage
	}
	if n := len(env.Account); n < 3 || n > 16 {
		return "", ErrInvalidAccountName
	}
	if len(env.Signatures) != 1 {
		return "", ErrMultisigUnsupported
	}

	authority, err := v.resolver.Authority(ctx, env.Account)
	if err != nil {
		return "", err
	}
	if len(authority.KeyAuths) != 1 || len(authority.AccountAuths) != 0 {
		return "", ErrUnsupportedAuthority
	}
	keyAuth := authority.KeyAuths[0]
	if keyAuth.Weight < authority.WeightThreshold {
		return "", ErrKeyBelowThreshold
	}

	key, err := ParsePublicKey(keyAuth.Key, v.prefix)
	if err != nil {
		return "", ErrUnsupportedAuthority
	}
	sig, err := ParseSignature(env.Signatures[0])
	if err != nil {
		return "", ErrInvalidSignature
	}
	signer, err := sig.Recover(env.Digest, v.prefix)
	if err != nil || signer.String() != key.String() {
		return "", ErrInvalidSignature
	}
	return env.Account, nil
}
