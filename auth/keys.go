package auth

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/go-faster/errors"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // the ledger's key checksum is ripemd160
)

// DefaultAddressPrefix is the public key prefix of the main ledger network.
const DefaultAddressPrefix = "STM"

const (
	wifVersion    = 0x80
	signatureSize = 65
)

// PublicKey is a compressed secp256k1 public key in the ledger's text form:
// prefix + base58(key || ripemd160(key)[:4]).
type PublicKey struct {
	key    *secp256k1.PublicKey
	prefix string
}

// ParsePublicKey parses the text form of a public key with the given
// prefix.
func ParsePublicKey(s, prefix string) (*PublicKey, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, errors.Errorf("public key: missing prefix %q", prefix)
	}
	raw, err := base58.Decode(s[len(prefix):])
	if err != nil {
		return nil, errors.Wrap(err, "public key")
	}
	if len(raw) != secp256k1.PubKeyBytesLenCompressed+4 {
		return nil, errors.Errorf("public key: invalid length %d", len(raw))
	}
	key, sum := raw[:secp256k1.PubKeyBytesLenCompressed], raw[secp256k1.PubKeyBytesLenCompressed:]
	if !bytes.Equal(keyChecksum(key), sum) {
		return nil, errors.New("public key: checksum mismatch")
	}
	pub, err := secp256k1.ParsePubKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "public key")
	}
	return &PublicKey{key: pub, prefix: prefix}, nil
}

// String returns the text form of the key.
func (k *PublicKey) String() string {
	raw := k.key.SerializeCompressed()
	return k.prefix + base58.Encode(append(raw, keyChecksum(raw)...))
}

func keyChecksum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)[:4]
}

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PrivateKeyFromSeed derives a key as sha256(seed). Used for tests and
// for keys derived from account passwords.
func PrivateKeyFromSeed(seed string) *PrivateKey {
	sum := sha256.Sum256([]byte(seed))
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(sum[:])}
}

// ParseWIF parses a key in wallet import format.
func ParseWIF(s string) (*PrivateKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, errors.Wrap(err, "wif")
	}
	if len(raw) != 1+secp256k1.PrivKeyBytesLen+4 {
		return nil, errors.Errorf("wif: invalid length %d", len(raw))
	}
	payload, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if payload[0] != wifVersion {
		return nil, errors.Errorf("wif: invalid version byte 0x%02x", payload[0])
	}
	if !bytes.Equal(doubleSHA256(payload)[:4], sum) {
		return nil, errors.New("wif: checksum mismatch")
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(payload[1:])}, nil
}

// WIF returns the key in wallet import format.
func (k *PrivateKey) WIF() string {
	payload := append([]byte{wifVersion}, k.key.Serialize()...)
	return base58.Encode(append(payload, doubleSHA256(payload)[:4]...))
}

// PublicKey returns the public half of the key, rendered with prefix.
func (k *PrivateKey) PublicKey(prefix string) *PublicKey {
	return &PublicKey{key: k.key.PubKey(), prefix: prefix}
}

// Sign produces a compact recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) Signature {
	var sig Signature
	copy(sig[:], ecdsa.SignCompact(k.key, digest, true))
	return sig
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Signature is a 65-byte compact recoverable signature: a recovery header
// byte followed by R and S.
type Signature [signatureSize]byte

// ParseSignature decodes the hex form of a compact signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := hex.DecodeString(s)
	if err != nil {
		return sig, errors.Wrap(err, "signature")
	}
	if len(raw) != signatureSize {
		return sig, errors.Errorf("signature: invalid length %d", len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Recover returns the public key that produced s over digest.
func (s Signature) Recover(digest []byte, prefix string) (*PublicKey, error) {
	pub, _, err := ecdsa.RecoverCompact(s[:], digest)
	if err != nil {
		return nil, errors.Wrap(err, "recover")
	}
	return &PublicKey{key: pub, prefix: prefix}, nil
}
