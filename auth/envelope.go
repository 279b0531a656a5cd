package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/go-faster/jx"

	"github.com/mnehpets/ledgerrpc/jsonrpc"
)

// SignedParam is the single parameter carried by signed requests.
const SignedParam = "__signed"

// DefaultMaxSignatureAge is how old a signed request's timestamp may be.
const DefaultMaxSignatureAge = 60 * time.Second

const nonceSize = 8

// signingConstant is mixed into every request digest so a signature over a
// request can never be replayed as a ledger transaction signature.
var signingConstant = mustHex("3b3b081e46ea808d5a96b08c4bc5003f5e15767090f344faab531ec57565136b")

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// SignedEnvelope is the verified-to-be-well-formed content of a signed
// request. It is built once per call and discarded after verification.
type SignedEnvelope struct {
	Account    string
	Signatures []string
	// Digest is the 32-byte message the signatures cover.
	Digest []byte
	// Params are the decoded inner parameters.
	Params jsonrpc.Params
}

// signedPayload is the wire form of the __signed member.
type signedPayload struct {
	Account    string
	HasAccount bool
	Nonce      string
	Params     string
	Signatures []string
	Timestamp  string
}

// Digest computes the message signed by a request:
//
//	sha256(K || sha256(timestamp || account || method || params) || nonce)
//
// where params is the base64 text of the encoded parameters.
func Digest(timestamp, account, method, params string, nonce []byte) []byte {
	inner := sha256.New()
	inner.Write([]byte(timestamp))
	inner.Write([]byte(account))
	inner.Write([]byte(method))
	inner.Write([]byte(params))

	outer := sha256.New()
	outer.Write(signingConstant)
	outer.Write(inner.Sum(nil))
	outer.Write(nonce)
	return outer.Sum(nil)
}

// OpenEnvelope decodes the __signed member of a request for method. now
// and maxAge bound the accepted timestamp.
//
// A missing or non-object envelope, or one without an account, is
// ErrMissingAccount. Other malformed members map to their own reasons.
func OpenEnvelope(method string, raw []byte, now time.Time, maxAge time.Duration) (*SignedEnvelope, error) {
	p, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	if !p.HasAccount {
		return nil, ErrMissingAccount
	}

	encoded, err := base64.StdEncoding.DecodeString(p.Params)
	if err != nil || jx.DecodeBytes(encoded).Validate() != nil {
		return nil, ErrInvalidEncodedParams
	}
	params, err := jsonrpc.ParseParams(encoded)
	if err != nil {
		return nil, ErrInvalidEncodedParams
	}

	nonce, err := hex.DecodeString(p.Nonce)
	if err != nil || len(nonce) != nonceSize {
		return nil, ErrInvalidNonce
	}

	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return nil, ErrInvalidTimestamp
	}
	if now.Sub(ts) > maxAge {
		return nil, ErrSignatureExpired
	}

	return &SignedEnvelope{
		Account:    p.Account,
		Signatures: p.Signatures,
		Digest:     Digest(p.Timestamp, p.Account, method, p.Params, nonce),
		Params:     params,
	}, nil
}

// decodePayload reads the envelope members. Members of the wrong type are
// left empty so the field checks report them.
func decodePayload(raw []byte) (*signedPayload, error) {
	d := jx.DecodeBytes(raw)
	if len(raw) == 0 || d.Next() != jx.Object {
		return nil, ErrMissingAccount
	}
	p := &signedPayload{}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "account":
			p.Account, p.HasAccount, err = readString(d)
		case "nonce":
			p.Nonce, _, err = readString(d)
		case "params":
			p.Params, _, err = readString(d)
		case "timestamp":
			p.Timestamp, _, err = readString(d)
		case "signatures":
			if d.Next() != jx.Array {
				return d.Skip()
			}
			p.Signatures = []string{}
			err = d.Arr(func(d *jx.Decoder) error {
				s, _, err := readString(d)
				p.Signatures = append(p.Signatures, s)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, ErrMissingAccount
	}
	return p, nil
}

func readString(d *jx.Decoder) (string, bool, error) {
	if d.Next() != jx.String {
		return "", false, d.Skip()
	}
	s, err := d.Str()
	return s, err == nil, err
}
