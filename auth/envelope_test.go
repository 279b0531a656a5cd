package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/go-faster/errors"

	"github.com/mnehpets/ledgerrpc/jsonrpc"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func envelopeJSON(account, nonce, params, timestamp string, sigs ...string) string {
	s := `{"account":"` + account + `","nonce":"` + nonce + `","params":"` + params + `","timestamp":"` + timestamp + `","signatures":[`
	for i, sig := range sigs {
		if i > 0 {
			s += ","
		}
		s += `"` + sig + `"`
	}
	return s + "]}"
}

func TestOpenEnvelope(t *testing.T) {
	params := base64.StdEncoding.EncodeToString([]byte(`{"command":"ls"}`))
	ts := testNow.Add(-10 * time.Second).Format(timestampLayout)
	nonce := "0102030405060708"

	env, err := OpenEnvelope("sudo", []byte(envelopeJSON("foo", nonce, params, ts, "aa")), testNow, DefaultMaxSignatureAge)
	if err != nil {
		t.Fatalf("OpenEnvelope: %v", err)
	}
	if env.Account != "foo" || len(env.Signatures) != 1 || env.Signatures[0] != "aa" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	n, _ := hex.DecodeString(nonce)
	if want := Digest(ts, "foo", "sudo", params, n); !bytes.Equal(env.Digest, want) {
		t.Fatal("digest mismatch")
	}
	if v, ok := env.Params.Lookup("command"); !ok || string(v) != `"ls"` {
		t.Fatalf("inner params not decoded: %+v", env.Params)
	}

	// The digest binds the method name.
	other, _ := OpenEnvelope("other", []byte(envelopeJSON("foo", nonce, params, ts, "aa")), testNow, DefaultMaxSignatureAge)
	if bytes.Equal(other.Digest, env.Digest) {
		t.Fatal("digest does not depend on method")
	}
}

func TestOpenEnvelope_Rejections(t *testing.T) {
	params := base64.StdEncoding.EncodeToString([]byte(`["x"]`))
	ts := testNow.Format(timestampLayout)
	nonce := "0102030405060708"

	tests := []struct {
		name string
		raw  string
		want Reason
	}{
		{"absent", ``, ErrMissingAccount},
		{"not an object", `"foo"`, ErrMissingAccount},
		{"no account", `{"foo":"baz"}`, ErrMissingAccount},
		{"account not a string", `{"account":5}`, ErrMissingAccount},
		{"params not base64", envelopeJSON("foo", nonce, "!!", ts), ErrInvalidEncodedParams},
		{"params not json", envelopeJSON("foo", nonce, base64.StdEncoding.EncodeToString([]byte("{nope")), ts), ErrInvalidEncodedParams},
		{"nonce not hex", envelopeJSON("foo", "xyz", params, ts), ErrInvalidNonce},
		{"nonce too short", envelopeJSON("foo", "0102", params, ts), ErrInvalidNonce},
		{"nonce missing", `{"account":"foo","params":"` + params + `","timestamp":"` + ts + `"}`, ErrInvalidNonce},
		{"bad timestamp", envelopeJSON("foo", nonce, params, "yesterday"), ErrInvalidTimestamp},
		{"expired", envelopeJSON("foo", nonce, params, testNow.Add(-61*time.Second).Format(timestampLayout)), ErrSignatureExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenEnvelope("sudo", []byte(tt.raw), testNow, DefaultMaxSignatureAge)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSign_OpensAndVerifies(t *testing.T) {
	key := PrivateKeyFromSeed("foo")
	req := &jsonrpc.Request{
		ID:     jsonrpc.NumberID(1),
		Method: "sudo",
		Params: jsonrpc.PositionalParams([]byte(`"make me a sandwich"`)),
	}
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	signed, err := signAt(req, "foo", testNow, nonce, []*PrivateKey{key})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.ID != req.ID || signed.Method != "sudo" {
		t.Fatalf("envelope lost id or method: %+v", signed)
	}
	raw, ok := signed.Params.Lookup(SignedParam)
	if !ok {
		t.Fatal("no __signed param")
	}

	env, err := OpenEnvelope("sudo", raw, testNow.Add(time.Second), DefaultMaxSignatureAge)
	if err != nil {
		t.Fatalf("OpenEnvelope: %v", err)
	}
	if env.Params.Kind != jsonrpc.ParamsPositional || string(env.Params.Positional[0]) != `"make me a sandwich"` {
		t.Fatalf("inner params mismatch: %+v", env.Params)
	}

	sig, err := ParseSignature(env.Signatures[0])
	if err != nil {
		t.Fatal(err)
	}
	pub, err := sig.Recover(env.Digest, DefaultAddressPrefix)
	if err != nil || pub.String() != key.PublicKey(DefaultAddressPrefix).String() {
		t.Fatalf("signature does not recover signer: %v", err)
	}
}

func TestSign_Errors(t *testing.T) {
	key := PrivateKeyFromSeed("foo")
	if _, err := Sign(&jsonrpc.Request{Method: "sudo"}, "foo", key); err == nil {
		t.Error("expected error signing a request without params")
	}
	if _, err := Sign(&jsonrpc.Request{Method: "sudo", Params: jsonrpc.PositionalParams()}, "foo"); err == nil {
		t.Error("expected error signing without keys")
	}
}
