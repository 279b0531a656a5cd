package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/mnehpets/ledgerrpc/jsonrpc"
)

// timestampLayout matches the millisecond UTC timestamps of the reference
// clients.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Sign returns a copy of req whose params are replaced by a __signed
// envelope over the original params, signed by keys on behalf of account.
// req must carry params.
func Sign(req *jsonrpc.Request, account string, keys ...*PrivateKey) (*jsonrpc.Request, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	return signAt(req, account, time.Now(), nonce, keys)
}

func signAt(req *jsonrpc.Request, account string, now time.Time, nonce []byte, keys []*PrivateKey) (*jsonrpc.Request, error) {
	if req.Params.Kind == jsonrpc.ParamsAbsent {
		return nil, errors.New("unable to sign a request without params")
	}
	if len(keys) == 0 {
		return nil, errors.New("no signing keys")
	}
	raw, err := req.Params.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode params")
	}

	params := base64.StdEncoding.EncodeToString(raw)
	timestamp := now.UTC().Format(timestampLayout)
	digest := Digest(timestamp, account, req.Method, params, nonce)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart(SignedParam)
	e.ObjStart()
	e.FieldStart("account")
	e.Str(account)
	e.FieldStart("nonce")
	e.Str(hex.EncodeToString(nonce))
	e.FieldStart("params")
	e.Str(params)
	e.FieldStart("signatures")
	e.ArrStart()
	for _, k := range keys {
		e.Str(k.Sign(digest).String())
	}
	e.ArrEnd()
	e.FieldStart("timestamp")
	e.Str(timestamp)
	e.ObjEnd()
	e.ObjEnd()

	signed, err := jsonrpc.ParseParams(e.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	return &jsonrpc.Request{
		Version: "2.0",
		ID:      req.ID,
		Method:  req.Method,
		Params:  signed,
	}, nil
}
