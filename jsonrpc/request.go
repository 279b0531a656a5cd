package jsonrpc

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// maxSafeInteger is the largest integer id accepted, 2^53-1.
const maxSafeInteger = 1<<53 - 1

// IDKind distinguishes the forms a request id can take.
type IDKind uint8

const (
	// IDAbsent marks a notification.
	IDAbsent IDKind = iota
	IDNull
	IDString
	IDNumber
)

// ID is a request id: absent, null, a string or a safe integer.
type ID struct {
	kind IDKind
	str  string
	num  int64
}

// NullID is the id used for responses to requests whose id is unknown.
var NullID = ID{kind: IDNull}

func StringID(s string) ID { return ID{kind: IDString, str: s} }

func NumberID(n int64) ID { return ID{kind: IDNumber, num: n} }

func (id ID) Kind() IDKind { return id.kind }

// String renders the id for logs.
func (id ID) String() string {
	switch id.kind {
	case IDString:
		return id.str
	case IDNumber:
		return strconv.FormatInt(id.num, 10)
	case IDNull:
		return "null"
	}
	return ""
}

func (id ID) encode(e *jx.Encoder) {
	switch id.kind {
	case IDString:
		e.Str(id.str)
	case IDNumber:
		e.Int64(id.num)
	default:
		e.Null()
	}
}

// MarshalJSON encodes absent and null ids as null.
func (id ID) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	id.encode(&e)
	return e.Bytes(), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	v, ok := parseID(b)
	if !ok {
		return errors.New("invalid id")
	}
	*id = v
	return nil
}

func parseID(raw []byte) (ID, bool) {
	if raw == nil {
		return ID{}, true
	}
	d := jx.DecodeBytes(raw)
	switch d.Next() {
	case jx.Null:
		return NullID, true
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return ID{}, false
		}
		return StringID(s), true
	case jx.Number:
		f, err := d.Float64()
		if err != nil || math.Trunc(f) != f || math.Abs(f) > maxSafeInteger {
			return ID{}, false
		}
		return NumberID(int64(f)), true
	}
	return ID{}, false
}

// ParamsKind distinguishes the shapes a params member can take.
type ParamsKind uint8

const (
	ParamsAbsent ParamsKind = iota
	ParamsPositional
	ParamsNamed
	// ParamsInvalid is a params member that is neither array nor object.
	ParamsInvalid
)

// NamedParam is one member of a by-name params object.
type NamedParam struct {
	Name  string
	Value json.RawMessage
}

// Params holds request parameters. Named params keep document order.
type Params struct {
	Kind       ParamsKind
	Positional []json.RawMessage
	Named      []NamedParam
	// Raw is the params member as received, if any.
	Raw json.RawMessage
}

// PositionalParams builds by-position params from already-encoded values.
func PositionalParams(values ...json.RawMessage) Params {
	return Params{Kind: ParamsPositional, Positional: values}
}

// ParseParams decodes a params value. JSON null and empty input are
// treated as absent.
func ParseParams(raw []byte) (Params, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Params{}, nil
	}
	d := jx.DecodeBytes(raw)
	p := Params{Raw: bytes.Clone(raw)}
	switch d.Next() {
	case jx.Null:
		return Params{}, nil
	case jx.Array:
		p.Kind = ParamsPositional
		p.Positional = []json.RawMessage{}
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := d.Raw()
			if err != nil {
				return err
			}
			p.Positional = append(p.Positional, json.RawMessage(bytes.Clone(v)))
			return nil
		})
		if err != nil {
			return Params{}, errors.Wrap(err, "decode params")
		}
	case jx.Object:
		p.Kind = ParamsNamed
		p.Named = []NamedParam{}
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			v, err := d.Raw()
			if err != nil {
				return err
			}
			p.Named = append(p.Named, NamedParam{Name: string(key), Value: json.RawMessage(bytes.Clone(v))})
			return nil
		})
		if err != nil {
			return Params{}, errors.Wrap(err, "decode params")
		}
	default:
		if err := d.Skip(); err != nil {
			return Params{}, errors.Wrap(err, "decode params")
		}
		p.Kind = ParamsInvalid
	}
	return p, nil
}

// Lookup returns the value of a named param.
func (p Params) Lookup(name string) (json.RawMessage, bool) {
	var (
		v     json.RawMessage
		found bool
	)
	// Last occurrence wins, as with encoding/json.
	for _, np := range p.Named {
		if np.Name == name {
			v, found = np.Value, true
		}
	}
	return v, found
}

// MarshalJSON encodes the params, returning null when absent.
func (p Params) MarshalJSON() ([]byte, error) {
	if p.Kind == ParamsAbsent {
		return []byte("null"), nil
	}
	if p.Raw != nil {
		return p.Raw, nil
	}
	var e jx.Encoder
	switch p.Kind {
	case ParamsPositional:
		e.ArrStart()
		for _, v := range p.Positional {
			e.Raw(v)
		}
		e.ArrEnd()
	case ParamsNamed:
		e.ObjStart()
		for _, np := range p.Named {
			e.FieldStart(np.Name)
			e.Raw(np.Value)
		}
		e.ObjEnd()
	default:
		return nil, errors.New("params: no raw value")
	}
	return e.Bytes(), nil
}

// Request is a validated JSON-RPC request. A request with an absent id is
// a notification.
type Request struct {
	Version string
	ID      ID
	Method  string
	Params  Params
}

func (r *Request) IsNotification() bool {
	return r.ID.kind == IDAbsent
}

// MarshalJSON encodes the request, omitting id for notifications and
// params when absent.
func (r *Request) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("jsonrpc")
	e.Str("2.0")
	if r.ID.kind != IDAbsent {
		e.FieldStart("id")
		r.ID.encode(&e)
	}
	e.FieldStart("method")
	e.Str(r.Method)
	if r.Params.Kind != ParamsAbsent {
		b, err := r.Params.MarshalJSON()
		if err != nil {
			return nil, err
		}
		e.FieldStart("params")
		e.Raw(b)
	}
	e.ObjEnd()
	return e.Bytes(), nil
}

// ParseRequest validates a single request envelope. Checks run in order:
// version, id, method. A value that is not an object fails the version
// check since it cannot carry one.
func ParseRequest(raw []byte) (*Request, *Error) {
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return nil, codeError(CodeInvalidRequest, "invalid rpc version")
	}

	var version, id, method, params jx.Raw
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "jsonrpc":
			version, err = d.Raw()
		case "id":
			id, err = d.Raw()
		case "method":
			method, err = d.Raw()
		case "params":
			params, err = d.Raw()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, Wrap(CodeParseError, err, CodeText(CodeParseError))
	}

	if s, ok := rawString(version); !ok || s != "2.0" {
		return nil, codeError(CodeInvalidRequest, "invalid rpc version")
	}
	req := &Request{Version: "2.0"}

	var ok bool
	if req.ID, ok = parseID(id); !ok {
		return nil, codeError(CodeInvalidRequest, "invalid id")
	}
	if req.Method, ok = rawString(method); !ok {
		return nil, codeError(CodeInvalidRequest, "invalid method")
	}
	if req.Params, err = ParseParams(params); err != nil {
		return nil, Wrap(CodeParseError, err, CodeText(CodeParseError))
	}
	return req, nil
}

func rawString(raw []byte) (string, bool) {
	if raw == nil {
		return "", false
	}
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.String {
		return "", false
	}
	s, err := d.Str()
	return s, err == nil
}
