package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantErr    string
		wantKind   IDKind
		wantID     string
		wantParams ParamsKind
	}{
		{name: "string id", raw: `{"jsonrpc":"2.0","method":"m","id":"abc"}`, wantKind: IDString, wantID: "abc"},
		{name: "number id", raw: `{"jsonrpc":"2.0","method":"m","id":42}`, wantKind: IDNumber, wantID: "42"},
		{name: "exponent id", raw: `{"jsonrpc":"2.0","method":"m","id":1e3}`, wantKind: IDNumber, wantID: "1000"},
		{name: "null id", raw: `{"jsonrpc":"2.0","method":"m","id":null}`, wantKind: IDNull, wantID: "null"},
		{name: "notification", raw: `{"jsonrpc":"2.0","method":"m"}`, wantKind: IDAbsent},
		{name: "positional", raw: `{"jsonrpc":"2.0","method":"m","params":[1],"id":1}`, wantKind: IDNumber, wantID: "1", wantParams: ParamsPositional},
		{name: "named", raw: `{"jsonrpc":"2.0","method":"m","params":{"a":1},"id":1}`, wantKind: IDNumber, wantID: "1", wantParams: ParamsNamed},
		{name: "scalar params", raw: `{"jsonrpc":"2.0","method":"m","params":3,"id":1}`, wantKind: IDNumber, wantID: "1", wantParams: ParamsInvalid},
		{name: "unknown members ignored", raw: `{"jsonrpc":"2.0","method":"m","extra":{"x":[1]}}`, wantKind: IDAbsent},
		{name: "not an object", raw: `[1]`, wantErr: "Invalid Request: invalid rpc version"},
		{name: "missing version", raw: `{"method":"m","id":1}`, wantErr: "Invalid Request: invalid rpc version"},
		{name: "numeric version", raw: `{"jsonrpc":2.0,"method":"m","id":1}`, wantErr: "Invalid Request: invalid rpc version"},
		{name: "bool id", raw: `{"jsonrpc":"2.0","method":"m","id":true}`, wantErr: "Invalid Request: invalid id"},
		{name: "object id", raw: `{"jsonrpc":"2.0","method":"m","id":{}}`, wantErr: "Invalid Request: invalid id"},
		{name: "unsafe integer id", raw: `{"jsonrpc":"2.0","method":"m","id":9007199254740993}`, wantErr: "Invalid Request: invalid id"},
		{name: "missing method", raw: `{"jsonrpc":"2.0","id":1}`, wantErr: "Invalid Request: invalid method"},
		{name: "version checked before id", raw: `{"jsonrpc":"1.0","id":true}`, wantErr: "Invalid Request: invalid rpc version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error %q", tt.wantErr)
				}
				if err.Message != tt.wantErr || err.Code != CodeInvalidRequest {
					t.Fatalf("got %d %q, want %q", err.Code, err.Message, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.ID.Kind() != tt.wantKind || req.ID.String() != tt.wantID {
				t.Errorf("id: got %v %q", req.ID.Kind(), req.ID.String())
			}
			if req.Params.Kind != tt.wantParams {
				t.Errorf("params kind: got %v, want %v", req.Params.Kind, tt.wantParams)
			}
			if req.IsNotification() != (tt.wantKind == IDAbsent) {
				t.Errorf("IsNotification mismatch")
			}
		})
	}
}

func TestParseParams_NullIsAbsent(t *testing.T) {
	for _, raw := range []string{"", "null", "  null "} {
		p, err := ParseParams([]byte(raw))
		if err != nil || p.Kind != ParamsAbsent {
			t.Fatalf("%q: got kind %v err %v", raw, p.Kind, err)
		}
	}
}

func TestParams_LookupLastWins(t *testing.T) {
	p, err := ParseParams([]byte(`{"a":1,"b":2,"a":3}`))
	if err != nil {
		t.Fatal(err)
	}
	v, ok := p.Lookup("a")
	if !ok || string(v) != "3" {
		t.Fatalf("got %s %v, want 3", v, ok)
	}
	if _, ok := p.Lookup("c"); ok {
		t.Fatal("expected c to be missing")
	}
}

func TestRequest_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "call",
			req:  Request{ID: NumberID(1), Method: "sum", Params: PositionalParams(json.RawMessage("1"), json.RawMessage("2"))},
			want: `{"jsonrpc":"2.0","id":1,"method":"sum","params":[1,2]}`,
		},
		{
			name: "notification without params",
			req:  Request{Method: "ping"},
			want: `{"jsonrpc":"2.0","method":"ping"}`,
		},
		{
			name: "null id",
			req:  Request{ID: NullID, Method: "ping"},
			want: `{"jsonrpc":"2.0","id":null,"method":"ping"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(&tt.req)
			if err != nil {
				t.Fatal(err)
			}
			assertJSON(t, b, tt.want)
		})
	}
}

func TestResponse_UnmarshalJSON(t *testing.T) {
	var resp Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"7","error":{"code":401,"message":"Unauthorized: Invalid signature"}}`), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != StringID("7") {
		t.Errorf("id: got %v", resp.ID)
	}
	if resp.Error == nil || resp.Error.Code != 401 || resp.Result != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestResolve(t *testing.T) {
	names := []string{"a", "b"}

	named, _ := ParseParams([]byte(`{"b":2}`))
	args, err := Resolve(named, names)
	if err != nil {
		t.Fatal(err)
	}
	if args.Len() != 2 || args.Has(0) || !args.Has(1) {
		t.Fatalf("unexpected args %q", args)
	}

	var a = 99
	if err := args.Decode(0, &a); err != nil || a != 99 {
		t.Fatalf("missing arg should leave target untouched, got %d %v", a, err)
	}

	bad, _ := ParseParams([]byte(`{"c":1}`))
	if _, err := Resolve(bad, names); err == nil || err.Message != "Invalid params: unknown param: c" {
		t.Fatalf("got %v", err)
	}

	str, _ := ParseParams([]byte(`"x"`))
	if _, err := Resolve(str, names); err == nil || err.Code != CodeInvalidParams {
		t.Fatalf("got %v", err)
	}

	pos, _ := ParseParams([]byte(`[1,2,3]`))
	if args, err := Resolve(pos, nil); err != nil || args.Len() != 3 {
		t.Fatalf("positional params should pass through, got %v %v", args, err)
	}
}

func TestArgs_DecodeError(t *testing.T) {
	args := Args{json.RawMessage(`"x"`)}
	var n int
	err := args.Decode(0, &n)
	rpcErr := AsError(err)
	if rpcErr.Code != CodeInvalidParams {
		t.Fatalf("got %v", err)
	}
}
