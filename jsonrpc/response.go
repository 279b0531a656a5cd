package jsonrpc

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Response is the outcome of one request. Exactly one of Result and Error
// is serialised; Result is written as null when a handler returns nil.
type Response struct {
	ID     ID
	Result any
	Error  *Error

	// Request is the parsed request, nil when the envelope was invalid.
	Request *Request
	// Elapsed is the time spent in the handler.
	Elapsed time.Duration
}

// suppressed reports whether the response must not be written. Requests
// without an id never get output; requests with a null id only on error.
func (r *Response) suppressed() bool {
	if r.Request == nil {
		return false
	}
	switch r.Request.ID.kind {
	case IDAbsent:
		return true
	case IDNull:
		return r.Error == nil
	}
	return false
}

// settle encodes the result, or the error data, so that a value which
// cannot be serialised turns into an InternalError for this response only.
func (r *Response) settle() {
	if r.Error != nil {
		if r.Error.Data == nil {
			return
		}
		b, err := json.Marshal(r.Error.Data)
		if err != nil {
			r.Error = Wrap(CodeInternalError, errors.Wrap(err, "encode error data"), CodeText(CodeInternalError))
			return
		}
		r.Error = r.Error.WithData(json.RawMessage(b))
		return
	}
	b, err := json.Marshal(r.Result)
	if err != nil {
		r.Result = nil
		r.Error = Wrap(CodeInternalError, errors.Wrap(err, "encode result"), CodeText(CodeInternalError))
		return
	}
	r.Result = json.RawMessage(b)
}

func (r *Response) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("jsonrpc")
	e.Str("2.0")
	e.FieldStart("id")
	r.ID.encode(&e)
	if r.Error != nil {
		b, err := json.Marshal(r.Error)
		if err != nil {
			return nil, errors.Wrap(err, "encode error")
		}
		e.FieldStart("error")
		e.Raw(b)
	} else {
		b, err := json.Marshal(r.Result)
		if err != nil {
			return nil, errors.Wrap(err, "encode result")
		}
		e.FieldStart("result")
		e.Raw(b)
	}
	e.ObjEnd()
	return e.Bytes(), nil
}

// UnmarshalJSON decodes a response as sent by a server. Result is left as
// a json.RawMessage.
func (r *Response) UnmarshalJSON(b []byte) error {
	var wire struct {
		ID     ID              `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*r = Response{ID: wire.ID, Error: wire.Error}
	if wire.Error == nil {
		r.Result = wire.Result
	}
	return nil
}
