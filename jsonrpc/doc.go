// Package jsonrpc provides a JSON-RPC 2.0 server endpoint integrated with the
// endpoint package's processor chain.
//
// This package implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// and JSON-RPC over HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html).
//
// # Basic Usage
//
// Create an endpoint, register methods, and serve via HTTP:
//
//	e := jsonrpc.NewEndpoint()
//	e.Register("subtract", jsonrpc.Typed(subtract))
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint))
//
// Methods built with Typed take a params struct whose json tags name the
// parameters in declaration order:
//
//	type SubtractParams struct {
//	    Minuend    int `json:"minuend"`
//	    Subtrahend int `json:"subtrahend"`
//	}
//
//	func subtract(ctx context.Context, p SubtractParams) (int, error) {
//	    return p.Minuend - p.Subtrahend, nil
//	}
//
// Both [42, 23] and {"subtrahend": 23, "minuend": 42} resolve to the same
// call. Handlers that take a variable number of arguments use Func with no
// names and read Args directly:
//
//	e.Register("sum", jsonrpc.Func(nil, func(ctx context.Context, args jsonrpc.Args) (any, error) {
//	    total := 0.0
//	    for i := range args {
//	        var n float64
//	        if err := args.Decode(i, &n); err != nil {
//	            return nil, err
//	        }
//	        total += n
//	    }
//	    return total, nil
//	}))
//
// RegisterReceiver registers every suitable exported method of a value. A
// `_` field with a `jsonrpc` tag in the params struct overrides the name:
//
//	type GetParams struct {
//	    _    struct{} `jsonrpc:"get"`
//	    Name string   `json:"name"`
//	}
//
// # Namespaces
//
// WithNamespace prefixes method names:
//
//	e := jsonrpc.NewEndpoint(jsonrpc.WithNamespace("math"))
//	e.Register("add", m) // -> "math.add"
//
// Registering the same qualified name twice panics.
//
// # Error Handling
//
// Return *Error for protocol-level errors; the code, message and data are
// sent as-is:
//
//	return nil, jsonrpc.NewError(12345, "I meant for this to happen").WithData(info)
//
// Any other error becomes an InternalError whose message is
// "Internal error: <err>". A panic becomes a bare "Internal error" and the
// stack is logged.
//
// # Notifications and Batches
//
// Requests without an id never get a response. Requests with "id": null
// get one only on error. Batch items run concurrently (see
// WithBatchConcurrency) and responses keep the order of the batch. When no
// response remains the endpoint replies 204 No Content.
//
// # Call Context
//
// Handlers reach per-call metadata through CallFromContext: the parsed
// request, the HTTP request it arrived on, and a logger tagged with the
// method and id.
//
// # Processor Integration
//
// Processors can be passed to endpoint.Handler for cross-cutting concerns:
//
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint, middleware.NewRequestLogger(log)))
//
// Processor errors return HTTP error responses (not JSON-RPC errors).
package jsonrpc
