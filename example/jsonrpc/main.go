package main

import (
	"context"
	"log"
	"net/http"

	"github.com/mnehpets/ledgerrpc/endpoint"
	"github.com/mnehpets/ledgerrpc/jsonrpc"
)

type MathMethods struct{}

func (m *MathMethods) Mul(ctx context.Context, args struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}) (float64, error) {
	return args.A * args.B, nil
}

func (m *MathMethods) Div(ctx context.Context, args struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}) (float64, error) {
	if args.B == 0 {
		return 0, jsonrpc.NewError(-32000, "division by zero")
	}
	return args.A / args.B, nil
}

type subtractParams struct {
	Minuend    float64 `json:"minuend"`
	Subtrahend float64 `json:"subtrahend"`
}

func main() {
	e := jsonrpc.NewEndpoint()

	// Callable as [42, 23] or {"minuend": 42, "subtrahend": 23}.
	e.Register("subtract", jsonrpc.Typed(func(ctx context.Context, p subtractParams) (float64, error) {
		return p.Minuend - p.Subtrahend, nil
	}))

	// Variadic: positional params only.
	e.Register("sum", jsonrpc.Func(nil, func(ctx context.Context, args jsonrpc.Args) (any, error) {
		total := 0.0
		for i := range args {
			var n float64
			if err := args.Decode(i, &n); err != nil {
				return nil, err
			}
			total += n
		}
		return total, nil
	}))

	// Registers "Mul" and "Div".
	e.RegisterReceiver(&MathMethods{})

	http.HandleFunc("/rpc", endpoint.HandleFunc(e.Endpoint))

	log.Println("Starting server on :8080")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
