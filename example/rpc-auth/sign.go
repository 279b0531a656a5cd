package main

import (
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/mnehpets/ledgerrpc/auth"
	"github.com/mnehpets/ledgerrpc/jsonrpc"
)

var signFlags struct {
	account string
	wif     string
	seed    string
	params  string
	id      int64
}

var signCmd = &cobra.Command{
	Use:   "sign METHOD [ARG...]",
	Short: "Print a signed JSON-RPC request",
	Long: `Sign a JSON-RPC request on behalf of an account and print it.

Each ARG is a JSON value passed by position. --params gives the params
as a single JSON object or array instead.

Example:
  rpc-auth sign sudo --account foo --seed foo --params '{"command":"ls"}' |
    curl -s -H 'Content-Type: application/json' --data-binary @- localhost:8080
  rpc-auth sign sudo --account foo --seed foo '"ls"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := signingKey()
		if err != nil {
			return err
		}
		params, err := signParams(args[1:], cmd.Flags().Changed("params"))
		if err != nil {
			return err
		}
		req := &jsonrpc.Request{
			Version: "2.0",
			ID:      jsonrpc.NumberID(signFlags.id),
			Method:  args[0],
			Params:  params,
		}
		signed, err := auth.Sign(req, signFlags.account, key)
		if err != nil {
			return err
		}
		b, err := json.Marshal(signed)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

var keyPrefix string

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Print the WIF and public key for --seed or --wif",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := signingKey()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "private: %s\npublic:  %s\n", key.WIF(), key.PublicKey(keyPrefix))
		return nil
	},
}

func init() {
	f := signCmd.Flags()
	f.StringVar(&signFlags.account, "account", "", "signing account")
	f.StringVar(&signFlags.wif, "wif", "", "posting key in wallet import format")
	f.StringVar(&signFlags.seed, "seed", "", "derive the key from a seed instead of --wif")
	f.StringVar(&signFlags.params, "params", "[]", "request params as JSON")
	f.Int64Var(&signFlags.id, "id", 1, "request id")
	_ = signCmd.MarkFlagRequired("account")
	signCmd.MarkFlagsMutuallyExclusive("wif", "seed")

	kf := keyCmd.Flags()
	kf.StringVar(&signFlags.wif, "wif", "", "key in wallet import format")
	kf.StringVar(&signFlags.seed, "seed", "", "derive the key from a seed")
	kf.StringVar(&keyPrefix, "prefix", auth.DefaultAddressPrefix, "public key prefix")
	keyCmd.MarkFlagsMutuallyExclusive("wif", "seed")
}

// signParams builds the request params from positional ARGs or --params.
func signParams(args []string, paramsSet bool) (jsonrpc.Params, error) {
	if len(args) > 0 {
		if paramsSet {
			return jsonrpc.Params{}, errors.New("use either ARGs or --params")
		}
		values := make([]json.RawMessage, len(args))
		for i, a := range args {
			if !json.Valid([]byte(a)) {
				return jsonrpc.Params{}, errors.Errorf("argument %d is not JSON: %s", i+1, a)
			}
			values[i] = json.RawMessage(a)
		}
		return jsonrpc.PositionalParams(values...), nil
	}
	params, err := jsonrpc.ParseParams([]byte(signFlags.params))
	if err != nil {
		return jsonrpc.Params{}, errors.Wrap(err, "invalid --params")
	}
	if params.Kind == jsonrpc.ParamsInvalid {
		return jsonrpc.Params{}, errors.New("invalid --params: not an object or array")
	}
	return params, nil
}

func signingKey() (*auth.PrivateKey, error) {
	switch {
	case signFlags.wif != "":
		return auth.ParseWIF(signFlags.wif)
	case signFlags.seed != "":
		return auth.PrivateKeyFromSeed(signFlags.seed), nil
	}
	return nil, errors.New("one of --wif or --seed is required")
}
