// Command rpc-auth serves JSON-RPC methods that require requests signed by
// a ledger account's posting key, and signs requests for such a server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rpc-auth",
	Short: "Signed JSON-RPC server and client",
	Long: `rpc-auth runs a JSON-RPC 2.0 server whose authenticated methods verify
request signatures against account authorities on a ledger node.

Settings are read from the environment and an optional .env file:
  LISTEN_ADDR, RPC_NODE, RPC_NAMESPACE, ADDRESS_PREFIX, AUTH_CACHE_TTL,
  SIGNATURE_MAX_AGE, LEDGER_TIMEOUT, BATCH_CONCURRENCY, LOG_LEVEL, LOG_FILE,
  CORS_ORIGINS`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, signCmd, keyCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
