package main

import (
	"context"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mnehpets/ledgerrpc/auth"
	"github.com/mnehpets/ledgerrpc/endpoint"
	"github.com/mnehpets/ledgerrpc/internal/config"
	"github.com/mnehpets/ledgerrpc/internal/logging"
	"github.com/mnehpets/ledgerrpc/jsonrpc"
	"github.com/mnehpets/ledgerrpc/middleware"
)

var serveFlags struct {
	envFile  string
	listen   string
	node     string
	insecure bool
	sudoers  []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-RPC server",
	Long: `Run the JSON-RPC server on LISTEN_ADDR.

Methods:
  hello            public, greets the caller
  whoami           signed, returns the signing account
  sudo [command]   signed, only for accounts given with --sudoer

Prometheus metrics are served at /metrics.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.envFile, "env-file", ".env", "environment file to load")
	f.StringVar(&serveFlags.listen, "listen", "", "listen address (overrides LISTEN_ADDR)")
	f.StringVar(&serveFlags.node, "node", "", "ledger node URL (overrides RPC_NODE)")
	f.BoolVar(&serveFlags.insecure, "insecure", false, "omit HSTS for plain-HTTP development")
	f.StringSliceVar(&serveFlags.sudoers, "sudoer", nil, "account allowed to call sudo (repeatable)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveFlags.envFile)
	if err != nil {
		return err
	}
	if serveFlags.listen != "" {
		cfg.ListenAddr = serveFlags.listen
	}
	if serveFlags.node != "" {
		cfg.RPCNode = serveFlags.node
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := auth.DialLedger(ctx, cfg.RPCNode, auth.WithLedgerTimeout(cfg.LedgerTimeout))
	if err != nil {
		return err
	}
	defer ledger.Close()

	cache, err := auth.NewAuthorityCache(ledger,
		auth.WithTTL(cfg.CacheTTL),
		auth.WithMaxCacheSize(cfg.CacheMaxMB),
		auth.WithCacheLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()
	verifier := auth.NewVerifier(cache, auth.WithAddressPrefix(cfg.AddressPrefix))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rpc := jsonrpc.NewEndpoint(
		jsonrpc.WithNamespace(cfg.Namespace),
		jsonrpc.WithLogger(logger),
		jsonrpc.WithMetrics(reg),
		jsonrpc.WithBatchConcurrency(cfg.BatchConcurrency),
	)
	registerMethods(rpc, verifier, serveFlags.sudoers, auth.WithMaxSignatureAge(cfg.SignatureMaxAge))

	security := []middleware.SecurityHeadersOption{middleware.WithCORS(cfg.CORSOrigins...)}
	if serveFlags.insecure {
		security = append(security, middleware.WithoutHSTS())
	}
	processors := []endpoint.Processor{
		middleware.NewRequestLogger(logger, middleware.WithLogLevel(zap.InfoLevel)),
		middleware.NewSecurityHeadersProcessor(security...),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", endpoint.Handler(rpc.Endpoint, processors...))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("node", cfg.RPCNode),
			zap.Strings("methods", rpc.Names()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type helloParams struct {
	Name string `json:"name"`
}

type sudoParams struct {
	Command string `json:"command"`
}

func registerMethods(rpc *jsonrpc.JSONRPCEndpoint, v *auth.Verifier, sudoers []string, opts ...auth.Option) {
	rpc.Register("hello", jsonrpc.Typed(func(ctx context.Context, p helloParams) (string, error) {
		if p.Name == "" {
			p.Name = "world"
		}
		return "hello " + p.Name, nil
	}))

	auth.RegisterAuthenticated(rpc, "whoami", v, jsonrpc.Func(nil, func(ctx context.Context, _ jsonrpc.Args) (any, error) {
		account, _ := auth.AccountFromContext(ctx)
		return account, nil
	}), opts...)

	auth.RegisterAuthenticated(rpc, "sudo", v, jsonrpc.Typed(func(ctx context.Context, p sudoParams) (string, error) {
		account, _ := auth.AccountFromContext(ctx)
		if err := auth.Assert(slices.Contains(sudoers, account), "Nope"); err != nil {
			return "", err
		}
		jsonrpc.LoggerFromContext(ctx).Info("sudo", zap.String("account", account), zap.String("command", p.Command))
		return "sudo " + p.Command, nil
	}), opts...)
}
