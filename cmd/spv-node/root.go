package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"btcspv.dev/spv/node"
)

type app struct {
	v      *viper.Viper
	cfg    node.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}
	defaults := node.DefaultConfig()
	var cfgFile string
	var dryRun bool

	root := &cobra.Command{
		Use:           "spv-node",
		Short:         "Bitcoin SPV header indexer and proof checker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cfgFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !dryRun {
				return cmd.Help()
			}
			return a.printJSON(a.cfg)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	f.String("network", defaults.Network, "bitcoin network: mainnet|testnet|signet|regtest")
	f.String("datadir", defaults.DataDir, "data directory for the bolt store")
	f.String("store", defaults.StoreBackend, "header store backend: bolt|postgres")
	f.String("postgres-dsn", "", "postgres connection string")
	f.String("esplora-url", "", "esplora API base URL (default depends on network)")
	f.String("log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	f.Int("max-concurrency", defaults.MaxConcurrency, "parallel header fetches during sync")
	f.Int("max-retries", defaults.MaxRetries, "retries per chain source request")
	f.Duration("request-timeout", defaults.RequestTimeout, "timeout per chain source request")
	f.String("metrics-addr", defaults.MetricsAddr, "prometheus listen address for serve")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "print effective config and exit")

	for key, flag := range map[string]string{
		"network":         "network",
		"data_dir":        "datadir",
		"store_backend":   "store",
		"postgres_dsn":    "postgres-dsn",
		"esplora_url":     "esplora-url",
		"log_level":       "log-level",
		"max_concurrency": "max-concurrency",
		"max_retries":     "max-retries",
		"request_timeout": "request-timeout",
		"metrics_addr":    "metrics-addr",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}

	root.AddCommand(
		newSyncCmd(a),
		newTipCmd(a),
		newVerifyHeaderCmd(a),
		newVerifyProofCmd(a),
		newWasMinedCmd(a),
		newCheckTxCmd(a),
		newProofCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) loadConfig(cfgFile string) error {
	a.v.SetEnvPrefix("SPV")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return usageErr("read config: %v", err)
		}
	}

	cfg := node.DefaultConfig()
	if err := a.v.Unmarshal(&cfg); err != nil {
		return usageErr("decode config: %v", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.EsploraURL == "" {
		cfg.EsploraURL = node.DefaultEsploraURL(cfg.Network)
	}
	if err := node.ValidateConfig(cfg); err != nil {
		return usageErr("invalid config: %v", err)
	}
	logger, err := node.NewLogger(cfg.LogLevel, a.stderr)
	if err != nil {
		return usageErr("%v", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func (a *app) openStore() (node.HeaderStore, error) {
	s, err := node.OpenHeaderStore(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("open header store: %w", err)
	}
	return s, nil
}

func (a *app) esplora() (*node.EsploraClient, error) {
	if a.cfg.EsploraURL == "" {
		return nil, usageErr("esplora_url is required for network %s", a.cfg.Network)
	}
	return node.NewEsploraClient(a.cfg.EsploraURL, a.cfg.RequestTimeout, a.cfg.MaxRetries), nil
}
