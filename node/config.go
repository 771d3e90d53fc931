package node

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Network        string        `json:"network" mapstructure:"network"`
	DataDir        string        `json:"data_dir" mapstructure:"data_dir"`
	StoreBackend   string        `json:"store_backend" mapstructure:"store_backend"`
	PostgresDSN    string        `json:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`
	EsploraURL     string        `json:"esplora_url" mapstructure:"esplora_url"`
	LogLevel       string        `json:"log_level" mapstructure:"log_level"`
	MaxConcurrency int           `json:"max_concurrency" mapstructure:"max_concurrency"`
	MaxRetries     int           `json:"max_retries" mapstructure:"max_retries"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	MetricsAddr    string        `json:"metrics_addr" mapstructure:"metrics_addr"`
}

const (
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedNetworks = map[string]struct{}{
	"mainnet": {},
	"testnet": {},
	"signet":  {},
	"regtest": {},
}

// defaultEsploraURLs are the public Blockstream endpoints. Regtest has none.
var defaultEsploraURLs = map[string]string{
	"mainnet": "https://blockstream.info/api",
	"testnet": "https://blockstream.info/testnet/api",
	"signet":  "https://blockstream.info/signet/api",
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".btcspv"
	}
	return filepath.Join(home, ".btcspv")
}

func DefaultEsploraURL(network string) string {
	return defaultEsploraURLs[network]
}

func DefaultConfig() Config {
	return Config{
		Network:        "testnet",
		DataDir:        DefaultDataDir(),
		StoreBackend:   StoreBolt,
		EsploraURL:     DefaultEsploraURL("testnet"),
		LogLevel:       "info",
		MaxConcurrency: 8,
		MaxRetries:     3,
		RequestTimeout: 15 * time.Second,
		MetricsAddr:    "127.0.0.1:9464",
	}
}

func ValidateConfig(cfg Config) error {
	network := strings.TrimSpace(cfg.Network)
	if network == "" {
		return errors.New("network is required")
	}
	if _, ok := allowedNetworks[network]; !ok {
		return fmt.Errorf("invalid network %q", cfg.Network)
	}
	switch cfg.StoreBackend {
	case StoreBolt:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return errors.New("data_dir is required")
		}
	case StorePostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return errors.New("postgres_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("invalid store_backend %q", cfg.StoreBackend)
	}
	if cfg.EsploraURL != "" {
		if err := validateURL(cfg.EsploraURL); err != nil {
			return fmt.Errorf("invalid esplora_url: %w", err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxConcurrency <= 0 {
		return errors.New("max_concurrency must be > 0")
	}
	if cfg.MaxConcurrency > 256 {
		return errors.New("max_concurrency must be <= 256")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics_addr: %w", err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
