package node

import (
	"testing"
	"time"
)

func TestValidateConfigOK(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateConfigPostgresNeedsDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreBackend = StorePostgres
	cfg.DataDir = ""
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error")
	}
	cfg.PostgresDSN = "postgres://spv@localhost:5432/spv"
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestDefaultEsploraURL(t *testing.T) {
	if DefaultEsploraURL("mainnet") != "https://blockstream.info/api" {
		t.Fatalf("mainnet url: %q", DefaultEsploraURL("mainnet"))
	}
	if DefaultEsploraURL("regtest") != "" {
		t.Fatalf("regtest should have no default")
	}
}

func TestValidateConfigRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty network", func(c *Config) { c.Network = " " }},
		{"unknown network", func(c *Config) { c.Network = "litecoin" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown backend", func(c *Config) { c.StoreBackend = "leveldb" }},
		{"esplora blank", func(c *Config) { c.EsploraURL = " " }},
		{"esplora scheme", func(c *Config) { c.EsploraURL = "ftp://example.com" }},
		{"esplora host", func(c *Config) { c.EsploraURL = "http://" }},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"concurrency zero", func(c *Config) { c.MaxConcurrency = 0 }},
		{"concurrency high", func(c *Config) { c.MaxConcurrency = 257 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 * time.Second }},
		{"metrics addr", func(c *Config) { c.MetricsAddr = "127.0.0.1" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidateConfigOptionalFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = ""
	cfg.EsploraURL = ""
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
