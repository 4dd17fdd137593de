// Package config builds the engine's Config from flags and environment
// variables, using the spf13/pflag+viper pairing split across
// BuildFlagSet and BuildViper. No config file is read.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ARBITER"

// Keys, matching the recognized options table.
const (
	InfuraAPIKeyKey       = "infura-api-key"
	ViewerAddressKey      = "uniswap-viewer-address"
	WebServerPortKey      = "web-server-port"
	BatchSizeKey          = "batch-size"
	StartAmountKey        = "start-amount"
	StartCurrencyKey      = "start-currency"
	FeePercentKey         = "fee-percent"
	DBNameKey             = "db-name"
	LogFileNameKey        = "log-file-name"
	LogLevelKey           = "log-level"
	ReconnectMillisKey    = "reconnect-interval-ms"
	DedupCapacityKey      = "dedup-capacity"
	DedupTTLMillisKey     = "dedup-ttl-ms"
	DispatchLimitKey      = "dispatch-limit"
	HydrationConcurrency  = "hydration-concurrency"
	InterBatchDelayMsKey  = "inter-batch-delay-ms"
)

const (
	infuraHTTPSTemplate = "https://mainnet.infura.io/v3/%s"
	infuraWSSTemplate   = "wss://mainnet.infura.io/ws/v3/%s"
)

// Config is the fully-resolved, validated configuration handed to the
// Supervisor.
type Config struct {
	InfuraAPIKey  string
	ViewerAddress string
	WebServerPort int
	BatchSize     int
	StartAmount   string
	StartCurrency string
	FeePercent    float64
	DBName        string
	LogFileName   string
	LogLevel      string

	ReconnectInterval   int // milliseconds
	DedupCapacity       int
	DedupTTLMillis      int
	DispatchLimit       int
	HydrationWorkers    int
	InterBatchDelayMs   int
}

// HTTPSEndpoint returns the Infura JSON-RPC endpoint the Hydrator dials.
func (c Config) HTTPSEndpoint() string {
	return fmt.Sprintf(infuraHTTPSTemplate, c.InfuraAPIKey)
}

// WSSEndpoint returns the Infura streaming endpoint the Subscriber dials,
// once per batch connection and again on every reconnect.
func (c Config) WSSEndpoint() string {
	return fmt.Sprintf(infuraWSSTemplate, c.InfuraAPIKey)
}

// BuildFlagSet declares every recognized flag with its default value.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("arbiter", pflag.ContinueOnError)
	fs.String(InfuraAPIKeyKey, "", "credential for the HTTPS and WSS blockchain endpoints")
	fs.String(ViewerAddressKey, "", "address of the viewPair(address[]) aggregator contract")
	fs.Int(WebServerPortKey, 8080, "broadcaster listen port")
	fs.Int(BatchSizeKey, 800, "hydration and subscription batch size")
	fs.String(StartAmountKey, "1", "base hop input, in base-currency units")
	fs.String(StartCurrencyKey, "WETH", "base symbol used in pathDescription")
	fs.Float64(FeePercentKey, 0.5, "per-hop fee, percent")
	fs.String(DBNameKey, "defi.db", "catalog filename")
	fs.String(LogFileNameKey, "arbitrage.log", "append-only log file path")
	fs.String(LogLevelKey, "info", "log level: trace|debug|info|warn|error|crit")
	fs.Int(ReconnectMillisKey, 5000, "reconnection delay after a subscription drops, in ms")
	fs.Int(DedupCapacityKey, 100_000, "transaction-hash dedup LRU capacity")
	fs.Int(DedupTTLMillisKey, 300_000, "transaction-hash dedup TTL, in ms")
	fs.Int(DispatchLimitKey, 5, "max concurrent Sync-event dispatches")
	fs.Int(HydrationConcurrency, 5, "max concurrent hydration batch calls")
	fs.Int(InterBatchDelayMsKey, 100, "delay between opening successive subscription batches, in ms")
	return fs
}

// BuildViper layers flags over environment variables (ARBITER_* ) over
// defaults, and parses argv against fs.
func BuildViper(fs *pflag.FlagSet, argv []string) (*viper.Viper, error) {
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

// Build validates v's bound values and returns a Config.
func Build(v *viper.Viper) (Config, error) {
	cfg := Config{
		InfuraAPIKey:      v.GetString(InfuraAPIKeyKey),
		ViewerAddress:     v.GetString(ViewerAddressKey),
		WebServerPort:     v.GetInt(WebServerPortKey),
		BatchSize:         v.GetInt(BatchSizeKey),
		StartAmount:       v.GetString(StartAmountKey),
		StartCurrency:     v.GetString(StartCurrencyKey),
		FeePercent:        v.GetFloat64(FeePercentKey),
		DBName:            v.GetString(DBNameKey),
		LogFileName:       v.GetString(LogFileNameKey),
		LogLevel:          v.GetString(LogLevelKey),
		ReconnectInterval: v.GetInt(ReconnectMillisKey),
		DedupCapacity:     v.GetInt(DedupCapacityKey),
		DedupTTLMillis:    v.GetInt(DedupTTLMillisKey),
		DispatchLimit:     v.GetInt(DispatchLimitKey),
		HydrationWorkers:  v.GetInt(HydrationConcurrency),
		InterBatchDelayMs: v.GetInt(InterBatchDelayMsKey),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that can't possibly run.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be positive, got %d", c.BatchSize)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("web-server-port out of range: %d", c.WebServerPort)
	}
	if c.DispatchLimit <= 0 {
		return fmt.Errorf("dispatch-limit must be positive, got %d", c.DispatchLimit)
	}
	if c.FeePercent < 0 || c.FeePercent >= 100 {
		return fmt.Errorf("fee-percent out of range: %v", c.FeePercent)
	}
	if c.DBName == "" {
		return fmt.Errorf("db-name must not be empty")
	}
	if c.InfuraAPIKey == "" {
		return fmt.Errorf("infura-api-key must not be empty")
	}
	if c.ViewerAddress == "" {
		return fmt.Errorf("uniswap-viewer-address must not be empty")
	}
	if c.HydrationWorkers <= 0 {
		return fmt.Errorf("hydration-concurrency must be positive, got %d", c.HydrationWorkers)
	}
	return nil
}
