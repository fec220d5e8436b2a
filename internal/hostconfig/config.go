// Package hostconfig loads the reference host's runtime configuration,
// following params/config.go's .env-then-environment-override pattern.
package hostconfig

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the reference host's tunable surface: queue/slab capacities,
// the funding cadence default, and the HTTP listen address.
type Config struct {
	RequestQueueCapacity int
	EventQueueCapacity   int
	BidSlabCapacity      int
	AskSlabCapacity      int
	FundingIntervalSecs  uint32
	ListenAddr           string
	InsuranceFundSeed    int64
}

// Default returns the reference host's out-of-the-box configuration.
func Default() Config {
	return Config{
		RequestQueueCapacity: 1024,
		EventQueueCapacity:   1024,
		BidSlabCapacity:      1000,
		AskSlabCapacity:      1000,
		FundingIntervalSecs:  28_800,
		ListenAddr:           ":8080",
		InsuranceFundSeed:    0,
	}
}

// LoadFromEnv loads configuration from .env (if present) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("REQUEST_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestQueueCapacity = n
		}
	}
	if v := os.Getenv("EVENT_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventQueueCapacity = n
		}
	}
	if v := os.Getenv("BID_SLAB_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BidSlabCapacity = n
		}
	}
	if v := os.Getenv("ASK_SLAB_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AskSlabCapacity = n
		}
	}
	if v := os.Getenv("FUNDING_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FundingIntervalSecs = uint32(n)
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("INSURANCE_FUND_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.InsuranceFundSeed = n
		}
	}

	return cfg
}
