// Package config loads the recognized pipeline options: godotenv loads a
// .env file if present, environment variables overlay the defaults, and
// pflag-parsed process flags win over both.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Options are the recognized pipeline options. Unrecognized configuration
// keys are ignored.
type Options struct {
	MaxAttempts           int
	RowLimit              int
	StatementTimeoutMS    int
	LLMTimeoutMS          int
	RetrievalKDDL         int
	RetrievalKExamples    int
	DiscoveryEnabled      bool
	DiscoveryMaxTables    int
	DiscoveryMaxCard      int
	DiscoveryCacheTTLS    int
	TemperatureInitial    float64
	TemperatureRetryDelta float64
}

// Defaults returns the documented default values.
func Defaults() Options {
	return Options{
		MaxAttempts:           5,
		RowLimit:              10000,
		StatementTimeoutMS:    30000,
		LLMTimeoutMS:          60000,
		RetrievalKDDL:         10,
		RetrievalKExamples:    5,
		DiscoveryEnabled:      true,
		DiscoveryMaxTables:    50,
		DiscoveryMaxCard:      30,
		DiscoveryCacheTTLS:    600,
		TemperatureInitial:    0.0,
		TemperatureRetryDelta: 0.2,
	}
}

// Load reads a .env file (if present, ignored if absent), then overlays
// environment variables, then overlays process flags registered on fs.
// Call before fs.Parse(args) has necessarily happened; Load parses fs
// itself if it has not already been parsed.
func Load(fs *pflag.FlagSet, args []string) (Options, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	o := Defaults()
	o.overlayEnv()

	fs.IntVar(&o.MaxAttempts, "max-attempts", o.MaxAttempts, "self-correction attempt bound")
	fs.IntVar(&o.RowLimit, "row-limit", o.RowLimit, "executor row cap")
	fs.IntVar(&o.StatementTimeoutMS, "statement-timeout-ms", o.StatementTimeoutMS, "SQL statement timeout in milliseconds")
	fs.IntVar(&o.LLMTimeoutMS, "llm-timeout-ms", o.LLMTimeoutMS, "LLM completion timeout in milliseconds")
	fs.IntVar(&o.RetrievalKDDL, "retrieval-k-ddl", o.RetrievalKDDL, "top-K DDL fragments retrieved per generation")
	fs.IntVar(&o.RetrievalKExamples, "retrieval-k-examples", o.RetrievalKExamples, "top-K examples retrieved per generation")
	fs.BoolVar(&o.DiscoveryEnabled, "discovery-enabled", o.DiscoveryEnabled, "enable process discovery")
	fs.IntVar(&o.DiscoveryMaxTables, "discovery-max-tables", o.DiscoveryMaxTables, "max tables scanned by process discovery")
	fs.IntVar(&o.DiscoveryMaxCard, "discovery-max-cardinality", o.DiscoveryMaxCard, "max cardinality for a status-like column")
	fs.IntVar(&o.DiscoveryCacheTTLS, "discovery-cache-ttl-s", o.DiscoveryCacheTTLS, "discovered-process cache TTL in seconds")
	fs.Float64Var(&o.TemperatureInitial, "temperature-initial", o.TemperatureInitial, "LLM temperature on first attempt")
	fs.Float64Var(&o.TemperatureRetryDelta, "temperature-retry-delta", o.TemperatureRetryDelta, "LLM temperature increase per retry")

	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return o, err
		}
	}
	return o, nil
}

func (o *Options) overlayEnv() {
	envInt(&o.MaxAttempts, "QE_MAX_ATTEMPTS")
	envInt(&o.RowLimit, "QE_ROW_LIMIT")
	envInt(&o.StatementTimeoutMS, "QE_STATEMENT_TIMEOUT_MS")
	envInt(&o.LLMTimeoutMS, "QE_LLM_TIMEOUT_MS")
	envInt(&o.RetrievalKDDL, "QE_RETRIEVAL_K_DDL")
	envInt(&o.RetrievalKExamples, "QE_RETRIEVAL_K_EXAMPLES")
	envBool(&o.DiscoveryEnabled, "QE_DISCOVERY_ENABLED")
	envInt(&o.DiscoveryMaxTables, "QE_DISCOVERY_MAX_TABLES")
	envInt(&o.DiscoveryMaxCard, "QE_DISCOVERY_MAX_CARDINALITY")
	envInt(&o.DiscoveryCacheTTLS, "QE_DISCOVERY_CACHE_TTL_S")
	envFloat(&o.TemperatureInitial, "QE_TEMPERATURE_INITIAL")
	envFloat(&o.TemperatureRetryDelta, "QE_TEMPERATURE_RETRY_DELTA")
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
