package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	o := Defaults()
	assert.Equal(t, 5, o.MaxAttempts)
	assert.Equal(t, 10000, o.RowLimit)
	assert.Equal(t, 30000, o.StatementTimeoutMS)
	assert.Equal(t, 60000, o.LLMTimeoutMS)
	assert.Equal(t, 10, o.RetrievalKDDL)
	assert.Equal(t, 5, o.RetrievalKExamples)
	assert.True(t, o.DiscoveryEnabled)
	assert.Equal(t, 50, o.DiscoveryMaxTables)
	assert.Equal(t, 30, o.DiscoveryMaxCard)
	assert.Equal(t, 600, o.DiscoveryCacheTTLS)
	assert.InDelta(t, 0.0, o.TemperatureInitial, 1e-9)
	assert.InDelta(t, 0.2, o.TemperatureRetryDelta, 1e-9)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("QE_MAX_ATTEMPTS", "3")
	t.Setenv("QE_DISCOVERY_ENABLED", "false")
	t.Setenv("QE_TEMPERATURE_RETRY_DELTA", "0.5")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o, err := Load(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, o.MaxAttempts)
	assert.False(t, o.DiscoveryEnabled)
	assert.InDelta(t, 0.5, o.TemperatureRetryDelta, 1e-9)
}

func TestLoad_FlagsWinOverEnv(t *testing.T) {
	t.Setenv("QE_ROW_LIMIT", "500")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o, err := Load(fs, []string{"--row-limit=250"})
	require.NoError(t, err)
	assert.Equal(t, 250, o.RowLimit)
}

func TestLoad_MalformedEnvIgnored(t *testing.T) {
	t.Setenv("QE_MAX_ATTEMPTS", "not-a-number")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o, err := Load(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, o.MaxAttempts)
}
