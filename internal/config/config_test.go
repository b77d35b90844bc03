package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, 1500, cfg.MTU)
	require.Equal(t, 4096, cfg.MetricsRingBufferSize)
	require.Equal(t, "json", cfg.MetricsStoreFormat)
	require.Equal(t, float64(300), cfg.FlowTTLSeconds)
	require.Equal(t, float64(1000), cfg.BurstThresholdMs)
	require.True(t, cfg.PacketStreamEnabled)
}

func TestLoadOnMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadAcceptsLenientSpellings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netscope.yaml")
	yaml := `
mtu: "9000"
burstThresholdMs: "250"
packetStreamEnabled: "YES"
metricsStoreFormat: "NDJSON"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.MTU)
	require.Equal(t, float64(250), cfg.BurstThresholdMs)
	require.True(t, cfg.PacketStreamEnabled)
	require.Equal(t, "ndjson", cfg.MetricsStoreFormat)
}

func TestLoadClampsBelowFloor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netscope.yaml")
	yaml := `
mtu: 100
metricsRingBufferSize: 0
flowTTLSeconds: -5
burstThresholdMs: -10
maxTrackedFlows: 0
maxBursts: 0
packetStreamMaxBytes: 10
metricsStoreFormat: "bogus"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 576, cfg.MTU)
	require.Equal(t, 1, cfg.MetricsRingBufferSize)
	require.Equal(t, float64(1), cfg.FlowTTLSeconds)
	require.Equal(t, float64(0), cfg.BurstThresholdMs)
	require.Equal(t, 1, cfg.MaxTrackedFlows)
	require.Equal(t, 1, cfg.MaxBursts)
	require.Equal(t, int64(65536), cfg.PacketStreamMaxBytes)
	require.Equal(t, "json", cfg.MetricsStoreFormat)
}

func TestLoadOnUnparseableYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mtu: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestAsBoolEmptyStringFallsBackRatherThanFalse(t *testing.T) {
	require.True(t, asBool("", true))
	require.False(t, asBool("", false))
	require.True(t, asBool("unrecognized", true))
}
