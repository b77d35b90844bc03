/**
 * Configuration Definitions.
 *
 * Defines the typed configuration for the analytics core, loaded from
 * YAML with the documented clamping and lenient string/bool parsing
 * rules applied on load so the rest of the core never has to
 * re-validate its own settings.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved, already-clamped configuration for one
// analytics core instance.
type Config struct {
	MTU                int `yaml:"mtu"`
	PacketPoolBytes    int `yaml:"packetPoolBytes"`
	PerFlowBufferBytes int `yaml:"perFlowBufferBytes"`

	MetricsRingBufferSize    int     `yaml:"metricsRingBufferSize"`
	MetricsSnapshotInterval  float64 `yaml:"metricsSnapshotInterval"`
	MetricsStoreFormat       string  `yaml:"metricsStoreFormat"`
	MetricsStoreMaxSnapshots int     `yaml:"metricsStoreMaxSnapshots"`
	MetricsStoreMaxBytes     int64   `yaml:"metricsStoreMaxBytes"`

	FlowTTLSeconds   float64 `yaml:"flowTTLSeconds"`
	BurstThresholdMs float64 `yaml:"burstThresholdMs"`
	MaxTrackedFlows  int     `yaml:"maxTrackedFlows"`
	MaxBursts        int     `yaml:"maxBursts"`

	ClassifierMaxEntries   int     `yaml:"classifierMaxEntries"`
	ClassifierTTLCache     float64 `yaml:"classifierTTLCache"`
	SignatureFileName      string  `yaml:"signatureFileName"`
	SignatureCheckInterval float64 `yaml:"signatureCheckInterval"`

	PacketStreamEnabled  bool  `yaml:"packetStreamEnabled"`
	PacketStreamMaxBytes int64 `yaml:"packetStreamMaxBytes"`

	FlowArchivePath string `yaml:"flowArchivePath"`
	GeoASNPath      string `yaml:"geoASNPath"`
}

// Default returns the documented out-of-the-box configuration.
func Default() Config {
	return Config{
		MTU:                1500,
		PacketPoolBytes:    1 << 20,
		PerFlowBufferBytes: 1 << 16,

		MetricsRingBufferSize:   4096,
		MetricsSnapshotInterval: 5,
		MetricsStoreFormat:      "json",
		MetricsStoreMaxSnapshots: 288,
		MetricsStoreMaxBytes:    1 << 20,

		FlowTTLSeconds:   300,
		BurstThresholdMs: 1000,
		MaxTrackedFlows:  4096,
		MaxBursts:        8192,

		ClassifierMaxEntries:   8192,
		ClassifierTTLCache:     600,
		SignatureFileName:      "signatures.json",
		SignatureCheckInterval: 60,

		PacketStreamEnabled:  true,
		PacketStreamMaxBytes: 1 << 24,
	}
}

// Load reads a YAML configuration file, applies it over the
// documented defaults, and clamps/normalizes every field per the
// accepted-spellings and bounds rules. A missing file simply returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, err
	}
	applyRaw(&cfg, raw)
	cfg.clamp()
	return cfg, nil
}

// applyRaw overlays whatever keys are present in raw onto cfg,
// accepting the lenient string/number/bool spellings documented for
// host configuration dictionaries typed as `any`.
func applyRaw(cfg *Config, raw map[string]any) {
	if v, ok := raw["mtu"]; ok {
		cfg.MTU = asInt(v, cfg.MTU)
	}
	if v, ok := raw["packetPoolBytes"]; ok {
		cfg.PacketPoolBytes = asInt(v, cfg.PacketPoolBytes)
	}
	if v, ok := raw["perFlowBufferBytes"]; ok {
		cfg.PerFlowBufferBytes = asInt(v, cfg.PerFlowBufferBytes)
	}
	if v, ok := raw["metricsRingBufferSize"]; ok {
		cfg.MetricsRingBufferSize = asInt(v, cfg.MetricsRingBufferSize)
	}
	if v, ok := raw["metricsSnapshotInterval"]; ok {
		cfg.MetricsSnapshotInterval = asFloat(v, cfg.MetricsSnapshotInterval)
	}
	if v, ok := raw["metricsStoreFormat"]; ok {
		cfg.MetricsStoreFormat = asFormat(v, cfg.MetricsStoreFormat)
	}
	if v, ok := raw["metricsStoreMaxSnapshots"]; ok {
		cfg.MetricsStoreMaxSnapshots = asInt(v, cfg.MetricsStoreMaxSnapshots)
	}
	if v, ok := raw["metricsStoreMaxBytes"]; ok {
		cfg.MetricsStoreMaxBytes = int64(asInt(v, int(cfg.MetricsStoreMaxBytes)))
	}
	if v, ok := raw["flowTTLSeconds"]; ok {
		cfg.FlowTTLSeconds = asFloat(v, cfg.FlowTTLSeconds)
	}
	if v, ok := raw["burstThresholdMs"]; ok {
		cfg.BurstThresholdMs = asFloat(v, cfg.BurstThresholdMs)
	}
	if v, ok := raw["maxTrackedFlows"]; ok {
		cfg.MaxTrackedFlows = asInt(v, cfg.MaxTrackedFlows)
	}
	if v, ok := raw["maxBursts"]; ok {
		cfg.MaxBursts = asInt(v, cfg.MaxBursts)
	}
	if v, ok := raw["classifierMaxEntries"]; ok {
		cfg.ClassifierMaxEntries = asInt(v, cfg.ClassifierMaxEntries)
	}
	if v, ok := raw["classifierTTLCache"]; ok {
		cfg.ClassifierTTLCache = asFloat(v, cfg.ClassifierTTLCache)
	}
	if v, ok := raw["signatureFileName"]; ok {
		if s, ok := v.(string); ok {
			cfg.SignatureFileName = s
		}
	}
	if v, ok := raw["signatureCheckInterval"]; ok {
		cfg.SignatureCheckInterval = asFloat(v, cfg.SignatureCheckInterval)
	}
	if v, ok := raw["packetStreamEnabled"]; ok {
		cfg.PacketStreamEnabled = asBool(v, cfg.PacketStreamEnabled)
	}
	if v, ok := raw["packetStreamMaxBytes"]; ok {
		cfg.PacketStreamMaxBytes = int64(asInt(v, int(cfg.PacketStreamMaxBytes)))
	}
	if v, ok := raw["flowArchivePath"]; ok {
		if s, ok := v.(string); ok {
			cfg.FlowArchivePath = s
		}
	}
	if v, ok := raw["geoASNPath"]; ok {
		if s, ok := v.(string); ok {
			cfg.GeoASNPath = s
		}
	}
}

// clamp enforces the configuration floors documented in §6.
func (cfg *Config) clamp() {
	if cfg.MTU < 576 {
		cfg.MTU = 576
	}
	if cfg.MetricsRingBufferSize < 1 {
		cfg.MetricsRingBufferSize = 1
	}
	if cfg.MetricsSnapshotInterval < 1 {
		cfg.MetricsSnapshotInterval = 1
	}
	if cfg.MetricsStoreFormat != "json" && cfg.MetricsStoreFormat != "ndjson" {
		cfg.MetricsStoreFormat = "json"
	}
	if cfg.FlowTTLSeconds < 1 {
		cfg.FlowTTLSeconds = 1
	}
	if cfg.BurstThresholdMs < 0 {
		cfg.BurstThresholdMs = 0
	}
	if cfg.MaxTrackedFlows < 1 {
		cfg.MaxTrackedFlows = 1
	}
	if cfg.MaxBursts < 1 {
		cfg.MaxBursts = 1
	}
	if cfg.PacketStreamMaxBytes < 65536 {
		cfg.PacketStreamMaxBytes = 65536
	}
}

// asInt accepts both numeric YAML values and numeric-looking strings.
func asInt(v any, fallback int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return fallback
}

func asFloat(v any, fallback float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return fallback
}

// asBool accepts the documented spellings: "YES"/"yes"/"1"/"true" (and
// their boolean/numeric equivalents) mean true; "NO"/"no"/"0"/"false"
// mean false; the empty string and any other spelling fall back to
// the default.
func asBool(v any, fallback bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		switch strings.TrimSpace(t) {
		case "YES", "yes", "1", "true", "TRUE", "True":
			return true
		case "NO", "no", "0", "false", "FALSE", "False":
			return false
		case "":
			return fallback
		}
	}
	return fallback
}

// asFormat accepts "json"/"ndjson" case-insensitively; any unknown
// spelling falls back to "json" per the documented default.
func asFormat(v any, fallback string) string {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return "json"
	case "ndjson":
		return "ndjson"
	default:
		return "json"
	}
}
