// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads canvasgraph settings from defaults, files, environment
// and command line overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/telemetry"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CANVASGRAPH_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Models    ModelsConfig    `koanf:"models"`
	Graph     GraphConfig     `koanf:"graph"`
	Audit     AuditConfig     `koanf:"audit"`
	MCP       MCPConfig       `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

type ModelsConfig struct {
	Source    string `koanf:"source"` // yaml, sqlite, memory
	Path      string `koanf:"path"`
	CacheSize int    `koanf:"cache_size"`
}

type GraphConfig struct {
	IDStrategy   string `koanf:"id_strategy"` // sequential, uuid
	Validate     bool   `koanf:"validate"`
	ExpectedBase string `koanf:"expected_base"`
}

type AuditConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite
	DSN    string `koanf:"dsn"`
}

type MCPConfig struct {
	Name  string `koanf:"name"`
	Watch bool   `koanf:"watch"`
}

// knownKeys lists the keys whose names contain underscores, so that
// CANVASGRAPH_MODELS_CACHE_SIZE maps to models.cache_size.
var knownKeys = []string{
	"telemetry.otlp_endpoint",
	"telemetry.otlp_insecure",
	"telemetry.otlp_timeout_seconds",
	"models.cache_size",
	"graph.id_strategy",
	"graph.expected_base",
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", telemetry.ExporterNone)
	k.Set("telemetry.otlp_insecure", false)
	k.Set("telemetry.otlp_timeout_seconds", 10)

	k.Set("models.source", "yaml")
	k.Set("models.path", "models.yaml")
	k.Set("models.cache_size", 128)

	k.Set("graph.id_strategy", "sequential")
	k.Set("graph.validate", true)

	k.Set("audit.driver", "memory")

	k.Set("mcp.name", "canvasgraph")
}

// Load reads defaults, then the file at path (YAML or JSON), then
// CANVASGRAPH_ environment variables.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile behaves like Load and merges config.<profile>.<ext> next
// to path when that file exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	k, err := load(path, profile)
	if err != nil {
		return nil, err
	}
	return unmarshal(k)
}

// LoadWithCLI accepts --config, --profile (alias --env) and --set key=value
// arguments. Sets are applied last and may carry JSON values.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	k, err := load(opts.path, opts.profile)
	if err != nil {
		return nil, err
	}
	for _, set := range opts.sets {
		if err := k.Set(set.key, set.value); err != nil {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("apply --set %s", set.key), err)
		}
	}
	return unmarshal(k)
}

func load(path, profile string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := loadFile(k, overlay); err != nil {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "load environment", err)
	}
	return k, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	// JSON is a subset of YAML, so one parser covers both.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return errors.New(errors.CodeConfiguration, fmt.Sprintf("load config %s", path), err)
	}
	return nil
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CANVASGRAPH_GRAPH_ID_STRATEGY to graph.id_strategy.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	dotted := strings.ReplaceAll(key, "_", ".")
	for _, known := range knownKeys {
		if strings.ReplaceAll(known, "_", ".") == dotted {
			return known
		}
	}
	return dotted
}

// profileConfigPath returns the profile overlay for base, or "" when either
// is empty or the overlay does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	candidate := filepath.Join(filepath.Dir(base), name+"."+profile+ext)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliSet struct {
	key   string
	value any
}

type cliOptions struct {
	path    string
	profile string
	sets    []cliSet
}

func parseCLIOverrides(args []string) (cliOptions, error) {
	var opts cliOptions
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, inline := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !inline {
			if i+1 >= len(args) {
				return opts, errors.New(errors.CodeConfiguration, fmt.Sprintf("missing value for %s", name), nil)
			}
			value = args[i+1]
			i++
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			set, err := parseSet(value)
			if err != nil {
				return opts, err
			}
			opts.sets = append(opts.sets, set)
		}
	}
	return opts, nil
}

func parseSet(raw string) (cliSet, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return cliSet{}, errors.New(errors.CodeConfiguration, fmt.Sprintf("invalid --set %q, want key=value", raw), nil)
	}
	return cliSet{key: key, value: parseValue(value)}, nil
}

// parseValue decodes JSON scalars and objects and keeps anything else as a
// plain string.
func parseValue(raw string) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		if f, ok := decoded.(float64); ok && f == float64(int64(f)) {
			return int64(f)
		}
		return decoded
	}
	return raw
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if _, err := telemetry.ParseLogLevel(c.Log.Level); err != nil {
		return errors.New(errors.CodeConfiguration, "log.level", err)
	}
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"log.format", c.Log.Format, []string{"text", "json"}},
		{"telemetry.exporter", c.Telemetry.Exporter, []string{telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLP}},
		{"models.source", c.Models.Source, []string{"yaml", "sqlite", "memory"}},
		{"graph.id_strategy", c.Graph.IDStrategy, []string{"sequential", "uuid"}},
		{"audit.driver", c.Audit.Driver, []string{"memory", "sqlite"}},
	}
	for _, check := range checks {
		if !oneOf(check.value, check.allowed) {
			return errors.Newf(errors.CodeConfiguration, "%s: unsupported value %q (want one of %s)",
				check.key, check.value, strings.Join(check.allowed, ", "))
		}
	}
	if c.Models.Source != "memory" && c.Models.Path == "" {
		return errors.Newf(errors.CodeConfiguration, "models.path is required for source %q", c.Models.Source)
	}
	if c.Audit.Driver == "sqlite" && c.Audit.DSN == "" {
		return errors.New(errors.CodeConfiguration, "audit.dsn is required for the sqlite driver", nil)
	}
	if c.Models.CacheSize < 0 {
		return errors.New(errors.CodeConfiguration, "models.cache_size must not be negative", nil)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
