package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"crosspub/internal/target"
)

const envPrefix = "CROSSPUB_"

// Load reads configuration using a 3-layer hierarchy (highest precedence last):
//
//  1. Built-in defaults
//  2. The release config file (YAML)
//  3. Environment variables (CROSSPUB_ prefix)
//
// Env mapping resolves against known config keys so that underscores inside a
// field name are not mistaken for nesting separators:
//
//	CROSSPUB_PROJECT_BINARY          -> project.binary
//	CROSSPUB_BUILD_OUTPUT_DIR        -> build.output_dir
//	CROSSPUB_GITHUB_API_BASE_URL     -> github.api_base_url
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Layer 2: release config file.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	// Layer 3: env overrides. Build a reverse lookup from known koanf keys so
	// CROSSPUB_BUILD_OUTPUT_DIR resolves to "build.output_dir" instead of being
	// ambiguously split as "build.output.dir".
	envLookup := buildEnvLookup(k.Keys())

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			key = strings.ToLower(key)

			if koanfKey, ok := envLookup[key]; ok {
				return koanfKey, value
			}

			// Fallback: simple underscore-to-dot replacement.
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if len(cfg.Targets) == 0 {
		cfg.Targets = target.DefaultMatrix()
	}
	cfg.Targets = target.SortMatrix(cfg.Targets)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// buildEnvLookup creates a reverse mapping from env-style keys to koanf dotted
// keys ("build.output_dir" -> "build_output_dir").
func buildEnvLookup(keys []string) map[string]string {
	lookup := make(map[string]string, len(keys))
	for _, key := range keys {
		envKey := strings.ReplaceAll(key, ".", "_")
		lookup[envKey] = key
	}
	return lookup
}
