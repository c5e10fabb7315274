// Package config loads and validates the release pipeline configuration.
// Configuration is layered: built-in defaults -> release.yaml -> environment
// variable overrides with the CROSSPUB_ prefix.
package config

import (
	"time"

	"crosspub/internal/target"
)

// Config holds the full pipeline configuration for one release run.
type Config struct {
	Project Project         `koanf:"project"`
	Build   Build           `koanf:"build"`
	Targets []target.Target `koanf:"targets"`
	Cache   Cache           `koanf:"cache"`
	GitHub  GitHub          `koanf:"github"`
	Mirror  Mirror          `koanf:"mirror"`
	Log     Log             `koanf:"log"`

	// Concurrency bounds the number of build stages running at once.
	Concurrency int `koanf:"concurrency"`
}

// Project identifies the binary and the repository that receives the release.
type Project struct {
	// Binary is the base binary name embedded in every asset name.
	Binary string `koanf:"binary"`

	Owner string `koanf:"owner"`
	Repo  string `koanf:"repo"`
}

// Build describes how one target is compiled.
type Build struct {
	// Command is the build command template. The placeholders {os}, {arch},
	// {triple}, {tag} and {output} are substituted per target before the
	// command is run through the shell.
	Command string `koanf:"command"`

	// OutputDir is where compiled binaries are expected to appear.
	OutputDir string `koanf:"output_dir"`

	// Env is extra environment passed to every build, on top of the
	// per-target TARGET_OS / TARGET_ARCH / TARGET_TRIPLE variables.
	Env map[string]string `koanf:"env"`

	// Lockfile is the dependency lockfile whose content keys the cache.
	Lockfile string `koanf:"lockfile"`

	// DepsDir is the dependency directory restored from and saved to the cache.
	DepsDir string `koanf:"deps_dir"`

	// Timeout bounds a single target build.
	Timeout time.Duration `koanf:"timeout"`
}

// Cache configures the keyed dependency cache.
type Cache struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// GitHub configures the release API client.
type GitHub struct {
	// APIBaseURL and UploadBaseURL are overridable for tests and GHE.
	APIBaseURL    string `koanf:"api_base_url"`
	UploadBaseURL string `koanf:"upload_base_url"`

	// TokenEnv names the environment variable carrying the token. The token
	// itself never lives in config files.
	TokenEnv string `koanf:"token_env"`

	Timeout           time.Duration `koanf:"timeout"`
	Retry             Retry         `koanf:"retry"`
	Breaker           Breaker       `koanf:"breaker"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// Retry holds retry policy settings with exponential backoff.
type Retry struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
}

// Breaker holds circuit breaker settings for the release API.
type Breaker struct {
	MaxFailures   int           `koanf:"max_failures"`
	Timeout       time.Duration `koanf:"timeout"`
	HalfOpenLimit int           `koanf:"half_open_limit"`
}

// Mirror configures the optional S3-compatible asset mirror.
// The mirror is active iff Endpoint is non-empty.
type Mirror struct {
	Endpoint     string `koanf:"endpoint"`
	Bucket       string `koanf:"bucket"`
	Region       string `koanf:"region"`
	AccessKeyEnv string `koanf:"access_key_env"`
	SecretKeyEnv string `koanf:"secret_key_env"`
	UseSSL       bool   `koanf:"use_ssl"`
}

// Log holds structured logging settings.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
