package config

const (
	defaultConcurrency = 4

	defaultRetryMaxAttempts = 3
	defaultRetryMultiplier  = 2.0

	defaultBreakerMaxFailures = 5
	defaultBreakerHalfOpen    = 1

	defaultRequestsPerSecond = 5.0
)

// defaults returns the built-in configuration layer. Everything here can be
// overridden by release.yaml or CROSSPUB_ env vars.
func defaults() map[string]any {
	return map[string]any{
		"build.output_dir": "dist",
		"build.timeout":    "20m",

		"cache.enabled": true,
		"cache.dir":     ".crosspub/cache",

		"github.api_base_url":            "https://api.github.com",
		"github.upload_base_url":         "https://uploads.github.com",
		"github.token_env":               "GITHUB_TOKEN",
		"github.timeout":                 "30s",
		"github.retry.max_attempts":      defaultRetryMaxAttempts,
		"github.retry.initial_interval":  "500ms",
		"github.retry.max_interval":      "10s",
		"github.retry.multiplier":        defaultRetryMultiplier,
		"github.breaker.max_failures":    defaultBreakerMaxFailures,
		"github.breaker.timeout":         "30s",
		"github.breaker.half_open_limit": defaultBreakerHalfOpen,
		"github.requests_per_second":     defaultRequestsPerSecond,

		"mirror.use_ssl": true,

		"log.level":  "info",
		"log.format": "text",

		"concurrency": defaultConcurrency,
	}
}
