package config

import (
	"errors"
	"fmt"
	"strings"

	"crosspub/internal/target"
)

// Validate checks the assembled configuration. A failure here is a config
// error: the run aborts before any stage starts.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Project.Binary) == "" {
		errs = append(errs, errors.New("project.binary is required"))
	}
	if strings.TrimSpace(c.Project.Owner) == "" {
		errs = append(errs, errors.New("project.owner is required"))
	}
	if strings.TrimSpace(c.Project.Repo) == "" {
		errs = append(errs, errors.New("project.repo is required"))
	}

	if strings.TrimSpace(c.Build.Command) == "" {
		errs = append(errs, errors.New("build.command is required"))
	}
	if strings.TrimSpace(c.Build.OutputDir) == "" {
		errs = append(errs, errors.New("build.output_dir is required"))
	}
	if c.Build.Timeout <= 0 {
		errs = append(errs, errors.New("build.timeout must be positive"))
	}

	if err := target.ValidateMatrix(c.Targets); err != nil {
		errs = append(errs, fmt.Errorf("targets: %w", err))
	}

	if c.Cache.Enabled {
		if strings.TrimSpace(c.Cache.Dir) == "" {
			errs = append(errs, errors.New("cache.dir is required when cache is enabled"))
		}
		if strings.TrimSpace(c.Build.Lockfile) == "" {
			errs = append(errs, errors.New("build.lockfile is required when cache is enabled"))
		}
		if strings.TrimSpace(c.Build.DepsDir) == "" {
			errs = append(errs, errors.New("build.deps_dir is required when cache is enabled"))
		}
	}

	if strings.TrimSpace(c.GitHub.TokenEnv) == "" {
		errs = append(errs, errors.New("github.token_env is required"))
	}
	if c.GitHub.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("github.retry.max_attempts must be >= 1"))
	}
	if c.GitHub.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("github.retry.multiplier must be >= 1"))
	}

	if c.Mirror.Endpoint != "" {
		if strings.TrimSpace(c.Mirror.Bucket) == "" {
			errs = append(errs, errors.New("mirror.bucket is required when mirror.endpoint is set"))
		}
		if strings.TrimSpace(c.Mirror.AccessKeyEnv) == "" || strings.TrimSpace(c.Mirror.SecretKeyEnv) == "" {
			errs = append(errs, errors.New("mirror.access_key_env and mirror.secret_key_env are required when mirror.endpoint is set"))
		}
	}

	if c.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be >= 1"))
	}

	return errors.Join(errs...)
}

// MirrorEnabled reports whether the optional asset mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.Mirror.Endpoint != ""
}
