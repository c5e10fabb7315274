package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"crosspub/internal/build"
	"crosspub/internal/cache"
	"crosspub/internal/config"
	"crosspub/internal/github"
	"crosspub/internal/pipeline"
	"crosspub/internal/target"
)

// releaseAPI is the slice of the GitHub client the runner needs.
type releaseAPI interface {
	EnsureRelease(ctx context.Context, owner, repo, tag string) (*github.Release, bool, error)
	UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name, path string) (string, error)
}

// assetMirror is the optional mirror destination for published assets.
type assetMirror interface {
	Upload(ctx context.Context, tag, assetName, path string) (string, error)
}

// stageRunner executes release and build stages against the real world.
//
// The release stage records the created (or reused) release; build stages read
// it to know where uploads go. The executor guarantees builds only run after
// the release stage succeeded, so the read never observes a partial write.
type stageRunner struct {
	cfg         *config.Config
	workDir     string
	tagName     string
	logger      *slog.Logger
	builder     *build.Builder
	releases    releaseAPI   // nil when publishing is skipped
	mirror      assetMirror  // nil when no mirror is configured
	depsCache   *cache.Store // nil when the cache is disabled
	skipPublish bool

	mu      sync.Mutex
	release *github.Release
}

func (r *stageRunner) Run(ctx context.Context, stage pipeline.Stage) (*pipeline.StageResult, error) {
	switch stage.Kind {
	case pipeline.KindRelease:
		return r.runRelease(ctx)
	case pipeline.KindBuild:
		return r.runBuild(ctx, stage.Target)
	default:
		return nil, fmt.Errorf("unknown stage kind %q", stage.Kind)
	}
}

func (r *stageRunner) runRelease(ctx context.Context) (*pipeline.StageResult, error) {
	if r.skipPublish {
		r.logger.Info("publish skipped, not creating release", slog.String("tag", r.tagName))
		return &pipeline.StageResult{}, nil
	}

	rel, reused, err := r.releases.EnsureRelease(ctx, r.cfg.Project.Owner, r.cfg.Project.Repo, r.tagName)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("release stage: %w", err)
		}
		return &pipeline.StageResult{Err: fmt.Errorf("creating release: %w", err)}, nil
	}

	r.mu.Lock()
	r.release = rel
	r.mu.Unlock()

	if reused {
		r.logger.Info("release already exists, reusing",
			slog.String("tag", r.tagName), slog.Int64("release_id", rel.ID))
	} else {
		r.logger.Info("release created",
			slog.String("tag", r.tagName), slog.Int64("release_id", rel.ID))
	}
	return &pipeline.StageResult{Reused: reused}, nil
}

func (r *stageRunner) runBuild(ctx context.Context, t target.Target) (*pipeline.StageResult, error) {
	log := r.logger.With(slog.String("target", t.Triple()))

	asset, err := target.DeriveAsset(r.cfg.Project.Binary, r.tagName, r.outputDir(), t)
	if err != nil {
		return nil, fmt.Errorf("deriving asset for %s: %w", t.Triple(), err)
	}

	res := &pipeline.StageResult{AssetName: asset.Name}

	res.CacheOutcome = r.restoreDeps(t, log)

	buildCtx := ctx
	if r.cfg.Build.Timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, r.cfg.Build.Timeout)
		defer cancel()
	}

	out, err := r.builder.Run(buildCtx, build.Request{
		Command:    r.cfg.Build.Command,
		WorkDir:    r.workDir,
		Env:        r.cfg.Build.Env,
		Tag:        r.tagName,
		Target:     t,
		OutputPath: asset.Path,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("build stage %s: %w", t.Triple(), err)
		}
		res.Err = fmt.Errorf("running build: %w", err)
		return res, nil
	}
	res.Output = append(out.Stdout, out.Stderr...)
	if out.ExitCode != 0 {
		res.Err = fmt.Errorf("build command exited with code %d", out.ExitCode)
		return res, nil
	}

	if err := build.CheckOutput(asset.Path); err != nil {
		res.Err = err
		return res, nil
	}
	log.Info("build output validated", slog.String("asset", asset.Name))

	r.saveDeps(t, res.CacheOutcome, log)

	if r.skipPublish {
		return res, nil
	}

	rel := r.currentRelease()
	if rel == nil {
		return nil, fmt.Errorf("build stage %s ran without a release", t.Triple())
	}

	url, err := r.releases.UploadAsset(ctx, r.cfg.Project.Owner, r.cfg.Project.Repo, rel.ID, asset.Name, asset.Path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("uploading %s: %w", asset.Name, err)
		}
		res.Err = fmt.Errorf("uploading asset: %w", err)
		return res, nil
	}
	res.AssetURL = url
	log.Info("asset uploaded", slog.String("asset", asset.Name), slog.String("url", url))

	if r.mirror != nil {
		key, err := r.mirror.Upload(ctx, r.tagName, asset.Name, asset.Path)
		if err != nil {
			// The release asset is already up; a mirror failure degrades the
			// mirror, not the release.
			log.Warn("mirror upload failed", slog.String("asset", asset.Name), slog.Any("error", err))
		} else {
			res.MirrorKey = key
			log.Info("asset mirrored", slog.String("key", key))
		}
	}

	return res, nil
}

// restoreDeps restores the dependency directory for a target. Cache problems
// degrade to a miss.
func (r *stageRunner) restoreDeps(t target.Target, log *slog.Logger) string {
	if r.depsCache == nil {
		return ""
	}

	key, err := cache.Key(r.lockfilePath(), t)
	if err != nil {
		log.Warn("cache key unavailable", slog.Any("error", err))
		return string(cache.OutcomeMiss)
	}

	outcome, err := r.depsCache.Restore(key, cache.Prefix(t), r.depsDirPath())
	if err != nil {
		log.Warn("cache restore failed", slog.Any("error", err))
		return string(cache.OutcomeMiss)
	}
	log.Info("dependency cache restore", slog.String("key", key), slog.String("outcome", string(outcome)))
	return string(outcome)
}

// saveDeps saves the dependency directory under the exact key after a build
// that did not start from an exact hit, so the next run restores exactly.
func (r *stageRunner) saveDeps(t target.Target, outcome string, log *slog.Logger) {
	if r.depsCache == nil || outcome == string(cache.OutcomeHit) {
		return
	}

	key, err := cache.Key(r.lockfilePath(), t)
	if err != nil {
		log.Warn("cache key unavailable", slog.Any("error", err))
		return
	}
	if err := r.depsCache.Save(key, r.depsDirPath()); err != nil {
		log.Warn("cache save failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	log.Info("dependency cache saved", slog.String("key", key))
}

func (r *stageRunner) currentRelease() *github.Release {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.release
}

func (r *stageRunner) outputDir() string {
	return resolvePath(r.workDir, r.cfg.Build.OutputDir)
}

func (r *stageRunner) lockfilePath() string {
	return resolvePath(r.workDir, r.cfg.Build.Lockfile)
}

func (r *stageRunner) depsDirPath() string {
	return resolvePath(r.workDir, r.cfg.Build.DepsDir)
}

func resolvePath(workDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}
