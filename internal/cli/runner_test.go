package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspub/internal/build"
	"crosspub/internal/cache"
	"crosspub/internal/config"
	"crosspub/internal/github"
	"crosspub/internal/pipeline"
	"crosspub/internal/target"
)

type fakeReleaseAPI struct {
	release    *github.Release
	reused     bool
	ensureErr  error
	uploadErr  error
	uploaded   []string
	uploadedTo int64
}

func (f *fakeReleaseAPI) EnsureRelease(_ context.Context, _, _, _ string) (*github.Release, bool, error) {
	if f.ensureErr != nil {
		return nil, false, f.ensureErr
	}
	return f.release, f.reused, nil
}

func (f *fakeReleaseAPI) UploadAsset(_ context.Context, _, _ string, releaseID int64, name, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, name)
	f.uploadedTo = releaseID
	return "https://example.com/d/" + name, nil
}

type fakeMirror struct {
	keys []string
	err  error
}

func (f *fakeMirror) Upload(_ context.Context, tag, assetName, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "yuanbao-chat2api/" + tag + "/" + assetName
	f.keys = append(f.keys, key)
	return key, nil
}

func testRunnerConfig() *config.Config {
	return &config.Config{
		Project: config.Project{Binary: "yuanbao-chat2api", Owner: "acme", Repo: "yuanbao-chat2api"},
		Build: config.Build{
			Command:   "mkdir -p dist && printf 'bin-%s' {triple} > {output}",
			OutputDir: "dist",
			Timeout:   time.Minute,
		},
	}
}

func newTestRunner(t *testing.T, api *fakeReleaseAPI) (*stageRunner, string) {
	t.Helper()
	workDir := t.TempDir()
	return &stageRunner{
		cfg:      testRunnerConfig(),
		workDir:  workDir,
		tagName:  "v1.2.3",
		logger:   slog.New(slog.DiscardHandler),
		builder:  build.NewBuilder(),
		releases: api,
	}, workDir
}

func linuxAmd64() target.Target {
	return target.Target{OS: "linux", Arch: "amd64", Suffix: "linux-amd64"}
}

func TestRunRelease_Created(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 42, TagName: "v1.2.3"}}
	r, _ := newTestRunner(t, api)

	res, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.False(t, res.Reused)
	require.NotNil(t, r.currentRelease())
	assert.Equal(t, int64(42), r.currentRelease().ID)
}

func TestRunRelease_ReusedExisting(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 7}, reused: true}
	r, _ := newTestRunner(t, api)

	res, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err)
	assert.True(t, res.Reused)
}

func TestRunRelease_APIFailureIsStageFailure(t *testing.T) {
	api := &fakeReleaseAPI{ensureErr: errors.New("bad credentials")}
	r, _ := newTestRunner(t, api)

	res, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err, "an API rejection fails the stage, not the run")
	require.True(t, res.Failed())
	assert.Contains(t, res.Err.Error(), "bad credentials")
}

func TestRunBuild_CompilesValidatesAndUploads(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 42}}
	r, workDir := newTestRunner(t, api)

	_, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), pipeline.Stage{
		Name: "build-linux-amd64", Kind: pipeline.KindBuild, Target: linuxAmd64(),
	})
	require.NoError(t, err)
	require.False(t, res.Failed(), "stage error: %v", res.Err)

	assert.Equal(t, "yuanbao-chat2api-v1.2.3-linux-amd64", res.AssetName)
	assert.Equal(t, "https://example.com/d/yuanbao-chat2api-v1.2.3-linux-amd64", res.AssetURL)
	assert.Equal(t, []string{"yuanbao-chat2api-v1.2.3-linux-amd64"}, api.uploaded)
	assert.Equal(t, int64(42), api.uploadedTo)

	data, err := os.ReadFile(filepath.Join(workDir, "dist", "yuanbao-chat2api-v1.2.3-linux-amd64"))
	require.NoError(t, err)
	assert.Equal(t, "bin-linux/amd64", string(data))
}

func TestRunBuild_CommandFailureIsStageFailure(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 42}}
	r, _ := newTestRunner(t, api)
	r.cfg.Build.Command = "exit 3"

	res, err := r.Run(context.Background(), pipeline.Stage{
		Name: "build-linux-amd64", Kind: pipeline.KindBuild, Target: linuxAmd64(),
	})
	require.NoError(t, err)
	require.True(t, res.Failed())
	assert.Contains(t, res.Err.Error(), "exited with code 3")
	assert.Empty(t, api.uploaded)
}

func TestRunBuild_MissingOutputListsDirectory(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 42}}
	r, _ := newTestRunner(t, api)
	r.cfg.Build.Command = "mkdir -p dist && touch dist/unrelated-file"

	res, err := r.Run(context.Background(), pipeline.Stage{
		Name: "build-linux-amd64", Kind: pipeline.KindBuild, Target: linuxAmd64(),
	})
	require.NoError(t, err)
	require.True(t, res.Failed())

	var missing *build.OutputMissingError
	require.ErrorAs(t, res.Err, &missing)
	assert.Contains(t, res.Err.Error(), "unrelated-file")
	assert.Empty(t, api.uploaded)
}

func TestRunBuild_SkipPublishBuildsWithoutUploading(t *testing.T) {
	api := &fakeReleaseAPI{}
	r, _ := newTestRunner(t, api)
	r.skipPublish = true

	rel, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err)
	assert.False(t, rel.Failed())

	res, err := r.Run(context.Background(), pipeline.Stage{
		Name: "build-linux-amd64", Kind: pipeline.KindBuild, Target: linuxAmd64(),
	})
	require.NoError(t, err)
	require.False(t, res.Failed(), "stage error: %v", res.Err)
	assert.Empty(t, res.AssetURL)
	assert.Empty(t, api.uploaded)
}

func TestRunBuild_MirrorFailureDoesNotFailStage(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 42}}
	r, _ := newTestRunner(t, api)
	r.mirror = &fakeMirror{err: errors.New("bucket unreachable")}

	_, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), pipeline.Stage{
		Name: "build-linux-amd64", Kind: pipeline.KindBuild, Target: linuxAmd64(),
	})
	require.NoError(t, err)
	assert.False(t, res.Failed(), "mirror problems must not fail a published build")
	assert.Empty(t, res.MirrorKey)
}

func TestRunBuild_MirrorReceivesAsset(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 42}}
	r, _ := newTestRunner(t, api)
	m := &fakeMirror{}
	r.mirror = m

	_, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), pipeline.Stage{
		Name: "build-linux-amd64", Kind: pipeline.KindBuild, Target: linuxAmd64(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"yuanbao-chat2api/v1.2.3/yuanbao-chat2api-v1.2.3-linux-amd64"}, m.keys)
	assert.Equal(t, "yuanbao-chat2api/v1.2.3/yuanbao-chat2api-v1.2.3-linux-amd64", res.MirrorKey,
		"the mirrored key must be recorded on the stage result")
}

func TestRunBuild_DependencyCacheRoundTrip(t *testing.T) {
	api := &fakeReleaseAPI{release: &github.Release{ID: 42}}
	r, workDir := newTestRunner(t, api)

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "Cargo.lock"), []byte("deps v1"), 0o644))
	r.cfg.Build.Lockfile = "Cargo.lock"
	r.cfg.Build.DepsDir = "deps"
	r.cfg.Build.Command = "mkdir -p dist deps && touch deps/marker && printf bin > {output}"
	r.depsCache = cache.NewStore(filepath.Join(workDir, "cachedir"))

	_, err := r.Run(context.Background(), pipeline.Stage{Name: "release", Kind: pipeline.KindRelease})
	require.NoError(t, err)

	stage := pipeline.Stage{Name: "build-linux-amd64", Kind: pipeline.KindBuild, Target: linuxAmd64()}

	res, err := r.Run(context.Background(), stage)
	require.NoError(t, err)
	require.False(t, res.Failed(), "stage error: %v", res.Err)
	assert.Equal(t, string(cache.OutcomeMiss), res.CacheOutcome)

	// The first run saved the deps dir; the second restores it exactly.
	require.NoError(t, os.RemoveAll(filepath.Join(workDir, "deps")))
	res, err = r.Run(context.Background(), stage)
	require.NoError(t, err)
	require.False(t, res.Failed(), "stage error: %v", res.Err)
	assert.Equal(t, string(cache.OutcomeHit), res.CacheOutcome)
	assert.FileExists(t, filepath.Join(workDir, "deps", "marker"))
}
