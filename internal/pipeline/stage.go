// Package pipeline implements the release stage graph and its executors.
//
// A release run is a small DAG: one release-creation stage at the root and one
// build stage per target depending on it. The engine is generic over stages
// and edges so the plan layer can add stages (mirroring, checksums) without
// touching scheduling or state handling.
package pipeline

import (
	"context"

	"crosspub/internal/target"
)

// Kind discriminates what a stage does.
type Kind string

const (
	// KindRelease creates (or reuses) the remote release for the tag.
	KindRelease Kind = "release"

	// KindBuild compiles one target, validates the output and uploads it.
	KindBuild Kind = "build"
)

// Stage is an immutable node in the StageGraph.
type Stage struct {
	// Name is the unique stage identifier used for edges, state and reporting.
	Name string

	Kind Kind

	// Target is the matrix entry a build stage compiles. Zero for the
	// release stage.
	Target target.Target
}

// Edge represents a dependency relation: To runs only after From succeeds.
type Edge struct {
	From string
	To   string
}

// StageResult is the recorded outcome of one stage.
//
// Err carries a stage-level failure (build failed, output missing, upload
// rejected); the executor turns it into a FAILED state and skips downstream
// stages. Infrastructure errors that abort the whole run are returned
// separately by the Runner.
type StageResult struct {
	// Err is the stage failure, nil on success.
	Err error

	// Reused marks a stage satisfied without doing new work, e.g. the
	// release for the tag already existed. Reused stages end CACHED.
	Reused bool

	// CacheOutcome records the dependency-cache result for build stages
	// ("hit", "fallback", "miss"); empty for other stages.
	CacheOutcome string

	// AssetName and AssetURL are set by build stages after a successful
	// upload.
	AssetName string
	AssetURL  string

	// MirrorKey is the object key a build stage's asset was mirrored under,
	// empty when no mirror is configured or the mirror upload failed.
	MirrorKey string

	// Output is the combined build command output, surfaced on failure.
	Output []byte
}

// Failed reports whether the stage result is a failure.
func (r *StageResult) Failed() bool {
	return r != nil && r.Err != nil
}

// Runner executes a single stage.
//
// A non-nil StageResult with Err set is a stage failure: downstream stages
// are skipped but the run continues draining in-flight work. A non-nil error
// is an infrastructure failure that aborts the run.
type Runner interface {
	Run(ctx context.Context, stage Stage) (*StageResult, error)
}
