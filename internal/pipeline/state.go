package pipeline

// StageState is the runtime execution state of a stage.
//
// This is intentionally separated from StageGraph, which is immutable.
type StageState string

const (
	StagePending   StageState = "PENDING"
	StageRunning   StageState = "RUNNING"
	StageCompleted StageState = "COMPLETED"
	StageFailed    StageState = "FAILED"
	StageSkipped   StageState = "SKIPPED"
	StageCached    StageState = "CACHED"
)

// ExecutionState maps stage name to its current StageState.
//
// It is a plain map so the scheduler can remain a pure function without
// coupling to an executor implementation.
type ExecutionState map[string]StageState
