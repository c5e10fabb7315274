// Package report builds and persists the machine-readable record of one
// release run: which tag was published, what each stage did, and where the
// assets went.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"crosspub/internal/pipeline"
)

// Report is the persisted record of a single release run.
type Report struct {
	RunID string `json:"run_id"`
	Tag   string `json:"tag"`

	// PlanFingerprint is the deterministic identity of the executed stage
	// graph. Two runs over the same plan share a fingerprint.
	PlanFingerprint string `json:"plan_fingerprint"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Succeeded bool `json:"succeeded"`

	// Stages is sorted by stage name so report bytes do not depend on
	// execution timing.
	Stages []StageReport `json:"stages"`
}

// StageReport is the outcome of one stage.
type StageReport struct {
	Name  string `json:"name"`
	State string `json:"state"`

	CacheOutcome string `json:"cache_outcome,omitempty"`
	AssetName    string `json:"asset_name,omitempty"`
	AssetURL     string `json:"asset_url,omitempty"`
	MirrorKey    string `json:"mirror_key,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Build assembles a Report from the executed graph result.
func Build(runID, tag string, startedAt, finishedAt time.Time, res *pipeline.GraphResult) (*Report, error) {
	if res == nil {
		return nil, errors.New("nil graph result")
	}

	rep := &Report{
		RunID:           runID,
		Tag:             tag,
		PlanFingerprint: res.Fingerprint,
		StartedAt:       startedAt.UTC(),
		FinishedAt:      finishedAt.UTC(),
		Succeeded:       res.Succeeded(),
	}

	for name, state := range res.FinalState {
		sr := StageReport{Name: name, State: string(state)}
		if stageRes := res.Results[name]; stageRes != nil {
			sr.CacheOutcome = stageRes.CacheOutcome
			sr.AssetName = stageRes.AssetName
			sr.AssetURL = stageRes.AssetURL
			sr.MirrorKey = stageRes.MirrorKey
			if stageRes.Err != nil {
				sr.Error = stageRes.Err.Error()
			}
		}
		rep.Stages = append(rep.Stages, sr)
	}
	sort.Slice(rep.Stages, func(i, j int) bool { return rep.Stages[i].Name < rep.Stages[j].Name })

	if err := rep.Validate(); err != nil {
		return nil, err
	}
	return rep, nil
}

// Validate checks the invariants a report must hold before it is persisted.
func (r *Report) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	if r.RunID == "" {
		return errors.New("run_id is required")
	}
	if r.Tag == "" {
		return errors.New("tag is required")
	}
	if r.PlanFingerprint == "" {
		return errors.New("plan_fingerprint is required")
	}
	for i, s := range r.Stages {
		if s.Name == "" {
			return fmt.Errorf("stages[%d].name is required", i)
		}
		if s.State == "" {
			return fmt.Errorf("stages[%d].state is required", i)
		}
	}
	return nil
}
