package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeRunner scripts per-stage outcomes and records execution.
type fakeRunner struct {
	mu      sync.Mutex
	fail    map[string]error
	reused  map[string]bool
	delay   map[string]time.Duration
	started []string

	maxInFlight     int
	currentInFlight int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		fail:   make(map[string]error),
		reused: make(map[string]bool),
		delay:  make(map[string]time.Duration),
	}
}

func (f *fakeRunner) Run(_ context.Context, stage Stage) (*StageResult, error) {
	f.mu.Lock()
	f.started = append(f.started, stage.Name)
	f.currentInFlight++
	if f.currentInFlight > f.maxInFlight {
		f.maxInFlight = f.currentInFlight
	}
	d := f.delay[stage.Name]
	f.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}

	f.mu.Lock()
	f.currentInFlight--
	f.mu.Unlock()

	return &StageResult{Err: f.fail[stage.Name], Reused: f.reused[stage.Name]}, nil
}

func (f *fakeRunner) startedStages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.started))
	copy(cp, f.started)
	return cp
}

func mustGraph(t *testing.T) *StageGraph {
	t.Helper()
	g, err := NewStageGraph(releasePlanStages())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func TestRunSerial_AllSucceed(t *testing.T) {
	g := mustGraph(t)
	runner := newFakeRunner()
	ex, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := ex.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("run should succeed, state: %v", res.FinalState)
	}
	if res.ExecutionOrder[0] != "release" {
		t.Fatalf("release must run first, order: %v", res.ExecutionOrder)
	}
	if len(res.ExecutionOrder) != 5 {
		t.Fatalf("expected 5 executed stages, got %v", res.ExecutionOrder)
	}
}

func TestRunSerial_ReleaseFailureSkipsAllBuilds(t *testing.T) {
	g := mustGraph(t)
	runner := newFakeRunner()
	runner.fail["release"] = errors.New("api rejected tag")

	ex, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := ex.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Succeeded() {
		t.Fatal("run must not succeed")
	}
	if res.FinalState["release"] != StageFailed {
		t.Fatalf("release state = %s", res.FinalState["release"])
	}
	for name, st := range res.FinalState {
		if name == "release" {
			continue
		}
		if st != StageSkipped {
			t.Fatalf("%s state = %s, want SKIPPED", name, st)
		}
	}
	if got := runner.startedStages(); len(got) != 1 {
		t.Fatalf("only release should have started, got %v", got)
	}
}

func TestRunSerial_ReusedReleaseEndsCached(t *testing.T) {
	g := mustGraph(t)
	runner := newFakeRunner()
	runner.reused["release"] = true

	ex, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := ex.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalState["release"] != StageCached {
		t.Fatalf("release state = %s, want CACHED", res.FinalState["release"])
	}
	if !res.Succeeded() {
		t.Fatalf("cached release must still gate a successful run: %v", res.FinalState)
	}
}

func TestRunParallel_BuildsRunConcurrently(t *testing.T) {
	g := mustGraph(t)
	runner := newFakeRunner()
	for _, name := range []string{"build-linux-amd64", "build-linux-arm64", "build-darwin-arm64", "build-windows-amd64"} {
		runner.delay[name] = 30 * time.Millisecond
	}

	ex, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := ex.RunParallel(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("run should succeed, state: %v", res.FinalState)
	}
	if runner.maxInFlight < 2 {
		t.Fatalf("builds did not overlap (maxInFlight=%d)", runner.maxInFlight)
	}
	if got := runner.startedStages(); got[0] != "release" {
		t.Fatalf("release must start before any build: %v", got)
	}
}

func TestRunParallel_OneBuildFailureLeavesSiblingsAlone(t *testing.T) {
	g := mustGraph(t)
	runner := newFakeRunner()
	runner.fail["build-linux-arm64"] = errors.New("missing output")

	ex, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := ex.RunParallel(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Succeeded() {
		t.Fatal("run must not succeed")
	}
	if res.FinalState["build-linux-arm64"] != StageFailed {
		t.Fatalf("failed build state = %s", res.FinalState["build-linux-arm64"])
	}
	for _, name := range []string{"build-linux-amd64", "build-darwin-arm64", "build-windows-amd64"} {
		if res.FinalState[name] != StageCompleted {
			t.Fatalf("%s state = %s, want COMPLETED", name, res.FinalState[name])
		}
	}
}

func TestRunParallel_ConcurrencyBound(t *testing.T) {
	g := mustGraph(t)
	runner := newFakeRunner()
	for _, name := range []string{"build-linux-amd64", "build-linux-arm64", "build-darwin-arm64", "build-windows-amd64"} {
		runner.delay[name] = 20 * time.Millisecond
	}

	ex, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := ex.RunParallel(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.maxInFlight > 2 {
		t.Fatalf("concurrency bound violated: maxInFlight=%d", runner.maxInFlight)
	}
}

func TestRunParallel_Cancellation(t *testing.T) {
	g := mustGraph(t)
	runner := newFakeRunner()
	runner.delay["release"] = 5 * time.Millisecond
	for _, name := range []string{"build-linux-amd64", "build-linux-arm64", "build-darwin-arm64", "build-windows-amd64"} {
		runner.delay[name] = 500 * time.Millisecond
	}

	ex, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = ex.RunParallel(ctx, 4)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error in chain, got %v", err)
	}
}

func TestRunParallel_InfraErrorAbortsRun(t *testing.T) {
	g := mustGraph(t)
	ex, err := NewExecutor(g, infraErrRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = ex.RunParallel(context.Background(), 4)
	if err == nil {
		t.Fatal("expected infrastructure error to abort the run")
	}
}

func TestExecutionOrder_IsDispatchOrderInBothModes(t *testing.T) {
	want := []string{
		"release",
		"build-darwin-arm64",
		"build-linux-amd64",
		"build-linux-arm64",
		"build-windows-amd64",
	}

	ex, err := NewExecutor(mustGraph(t), newFakeRunner())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	serial, err := ex.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(serial.ExecutionOrder, want) {
		t.Fatalf("serial order = %v, want %v", serial.ExecutionOrder, want)
	}

	ex, err = NewExecutor(mustGraph(t), newFakeRunner())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parallel, err := ex.RunParallel(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(parallel.ExecutionOrder, want) {
		t.Fatalf("parallel order = %v, want %v", parallel.ExecutionOrder, want)
	}
}

func TestRunSerial_ExecutionOrderOmitsSkippedStages(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["release"] = errors.New("api rejected tag")

	ex, err := NewExecutor(mustGraph(t), runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := ex.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.ExecutionOrder, []string{"release"}) {
		t.Fatalf("only the dispatched stage belongs in the order, got %v", res.ExecutionOrder)
	}
}

type infraErrRunner struct{}

func (infraErrRunner) Run(context.Context, Stage) (*StageResult, error) {
	return nil, fmt.Errorf("workspace unavailable")
}
