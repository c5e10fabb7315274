package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// GraphResult is the outcome of executing a full stage graph.
type GraphResult struct {
	Fingerprint string
	FinalState  ExecutionState

	// ExecutionOrder lists stages in the order they were dispatched to the
	// runner. Both executors record it at start time; stages that never ran
	// (skipped after an upstream failure) do not appear.
	ExecutionOrder []string

	Results map[string]*StageResult
}

// Succeeded reports whether every stage ended in a successful state.
// SKIPPED stages count as failure fallout: something upstream failed.
func (r *GraphResult) Succeeded() bool {
	for _, st := range r.FinalState {
		if !IsSuccessful(st) {
			return false
		}
	}
	return true
}

// Executor executes a StageGraph.
type Executor struct {
	Graph  *StageGraph
	Runner Runner

	mu    sync.Mutex
	state ExecutionState
}

// NewExecutor creates an executor with all stages initialized to PENDING.
func NewExecutor(g *StageGraph, runner Runner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}

	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.stage.Name] = StagePending
	}

	return &Executor{Graph: g, Runner: runner, state: state}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// settle applies a finished stage's result to the state map.
// Caller must hold e.mu.
func (e *Executor) settle(name string, res *StageResult) error {
	switch {
	case res.Failed():
		return FailAndPropagate(e.Graph, e.state, name)
	case res.Reused:
		return Transition(e.state, name, StageRunning, StageCached)
	default:
		return Transition(e.state, name, StageRunning, StageCompleted)
	}
}

// RunSerial executes the graph one stage at a time.
//
// Determinism:
//   - All state mutations are guarded by a single mutex.
//   - The scheduler is polled deterministically.
//   - The next stage chosen is always the first element of the ordered list.
func (e *Executor) RunSerial(ctx context.Context) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	order := make([]string, 0, len(e.Graph.nodes))
	results := make(map[string]*StageResult, len(e.Graph.nodes))

	for {
		e.mu.Lock()
		ready := ReadyStages(e.Graph, e.state)

		if len(ready) == 0 {
			// No runnable stages: either finished, or deadlocked due to
			// inconsistent state.
			allTerminal := true
			for _, st := range e.state {
				if !IsTerminal(st) {
					allTerminal = false
					break
				}
			}
			e.mu.Unlock()

			if allTerminal {
				return &GraphResult{
					Fingerprint:    e.Graph.Fingerprint(),
					FinalState:     e.StateSnapshot(),
					ExecutionOrder: order,
					Results:        results,
				}, nil
			}
			return nil, fmt.Errorf("no ready stages but graph not finished")
		}

		next := ready[0]
		stage := e.Graph.stagesByName[next].stage

		if err := Transition(e.state, next, StagePending, StageRunning); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		order = append(order, next)
		e.mu.Unlock()

		// Execute outside the lock.
		res, err := e.Runner.Run(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("executing %q: %w", next, err)
		}
		if res == nil {
			return nil, fmt.Errorf("executing %q: nil result", next)
		}

		e.mu.Lock()
		results[next] = res
		if err := e.settle(next, res); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()
	}
}

type workItem struct {
	name  string
	stage Stage
}

type workResult struct {
	name   string
	result *StageResult
	err    error
}

// RunParallel executes the graph using up to `concurrency` workers.
//
// Determinism strategy:
//   - Depth-staged dispatch: stages are dispatched in increasing topological
//     depth, so every build waits for the release stage.
//   - Within the same depth: lexical order by stage name.
//
// All state reads/writes are synchronized by e.mu. Stage execution happens
// outside the lock.
func (e *Executor) RunParallel(ctx context.Context, concurrency int) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0")
	}

	maxDepth := 0
	for _, d := range e.Graph.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	byDepth := make([][]string, maxDepth+1)
	for _, n := range e.Graph.nodes {
		d := e.Graph.depth[n.canonicalIndex]
		byDepth[d] = append(byDepth[d], n.stage.Name)
	}
	for d := range byDepth {
		sort.Strings(byDepth[d])
	}

	workCh := make(chan workItem, concurrency)
	doneCh := make(chan workResult, concurrency)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				res, err := e.Runner.Run(ctx, w.stage)
				doneCh <- workResult{name: w.name, result: res, err: err}
			}
		}()
	}

	order := make([]string, 0, len(e.Graph.nodes))
	results := make(map[string]*StageResult, len(e.Graph.nodes))
	inFlight := 0

	depsSatisfied := func(idx int) bool {
		for _, p := range e.Graph.incoming[idx] {
			if !IsSuccessful(e.state[e.Graph.nodes[p].stage.Name]) {
				return false
			}
		}
		return true
	}

	// Coordinator loop: stage by depth.
	for depth := 0; depth <= maxDepth; depth++ {
		names := byDepth[depth]
		nextToStart := 0

		for {
			// Dispatch as many stages as possible for this depth.
			e.mu.Lock()
			for inFlight < concurrency && nextToStart < len(names) {
				name := names[nextToStart]
				n := e.Graph.stagesByName[name]
				st := e.state[name]

				// Already terminal (e.g., skipped by an earlier failure) =>
				// never execute.
				if IsTerminal(st) {
					nextToStart++
					continue
				}
				if st != StagePending {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("unexpected non-pending state for %q: %s", name, st)
				}
				if !depsSatisfied(n.canonicalIndex) {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("stage %q at depth %d is pending but dependencies are not successful", name, depth)
				}

				if err := Transition(e.state, name, StagePending, StageRunning); err != nil {
					e.mu.Unlock()
					stopWorkers()
					return nil, err
				}
				order = append(order, name)
				inFlight++
				nextToStart++
				workCh <- workItem{name: name, stage: n.stage}
			}

			stageDone := nextToStart >= len(names) && inFlight == 0
			e.mu.Unlock()
			if stageDone {
				break
			}

			// Wait for at least one completion or context cancellation.
			select {
			case <-ctx.Done():
				stopWorkers()
				return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
			case r := <-doneCh:
				if r.err != nil {
					stopWorkers()
					return nil, fmt.Errorf("executing %q: %w", r.name, r.err)
				}
				if r.result == nil {
					stopWorkers()
					return nil, fmt.Errorf("executing %q: nil result", r.name)
				}

				e.mu.Lock()
				if cur := e.state[r.name]; cur != StageRunning {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("completion for %q but state is %s", r.name, cur)
				}

				results[r.name] = r.result
				if err := e.settle(r.name, r.result); err != nil {
					e.mu.Unlock()
					stopWorkers()
					return nil, err
				}
				inFlight--
				e.mu.Unlock()
			}
		}
	}

	stopWorkers()

	return &GraphResult{
		Fingerprint:    e.Graph.Fingerprint(),
		FinalState:     e.StateSnapshot(),
		ExecutionOrder: order,
		Results:        results,
	}, nil
}
