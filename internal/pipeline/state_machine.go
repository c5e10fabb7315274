package pipeline

import (
	"container/heap"
	"fmt"
)

// IsTerminal reports whether the state is terminal (finished).
func IsTerminal(s StageState) bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped, StageCached:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the state satisfies dependencies.
func IsSuccessful(s StageState) bool {
	switch s {
	case StageCompleted, StageCached:
		return true
	default:
		return false
	}
}

// Transition performs an atomic validated transition for a single stage.
//
// The caller supplies the expected prior state (from) to make races
// observable. The state map is mutated iff the transition is valid.
func Transition(state ExecutionState, stageName string, from, to StageState) error {
	cur, ok := state[stageName]
	if !ok {
		return fmt.Errorf("unknown stage in state: %q", stageName)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", stageName, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", stageName, from, to)
	}
	state[stageName] = to
	return nil
}

func isAllowedTransition(from, to StageState) bool {
	switch from {
	case StagePending:
		return to == StageRunning || to == StageSkipped
	case StageRunning:
		return to == StageCompleted || to == StageFailed || to == StageCached
	default:
		return false
	}
}

// FailAndPropagate transitions stageName from RUNNING to FAILED and
// immediately and transitively marks all downstream dependents as SKIPPED.
//
// This is the gating guarantee: release-stage failure prevents every build
// stage from starting, and a build failure never affects sibling builds.
//
// Determinism:
//   - The set of stages marked SKIPPED is defined purely by reachability.
//   - Traversal is in deterministic canonical index order.
//
// Safety:
//   - A downstream stage already RUNNING is an invariant violation: it
//     indicates a missing synchronization/locking bug.
func FailAndPropagate(g *StageGraph, state ExecutionState, stageName string) error {
	if g == nil {
		return fmt.Errorf("nil graph")
	}
	n, ok := g.stagesByName[stageName]
	if !ok {
		return fmt.Errorf("unknown stage: %q", stageName)
	}

	cur, ok := state[stageName]
	if !ok {
		return fmt.Errorf("unknown stage in state: %q", stageName)
	}
	if cur != StageRunning && cur != StageFailed {
		return fmt.Errorf("cannot fail %q from state %s", stageName, cur)
	}
	if cur == StageRunning {
		state[stageName] = StageFailed
	}

	start := n.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		name := g.nodes[u].stage.Name
		st, ok := state[name]
		if !ok {
			return fmt.Errorf("missing state for %q", name)
		}

		switch st {
		case StagePending:
			state[name] = StageSkipped
		case StageRunning:
			return fmt.Errorf("invariant violation: downstream stage %q is RUNNING during failure propagation", name)
		default:
			// Terminal or already skipped. Leave unchanged.
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	return nil
}
