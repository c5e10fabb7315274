package pipeline

import "sort"

// ReadyStages returns the deterministically ordered list of stage names that
// are eligible to run.
//
// Policy:
//   - A stage is ready iff it is PENDING and all its dependencies are
//     COMPLETED or CACHED.
//   - The returned list is sorted by (topological depth asc, stage name asc).
//
// This function is pure: it does not mutate graph or state.
func ReadyStages(g *StageGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	ready := make([]string, 0)
	for _, n := range g.nodes {
		st, ok := state[n.stage.Name]
		if !ok || st != StagePending {
			continue
		}

		depsOK := true
		for _, parentIdx := range g.incoming[n.canonicalIndex] {
			pst, ok := state[g.nodes[parentIdx].stage.Name]
			if !ok || !IsSuccessful(pst) {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, n.stage.Name)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		ad, _ := g.Depth(a)
		bd, _ := g.Depth(b)
		if ad != bd {
			return ad < bd
		}
		return a < b
	})

	return ready
}
