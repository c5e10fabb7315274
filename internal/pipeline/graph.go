package pipeline

import (
	"container/heap"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

type edgeIndex struct {
	from int
	to   int
}

// StageGraph is an immutable, validated DAG of release stages.
//
// It is safe for concurrent read access.
type StageGraph struct {
	stagesByName map[string]*node
	nodes        []*node // canonical order: lexical by stage name

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	indeg    []int   // by canonical index
	depth    []int   // by canonical index (topological depth)

	fingerprint string
}

type node struct {
	stage          Stage
	canonicalIndex int
}

// NewStageGraph builds and validates a StageGraph.
//
// Validation runs immediately and rejects:
//   - empty or duplicate stage names
//   - edges referencing unknown stages
//   - duplicate edges
//   - self-loops
//   - any cycle (direct or indirect)
func NewStageGraph(stages []Stage, edges []Edge) (*StageGraph, error) {
	if len(stages) == 0 {
		return nil, invalidf("no stages")
	}

	stagesByName := make(map[string]*node, len(stages))
	nodes := make([]*node, 0, len(stages))

	for _, s := range stages {
		if s.Name == "" {
			return nil, invalidf("stage name is required")
		}
		if _, exists := stagesByName[s.Name]; exists {
			return nil, invalidf("duplicate stage name: %q", s.Name)
		}
		n := &node{stage: s}
		stagesByName[s.Name] = n
		nodes = append(nodes, n)
	}

	// Canonicalize: lexical order by name. Stage identity is the name alone,
	// so this ordering is stable across config reorderings.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].stage.Name < nodes[j].stage.Name })
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	nameToIndex := make(map[string]int, len(nodes))
	for _, n := range nodes {
		nameToIndex[n.stage.Name] = n.canonicalIndex
	}

	// Canonicalize edges: map to indices, reject invalid, sort, reject duplicates.
	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		if _, ok := stagesByName[e.From]; !ok {
			return nil, invalidf("edge references unknown stage (from): %q", e.From)
		}
		if _, ok := stagesByName[e.To]; !ok {
			return nil, invalidf("edge references unknown stage (to): %q", e.To)
		}
		if e.From == e.To {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}

		pair := edgeIndex{from: nameToIndex[e.From], to: nameToIndex[e.To]}
		if _, exists := seen[pair]; exists {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &StageGraph{
		stagesByName: stagesByName,
		nodes:        nodes,
		edges:        mapped,
		outgoing:     outgoing,
		incoming:     incoming,
		indeg:        indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()
	g.fingerprint = g.computeFingerprint()
	return g, nil
}

// Fingerprint returns the stable identity of the graph shape, derived from
// stage names and dependency structure. Used to correlate run reports.
func (g *StageGraph) Fingerprint() string { return g.fingerprint }

// Stage returns a stage by name.
func (g *StageGraph) Stage(name string) (Stage, bool) {
	n, ok := g.stagesByName[name]
	if !ok {
		return Stage{}, false
	}
	return n.stage, true
}

// Stages returns the stages in canonical order.
func (g *StageGraph) Stages() []Stage {
	out := make([]Stage, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n.stage)
	}
	return out
}

// Edges returns the dependency edges as stable (From, To) name pairs in
// canonical order.
func (g *StageGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].stage.Name, To: g.nodes[e.to].stage.Name})
	}
	return out
}

// Depth returns the deterministic topological depth of the given stage name.
//
// Depth is defined as the length of the longest path from any root to the stage.
func (g *StageGraph) Depth(name string) (int, bool) {
	n, ok := g.stagesByName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *StageGraph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.topoOrderIndices() {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic topological ordering of stage names.
//
// Since the graph is validated on construction, this method must not fail.
func (g *StageGraph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.nodes[idx].stage.Name)
	}
	return names
}

func (g *StageGraph) computeFingerprint() string {
	h := sha256.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		h.Write([]byte{
			byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
			byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
		})
		h.Write(data)
	}

	writeField([]byte{byte(len(g.nodes))})
	for _, n := range g.nodes {
		writeField([]byte(n.stage.Name))
		writeField([]byte(n.stage.Kind))
	}

	writeField([]byte{byte(len(g.edges))})
	for _, e := range g.edges {
		writeField([]byte{byte(e.from >> 24), byte(e.from >> 16), byte(e.from >> 8), byte(e.from)})
		writeField([]byte{byte(e.to >> 24), byte(e.to >> 16), byte(e.to >> 8), byte(e.to)})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// validateAcyclic proves the graph has no cycles using Kahn's algorithm.
//
// If a cycle exists, it deterministically extracts one cycle path for error
// reporting.
func (g *StageGraph) validateAcyclic() error {
	order := g.topoOrderIndices()
	if len(order) == len(g.nodes) {
		return nil
	}
	return cycleError(g.findCycleDeterministic())
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices returns a deterministic topological ordering of node
// indices. The ready queue is a min-heap by canonical index.
func (g *StageGraph) topoOrderIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycleDeterministic performs a deterministic DFS over canonical indices
// to extract one stable cycle witness.
func (g *StageGraph) findCycleDeterministic() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] { // already sorted
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// Back-edge u -> v. Reconstruct cycle v ... u -> v.
				cycle = append(cycle, v)
				cur := u
				for cur != -1 && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := 0; i < len(g.nodes); i++ {
		if color[i] != white {
			continue
		}
		if dfs(i) {
			break
		}
	}

	if len(cycle) == 0 {
		return nil
	}

	rev := make([]int, len(cycle))
	for i := range cycle {
		rev[i] = cycle[len(cycle)-1-i]
	}

	out := make([]string, 0, len(rev))
	for _, idx := range rev {
		out = append(out, g.nodes[idx].stage.Name)
	}
	return out
}
