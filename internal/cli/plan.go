package cli

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"crosspub/internal/config"
	"crosspub/internal/pipeline"
	"crosspub/internal/target"
)

// releaseStageName is the root stage every build depends on.
const releaseStageName = "release"

// BuildPlan derives the stage graph for one release run: the release stage at
// the root and one build stage per matrix target depending on it. Builds have
// no edges among themselves.
func BuildPlan(cfg *config.Config) (*pipeline.StageGraph, error) {
	stages := []pipeline.Stage{{Name: releaseStageName, Kind: pipeline.KindRelease}}
	edges := make([]pipeline.Edge, 0, len(cfg.Targets))

	for _, t := range cfg.Targets {
		name := t.StageName()
		stages = append(stages, pipeline.Stage{Name: name, Kind: pipeline.KindBuild, Target: t})
		edges = append(edges, pipeline.Edge{From: releaseStageName, To: name})
	}

	return pipeline.NewStageGraph(stages, edges)
}

type planDoc struct {
	Tag         string      `yaml:"tag"`
	Fingerprint string      `yaml:"fingerprint"`
	Stages      []planStage `yaml:"stages"`
}

type planStage struct {
	Name  string   `yaml:"name"`
	Kind  string   `yaml:"kind"`
	Needs []string `yaml:"needs,omitempty"`
	Asset string   `yaml:"asset,omitempty"`
}

// printPlan writes the resolved plan as YAML in topological order.
func printPlan(w io.Writer, cfg *config.Config, tagName string, g *pipeline.StageGraph) error {
	doc := planDoc{Tag: tagName, Fingerprint: g.Fingerprint()}

	needs := make(map[string][]string)
	for _, e := range g.Edges() {
		needs[e.To] = append(needs[e.To], e.From)
	}

	for _, name := range g.TopologicalOrder() {
		st, ok := g.Stage(name)
		if !ok {
			return fmt.Errorf("stage %q missing from graph", name)
		}
		ps := planStage{Name: name, Kind: string(st.Kind), Needs: needs[name]}
		if st.Kind == pipeline.KindBuild {
			asset, err := target.DeriveAsset(cfg.Project.Binary, tagName, cfg.Build.OutputDir, st.Target)
			if err != nil {
				return err
			}
			ps.Asset = asset.Name
		}
		doc.Stages = append(doc.Stages, ps)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(doc)
}
