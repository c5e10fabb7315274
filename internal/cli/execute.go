package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"crosspub/internal/build"
	"crosspub/internal/cache"
	"crosspub/internal/config"
	"crosspub/internal/github"
	"crosspub/internal/logging"
	"crosspub/internal/mirror"
	"crosspub/internal/pipeline"
	"crosspub/internal/report"
	"crosspub/internal/tag"
)

// Result is the outcome of one CLI execution.
type Result struct {
	ExitCode    int
	GraphResult *pipeline.GraphResult
	Report      *report.Report
}

func configErrorf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitConfigError, Message: fmt.Sprintf(format, args...)}
}

// Execute runs a canonical invocation end to end: load config, resolve the
// tag, derive the stage plan, execute it and persist the run report.
//
// stdout receives the plan in --print-plan mode; stderr receives logs.
func Execute(ctx context.Context, inv Invocation, stdout, stderr io.Writer) (Result, error) {
	res := Result{ExitCode: ExitInternalError}

	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, configErrorf("loading config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)

	resolution, err := tag.Resolve(inv.TagArg, inv.RefArg)
	if err != nil {
		res.ExitCode = ExitInvalidInvocation
		return res, invalidInvocationf("resolving tag: %v", err)
	}
	logger.Info("tag resolved",
		slog.String("tag", resolution.Tag),
		slog.String("source", string(resolution.Source)),
	)

	graph, err := BuildPlan(cfg)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, configErrorf("building stage plan: %v", err)
	}

	if inv.PrintPlan {
		if err := printPlan(stdout, cfg, resolution.Tag, graph); err != nil {
			return res, fmt.Errorf("printing plan: %w", err)
		}
		res.ExitCode = ExitSuccess
		return res, nil
	}

	runner, err := newStageRunner(cfg, inv, resolution.Tag, logger)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	executor, err := pipeline.NewExecutor(graph, runner)
	if err != nil {
		return res, fmt.Errorf("constructing executor: %w", err)
	}

	concurrency := cfg.Concurrency
	if inv.Concurrency > 0 {
		concurrency = inv.Concurrency
	}

	runID := report.NewRunID()
	startedAt := time.Now()
	logger.Info("release run starting",
		slog.String("run_id", runID),
		slog.String("tag", resolution.Tag),
		slog.String("plan", graph.Fingerprint()),
		slog.Int("targets", len(cfg.Targets)),
	)

	gr, err := executor.RunParallel(ctx, concurrency)
	if err != nil {
		logger.Error("release run aborted", slog.String("run_id", runID), slog.Any("error", err))
		return res, err
	}
	res.GraphResult = gr

	rep, err := report.Build(runID, resolution.Tag, startedAt, time.Now(), gr)
	if err != nil {
		return res, fmt.Errorf("building report: %w", err)
	}
	res.Report = rep
	if inv.ReportPath != "" {
		if err := report.Write(inv.ReportPath, rep); err != nil {
			return res, err
		}
	}

	if gr.Succeeded() {
		logger.Info("release run succeeded", slog.String("run_id", runID), slog.String("tag", resolution.Tag))
		res.ExitCode = ExitSuccess
		return res, nil
	}

	for _, s := range rep.Stages {
		if s.Error == "" {
			continue
		}
		attrs := []any{slog.String("stage", s.Name), slog.String("error", s.Error)}
		if sr := gr.Results[s.Name]; sr != nil && len(sr.Output) > 0 {
			attrs = append(attrs, slog.String("output_tail", outputTail(sr.Output, maxOutputTail)))
		}
		logger.Error("stage failed", attrs...)
	}
	res.ExitCode = ExitPipelineFailure
	return res, nil
}

// maxOutputTail bounds how much captured command output is replayed into the
// log for a failed stage.
const maxOutputTail = 4 * 1024

// outputTail returns at most max trailing bytes of the command output,
// advancing to the next line boundary when the cut lands mid-line.
func outputTail(out []byte, max int) string {
	if len(out) <= max {
		return string(out)
	}
	tail := out[len(out)-max:]
	if i := bytes.IndexByte(tail, '\n'); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return string(tail)
}

// newStageRunner wires the runner's collaborators from config.
func newStageRunner(cfg *config.Config, inv Invocation, tagName string, logger *slog.Logger) (*stageRunner, error) {
	r := &stageRunner{
		cfg:         cfg,
		workDir:     inv.WorkDir,
		tagName:     tagName,
		logger:      logger,
		builder:     build.NewBuilder(),
		skipPublish: inv.SkipPublish,
	}

	if !inv.SkipPublish {
		token := os.Getenv(cfg.GitHub.TokenEnv)
		if token == "" {
			return nil, configErrorf("release token missing: %s is unset", cfg.GitHub.TokenEnv)
		}
		r.releases = github.New(cfg.GitHub, token, logger)

		if cfg.MirrorEnabled() {
			m, err := mirror.New(cfg.Mirror, cfg.Project.Binary)
			if err != nil {
				return nil, configErrorf("%v", err)
			}
			r.mirror = m
		}
	}

	if cfg.Cache.Enabled {
		r.depsCache = cache.NewStore(resolvePath(inv.WorkDir, cfg.Cache.Dir))
	}

	return r, nil
}
