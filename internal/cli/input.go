// Package cli parses the release invocation, wires the pipeline together and
// maps outcomes to semantic exit codes.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess           = 0
	ExitPipelineFailure   = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the fully canonicalized description of a release run.
//
// All relative paths are resolved against WorkDir, which is required and must
// be absolute so behavior never depends on the process working directory.
type Invocation struct {
	WorkDir    string
	ConfigPath string

	// TagArg and RefArg are the two mutually exclusive tag sources; exactly
	// one must be set. Resolution happens in the tag package after config
	// loading.
	TagArg string
	RefArg string

	// ReportPath is where the run report lands; empty disables the report.
	ReportPath string

	// Concurrency overrides the configured bound when positive.
	Concurrency int

	// PrintPlan prints the resolved stage plan as YAML and exits.
	PrintPlan bool

	// SkipPublish builds and validates all targets but creates no release and
	// uploads nothing.
	SkipPublish bool
}

// InvocationError carries the semantic exit code of an invocation problem.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI flags into a canonical Invocation.
func ParseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("crosspub", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var inv Invocation
	fs.StringVar(&inv.WorkDir, "workdir", "", "Absolute working directory. Required.")
	fs.StringVar(&inv.ConfigPath, "config", "release.yaml", "Release config file.")
	fs.StringVar(&inv.TagArg, "tag", "", "Release tag (mutually exclusive with --ref).")
	fs.StringVar(&inv.RefArg, "ref", "", "Git ref of a tag push, e.g. refs/tags/v1.2.3 (mutually exclusive with --tag).")
	fs.StringVar(&inv.ReportPath, "report", "", "Run report output path (optional).")
	fs.IntVar(&inv.Concurrency, "concurrency", 0, "Max concurrent build stages (0 = from config).")
	fs.BoolVar(&inv.PrintPlan, "print-plan", false, "Print the resolved stage plan as YAML and exit.")
	fs.BoolVar(&inv.SkipPublish, "skip-publish", false, "Build and validate outputs without creating a release or uploading.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	inv.WorkDir = filepath.Clean(inv.WorkDir)
	if inv.WorkDir == "" || inv.WorkDir == "." {
		return Invocation{}, invalidInvocationf("--workdir is required")
	}
	if !filepath.IsAbs(inv.WorkDir) {
		return Invocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", inv.WorkDir)
	}

	if strings.TrimSpace(inv.TagArg) != "" && strings.TrimSpace(inv.RefArg) != "" {
		return Invocation{}, invalidInvocationf("--tag and --ref are mutually exclusive")
	}
	if strings.TrimSpace(inv.TagArg) == "" && strings.TrimSpace(inv.RefArg) == "" {
		return Invocation{}, invalidInvocationf("either --tag or --ref is required")
	}

	if inv.Concurrency < 0 {
		return Invocation{}, invalidInvocationf("--concurrency must not be negative (got %d)", inv.Concurrency)
	}

	var err error
	if inv.ConfigPath, err = resolveUnderWorkDir(inv.WorkDir, inv.ConfigPath); err != nil {
		return Invocation{}, err
	}
	if inv.ReportPath != "" {
		if inv.ReportPath, err = resolveUnderWorkDir(inv.WorkDir, inv.ReportPath); err != nil {
			return Invocation{}, err
		}
	}

	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	// WorkDir is absolute, so Join does not consult the process CWD.
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCodeFor extracts a semantic exit code from an error.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil && invErr.ExitCode != 0 {
		return invErr.ExitCode
	}
	return ExitInternalError
}
