// Package build compiles one release binary per target and validates the
// expected output.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"crosspub/internal/target"
)

// Request describes one target compilation.
type Request struct {
	// Command is the build command template. Placeholders {os}, {arch},
	// {triple}, {tag} and {output} are substituted before execution.
	Command string

	// WorkDir is the directory the command runs in.
	WorkDir string

	// Env is extra environment on top of the host environment. The builder
	// additionally injects TARGET_OS, TARGET_ARCH and TARGET_TRIPLE.
	Env map[string]string

	Tag    string
	Target target.Target

	// OutputPath is where the compiled binary must appear. Substituted for
	// {output} and validated after the command exits.
	OutputPath string
}

// Result contains the outcome of one compilation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Builder runs build commands through the shell.
//
// Unlike task sandboxes, builds inherit the host environment: cross-compiling
// toolchains need PATH, HOME and their own configuration to function.
// Declared env and the injected TARGET_* variables layer on top.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Run executes the build command for one target.
//
// A non-zero exit code is reported through Result, not an error; a non-nil
// error means the command could not be run at all. Output validation is the
// caller's job (see CheckOutput) so that dry runs can skip it.
func (b *Builder) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, fmt.Errorf("build command is empty")
	}

	command := Expand(req.Command, req)

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = req.WorkDir
	cmd.Env = buildEnv(req)

	// Own process group so cancellation kills the whole build tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting build for %s: %w", req.Target.Triple(), err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("build for %s cancelled: %w", req.Target.Triple(), ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("running build for %s: %w", req.Target.Triple(), err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// Expand substitutes the command template placeholders for one request.
func Expand(command string, req Request) string {
	r := strings.NewReplacer(
		"{os}", req.Target.OS,
		"{arch}", req.Target.Arch,
		"{triple}", req.Target.Triple(),
		"{suffix}", req.Target.Suffix,
		"{tag}", req.Tag,
		"{output}", req.OutputPath,
	)
	return r.Replace(command)
}

// buildEnv layers declared env and target variables over the host environment.
func buildEnv(req Request) []string {
	env := os.Environ()
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"TARGET_OS="+req.Target.OS,
		"TARGET_ARCH="+req.Target.Arch,
		"TARGET_TRIPLE="+req.Target.Triple(),
	)
	return env
}
