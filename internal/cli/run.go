package cli

import (
	"context"
	"io"
)

// Run is the high-level entrypoint: parse the argument slice (excluding
// argv[0]), execute, and return the semantic exit code plus any error.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) (Result, error) {
	inv, err := ParseInvocation(args)
	if err != nil {
		return Result{ExitCode: ExitCodeFor(err)}, err
	}
	res, err := Execute(ctx, inv, stdout, stderr)
	if err != nil {
		res.ExitCode = ExitCodeFor(err)
	}
	return res, err
}
