// Package process runs pipeline tools as child processes and turns their
// failures into domain.StageError values.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/semmidev/pgsentry/internal/domain"
)

const maxOutput = 4096

type Command struct {
	Stage   string
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Run executes c and returns its standard output. Any non-zero exit, start
// failure or timeout is reported as *domain.StageError.
func (r *Runner) Run(ctx context.Context, c Command) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	stageErr := &domain.StageError{
		Stage:    c.Stage,
		ExitCode: -1,
		Output:   tail(stderr.String()),
		Err:      err,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		stageErr.Err = fmt.Errorf("%s: %w", c.Path, ctxErr)
		return nil, stageErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stageErr.ExitCode = exitErr.ExitCode()
	}

	return nil, stageErr
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		return "..." + s[len(s)-maxOutput:]
	}
	return s
}
