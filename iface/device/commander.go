package device

import (
	"context"
	"os/exec"
)

// Commander runs an external program and returns its combined stdout and stderr
type Commander interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommander runs programs with os/exec. The process is killed when ctx ends.
type ExecCommander struct{}

func (ExecCommander) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
