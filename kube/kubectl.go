package kube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single kubectl invocation.
const DefaultTimeout = 20 * time.Second

// Kubectl runs the real kubectl binary. Zero value is not usable; construct
// with NewKubectl.
type Kubectl struct {
	Bin     string
	Timeout time.Duration
}

// NewKubectl builds a runner for the given binary name or path. Empty bin
// means "kubectl" from PATH.
func NewKubectl(bin string) *Kubectl {
	if bin == "" {
		bin = "kubectl"
	}
	return &Kubectl{Bin: bin, Timeout: DefaultTimeout}
}

func (k *Kubectl) run(ctx context.Context, args []string) Result {
	timeout := k.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string{k.Bin}, args...)
	cmd := exec.CommandContext(ctx, k.Bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Argv:   argv,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	switch {
	case err == nil:
		res.OK = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = 124
		res.Err = ErrTimeout
		res.Stderr = fmt.Sprintf("timed out after %s", timeout)
	case isExecNotFound(err):
		res.ExitCode = 127
		res.Err = ErrNotFound
		res.Stderr = err.Error()
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = 1
			res.Stderr = err.Error()
		}
	}
	return res
}

func isExecNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound)
}

// RunQuery implements Client.
func (k *Kubectl) RunQuery(ctx context.Context, args ...string) Result {
	return k.run(ctx, args)
}

// RunDryRunPatch implements Client. The patch is validated server-side
// without persisting, so admission and RBAC run for real.
func (k *Kubectl) RunDryRunPatch(ctx context.Context, namespace, deployment string, patch []byte) Result {
	return k.run(ctx, []string{
		"-n", namespace, "patch", "deployment", deployment,
		"--type", "merge", "--dry-run=server", "-p", string(patch),
	})
}

// RunPatch implements Client.
func (k *Kubectl) RunPatch(ctx context.Context, namespace, deployment string, patch []byte) Result {
	return k.run(ctx, []string{
		"-n", namespace, "patch", "deployment", deployment,
		"--type", "merge", "-p", string(patch),
	})
}

// CurrentContext implements Client.
func (k *Kubectl) CurrentContext(ctx context.Context) (string, error) {
	res := k.run(ctx, []string{"config", "current-context"})
	if !res.OK {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("kubectl exited %d", res.ExitCode)
		}
		return "", errors.New(msg)
	}
	return strings.TrimSpace(res.Stdout), nil
}
