package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// containerRuntimeBinary is the CLI Radium shells out to for the
// container variant. Grounded on the Rust original's podman-backed
// sandbox: a CLI runtime rather than a Docker SDK dependency keeps the
// variant swappable (docker, podman, nerdctl) without a new Go import.
const containerRuntimeBinary = "podman"

// Container runs commands inside a declared image via the host's
// container runtime CLI, bind-mounting the working directory.
type Container struct {
	cfg       Config
	runtime   string
	container string
}

func NewContainer(cfg Config) (Sandbox, error) {
	return &Container{cfg: cfg, runtime: containerRuntimeBinary}, nil
}

func (c *Container) Init(ctx context.Context) error {
	if _, err := exec.LookPath(c.runtime); err != nil {
		return fmt.Errorf("%w: %s", ErrRuntimeNotFound, c.runtime)
	}

	args := []string{"run", "-d", "--rm"}
	if c.cfg.WorkdirBind != "" {
		args = append(args, "-v", c.cfg.WorkdirBind+":/workspace")
	}
	if c.cfg.NetworkMode != "" {
		args = append(args, "--network", c.cfg.NetworkMode)
	}
	if c.cfg.MemLimitMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", c.cfg.MemLimitMB))
	}
	if c.cfg.CPULimit > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%.2f", c.cfg.CPULimit))
	}
	args = append(args, c.cfg.Image, "sleep", "infinity")

	out, err := exec.CommandContext(ctx, c.runtime, args...).Output()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	c.container = strings.TrimRight(string(out), "\r\n")
	return nil
}

func (c *Container) Exec(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if c.container == "" {
		return ExecResult{}, fmt.Errorf("%w: container not initialized", ErrExecutionFailed)
	}

	args := append([]string{"exec"}, c.container)
	args = append(args, req.Command)
	args = append(args, req.Args...)

	cmd := exec.CommandContext(ctx, c.runtime, args...)
	cmd.Dir = req.Dir
	out, err := cmd.CombinedOutput()
	result := ExecResult{Stdout: string(out)}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	return result, nil
}

func (c *Container) Close(ctx context.Context) error {
	if c.container == "" {
		return nil
	}
	return exec.CommandContext(ctx, c.runtime, "stop", c.container).Run()
}

